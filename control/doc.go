// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot-reload and debug introspection layer for chanbus.
//
// Provides:
//   - Config loading through viper (defaults, file, CHANBUS_* env, pflag flags)
//   - Watch for config file changes
//   - DebugProbes, a named probe registry used by the bus for state dumps
package control
