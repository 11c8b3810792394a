// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Hot-reload of the configuration file.

package control

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-decodes the configuration each time the file behind v changes and
// hands the result to onChange. Invalid revisions go to onError and are not applied.
// v must have been loaded from a file.
func Watch(v *viper.Viper, onChange func(Config), onError func(error)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
