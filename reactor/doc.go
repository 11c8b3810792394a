// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor provides readiness backends for the channel bus: counting
// notifiers and the reactor that waits on them.
//
// Two backends exist. The epoll backend (Linux) pairs every notifier with an
// eventfd(2) and multiplexes them with epoll(7). The portable backend keeps the
// counters in memory behind a condition variable and runs everywhere; it is the
// default on platforms without eventfd and a useful fallback on Linux.
package reactor
