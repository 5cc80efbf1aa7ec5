package supervisor

import "sync"

// ShutdownFlag is a broadcastable "are we shutting down" signal shared
// between request handlers (which only need to read it) and the
// Supervisor (which triggers it exactly once). It exists separately from
// Supervisor itself so servers can be constructed with a working
// shutdown check (IsSet) before the Supervisor that will eventually own
// them.
type ShutdownFlag struct {
	ch   chan struct{}
	once sync.Once
}

// NewShutdownFlag returns an unset flag.
func NewShutdownFlag() *ShutdownFlag {
	return &ShutdownFlag{ch: make(chan struct{})}
}

// IsSet reports whether Trigger has been called.
func (f *ShutdownFlag) IsSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Trigger sets the flag. Safe to call more than once or concurrently.
func (f *ShutdownFlag) Trigger() {
	f.once.Do(func() { close(f.ch) })
}
