package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
)

// State is the broker session lifecycle as seen by the Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Offline
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Offline:
		return "offline"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) logLevel() slog.Level {
	switch s {
	case Reconnecting, Disconnected:
		return slog.LevelWarn
	case Offline:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("mqtt: manager closed")

// FatalError means the reconnect budget is exhausted. The process is expected
// to shut down and leave restarting to its supervisor.
type FatalError struct {
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("mqtt: broker unreachable after %d reconnect attempts: %v", e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
