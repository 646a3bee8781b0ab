// Copyright © 2018 The ELPS authors

package suspended

import "errors"

var (
	// ErrUnknownReference is returned for a reference that was never minted
	// or whose tracker has been closed.
	ErrUnknownReference = errors.New("unknown variable reference")
	// ErrNoSuchChild is returned when a named child does not exist.
	ErrNoSuchChild = errors.New("no such child variable")
	// ErrTrackerClosed is returned when tracking on a closed tracker.
	ErrTrackerClosed = errors.New("frame tracker is closed")
)
