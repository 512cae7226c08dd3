package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no candidate file exists for a URI.
	ErrNotFound = errors.New("resource not found")
	// ErrOutOfBounds is returned when a URI climbs above its search root.
	ErrOutOfBounds = errors.New("resource path reaches out of bounds")
	// ErrUnrecognizedPrefix is a malformed URI prefix. It is a kind of ErrNotFound.
	ErrUnrecognizedPrefix = fmt.Errorf("unrecognized uri prefix: %w", ErrNotFound)
	// ErrDecodeFailure wraps any error produced while decoding resource content.
	ErrDecodeFailure = errors.New("failed to decode resource")
	ErrInvalidHandle = errors.New("invalid resource handle")
	ErrSystemClosed  = errors.New("resource system is shut down")
	ErrNoLoader      = errors.New("no loader registered for resource type")
	ErrUnknown       = errors.New("unknown")
)
