package domain

import (
	"errors"
	"fmt"
)

// Kind identifies the resource flavour a descriptor provisions.
type Kind string

const (
	KindDatabase Kind = "database"
	KindBackend  Kind = "backend"
	KindFrontend Kind = "frontend"
)

// Kinds lists every provisionable resource kind in display order.
var Kinds = []Kind{KindDatabase, KindBackend, KindFrontend}

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDatabase, KindBackend, KindFrontend:
		return true
	}
	return false
}

// Engine enumerates supported database engines.
type Engine string

const (
	EngineMySQL   Engine = "mysql"
	EngineMongoDB Engine = "mongodb"
)

// SourceKind distinguishes archive uploads from image references.
type SourceKind string

const (
	SourceArchive SourceKind = "archive"
	SourceImage   SourceKind = "image"
)

// Status is the lifecycle state of a resource.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusBuilding Status = "building"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
	StatusDeleted  Status = "deleted"
)

// Known reports whether s belongs to the lifecycle state set.
func (s Status) Known() bool {
	switch s {
	case StatusDraft, StatusPending, StatusBuilding, StatusRunning, StatusPaused, StatusError, StatusDeleted:
		return true
	}
	return false
}

// Operation names a lifecycle command issued against a deployed resource.
type Operation string

const (
	OpStart  Operation = "start"
	OpStop   Operation = "stop"
	OpDelete Operation = "delete"
)

// ErrInvalidTransition marks a lifecycle command issued from a state that
// does not permit it. Callers are expected to check before going to the wire.
var ErrInvalidTransition = errors.New("domain: invalid lifecycle transition")

// Transition returns the state a resource moves toward when op is accepted.
// Start is valid from paused or error, stop only from running, delete from
// any state except deleted. The returned state is the locally expected one;
// the remote service confirms the actual state on the next refresh.
func Transition(current Status, op Operation) (Status, error) {
	switch op {
	case OpStart:
		if current == StatusPaused || current == StatusError {
			return StatusPending, nil
		}
	case OpStop:
		if current == StatusRunning {
			return StatusPaused, nil
		}
	case OpDelete:
		if current != StatusDeleted {
			return StatusDeleted, nil
		}
	}
	return current, fmt.Errorf("%w: cannot %s a %s resource", ErrInvalidTransition, op, current)
}
