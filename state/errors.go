package state

import "errors"

var (
	// ErrConflictingRequirement is returned when a subnet already has a requirement with a different path
	ErrConflictingRequirement = errors.New("conflicting requirement")
	// ErrInvalidRequirement is returned when a requirement does not describe a path in the current topology
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrUnsatisfiablePath is reported per requirement when no fake topology can enforce it
	ErrUnsatisfiablePath = errors.New("unsatisfiable path")
	// ErrAdjacencyLost is transient, the adjacency is retried
	ErrAdjacencyLost = errors.New("adjacency lost")
	// ErrMalformedTopologyEvent is returned when a topology change cannot be applied
	ErrMalformedTopologyEvent = errors.New("malformed topology event")
)
