package node

import (
    "errors"
    "fmt"
)

var (
    // ErrInputClosed is fatal under AllReady: the node can never fire again.
    ErrInputClosed = errors.New("node: required input closed")
    // ErrUnknownOutput is reported when a computation names an undeclared port.
    ErrUnknownOutput = errors.New("node: undeclared output port")
    // ErrAlreadyStarted is returned by a second Start.
    ErrAlreadyStarted = errors.New("node: already started")
    // ErrInvalidDescriptor is returned by New for malformed descriptors.
    ErrInvalidDescriptor = errors.New("node: invalid descriptor")
)

// FatalError marks a computation error that must stop the node.
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as fatal. A nil err stays nil.
func Fatal(err error) error {
    if err == nil { return nil }
    return &FatalError{Err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked fatal.
func IsFatal(err error) bool {
    var fe *FatalError
    return errors.As(err, &fe)
}

// SetupError is returned by Start when the node could not reach Running.
type SetupError struct {
    Node string
    Err  error
}

func (e *SetupError) Error() string { return fmt.Sprintf("node %s: setup: %v", e.Node, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }
