package domain

import "fmt"

// AcquisitionError reports a failure to fetch or read the remote listing:
// unreachable source, unexpected status, malformed document or missing table.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition: %s: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ParseError reports a magnitude field that is not a valid number.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse magnitude %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError reports a failure to read or write the history file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
