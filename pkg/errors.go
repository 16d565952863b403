package eventbuilder

import (
	"errors"
	"fmt"
)

// Configuration errors. Any of them makes the derived output meaningless,
// callers are expected to abort the run.
var (
	ErrModuleMismatch = errors.New("module configuration does not match data")
	ErrMissingOffset  = errors.New("missing time offset for configured module")
	ErrDetectorOrder  = errors.New("trigger detector IDs are not strictly increasing")
	ErrUnknownModule  = errors.New("channel refers to an unknown module")
)

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error {
	return e.Err
}

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error {
	return e.Err
}

// ErrMissingDataset is returned by hit sources when a file does not carry
// the expected raw hit schema.
type ErrMissingDataset struct {
	Filename string
	Dataset  string
	Err      error
}

func (e *ErrMissingDataset) Error() string {
	return fmt.Sprintf("file %q has no dataset %q: %v", e.Filename, e.Dataset, e.Err)
}

func (e *ErrMissingDataset) Unwrap() error {
	return e.Err
}
