// Package vxerr carries the stable error codes the snapshot subsystem
// hands back across its own boundaries: registry, transport, materializer.
package vxerr

import (
	"errors"
	"fmt"
)

// Code is a stable, comparable error classification. Callers branch on
// Code rather than on error strings.
type Code int

const (
	OK Code = iota
	Internal
	IllegalParameters
	SnapshotNotFound
	SnapshotExist
	SnapshotInvalid
	NotNeedSnapshot
	RaftNotFound
	FileNotFoundReader
	FileRead
	Busy
	NotSupported
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Internal:
		return "internal"
	case IllegalParameters:
		return "illegal_parameters"
	case SnapshotNotFound:
		return "snapshot_not_found"
	case SnapshotExist:
		return "snapshot_exist"
	case SnapshotInvalid:
		return "snapshot_invalid"
	case NotNeedSnapshot:
		return "not_need_snapshot"
	case RaftNotFound:
		return "raft_not_found"
	case FileNotFoundReader:
		return "file_not_found_reader"
	case FileRead:
		return "file_read"
	case Busy:
		return "busy"
	case NotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// Error pairs a Code with a human message.
type Error struct {
	Code Code
	Msg  string
	err  error // wrapped cause, if any
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, err: cause}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// CodeOf extracts the Code carried by err, defaulting to Internal for
// any error that did not originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return Internal
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
