// Package cliutil carries the process-boundary error/exit idiom shared
// by the daemon binaries, grounded on busoc-assist's err.go.
package cliutil

import (
	"fmt"
	"os"
)

const GenericErrCode = 5000

// Error pairs a cause with a process exit code.
type Error struct {
	Cause error
	Code  int
}

func (e *Error) Error() string {
	return e.Cause.Error()
}

// Exit prints err and terminates the process with its code, or
// GenericErrCode if err is not an *Error.
func Exit(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if e, ok := err.(*Error); ok {
		os.Exit(e.Code)
	}
	os.Exit(GenericErrCode)
}

// Wrap returns err as an *Error carrying code, for use at a main()
// boundary.
func Wrap(err error, code int) error {
	if err == nil {
		return nil
	}
	return &Error{Cause: err, Code: code}
}
