package main

import (
	"errors"

	"github.com/kiranshivaraju/m365dash/internal/backend"
	"github.com/kiranshivaraju/m365dash/internal/retry"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitBackend  = 3
	exitNotFound = 4
	exitOutput   = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// backendErr classifies an error returned by the backend client.
func backendErr(err error) error {
	if err == nil {
		return nil
	}
	var se *retry.StatusError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return withCode(exitNotFound, err)
	case errors.Is(err, retry.ErrUnreachable), errors.Is(err, retry.ErrTimeout),
		errors.Is(err, backend.ErrUnhealthy), errors.As(err, &se):
		return withCode(exitBackend, err)
	}
	return withCode(exitFailure, err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}
