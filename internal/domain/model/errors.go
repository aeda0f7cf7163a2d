package model

import "errors"

var (
	// ErrAuth covers an unknown user id or a credential mismatch. Reported
	// to the caller; the connection stays open.
	ErrAuth = errors.New("bad credentials")

	// ErrAlreadyLoggedIn rejects a duplicate concurrent login. No state is
	// touched when it is returned.
	ErrAlreadyLoggedIn = errors.New("account already logged in")

	// ErrRegistration signals the store rejected an account insert.
	ErrRegistration = errors.New("registration failed")

	// ErrNotFound is the store's uniform miss result.
	ErrNotFound = errors.New("not found")

	// ErrBusUnavailable marks the relay bus as down; delivery degrades to
	// the offline queue instead of failing the sender.
	ErrBusUnavailable = errors.New("relay bus unavailable")
)
