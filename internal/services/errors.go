package services

import (
	"errors"

	"github.com/gallery-app/apiserver/internal/store"
)

// Error kinds returned by the services. Match them with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIdentityConflict   = errors.New("identity conflict")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrUpstreamStorage    = errors.New("upstream storage failure")
	ErrNotFound           = store.ErrNotFound
	ErrConflict           = store.ErrConflict
)

// Error pairs an error kind with a message safe to show to API callers.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

func validationError(message string) error {
	return newError(ErrValidation, message)
}
