package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is not visible
	// to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the requesting user is not allowed to
	// modify a row.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateUsername is returned by CreateUser for a taken username.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrDuplicateEmail is returned by CreateUser for a taken email.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrInsufficientStock is returned when an adjustment would take an
	// item's quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)
