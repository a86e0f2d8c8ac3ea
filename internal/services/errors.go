// Package services defines the business logic for products, chat sessions,
// and messages. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Session-related errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist
	// or is not accessible to the current user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when a message is posted to a session
	// that has been marked inactive.
	ErrSessionClosed = errors.New("session is closed")

	// ErrEmptyPrompt is returned when a request to create a message contains
	// an empty prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a request to create a message exceeds the
	// maximum configured length limit.
	ErrTooLong = errors.New("prompt too long")
)

// Product-related errors.
var (
	// ErrProductNotFound indicates that the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductNameRequired is returned when a product is submitted without
	// a name.
	ErrProductNameRequired = errors.New("product name is required")

	// ErrDuplicateProductName is returned when a product name collides with
	// an existing catalog entry.
	ErrDuplicateProductName = errors.New("product name already exists")

	// ErrNegativePrice is returned when a product is submitted with a
	// negative price.
	ErrNegativePrice = errors.New("price must be >= 0")

	// ErrNegativeStock is returned when a product is submitted with a
	// negative stock count.
	ErrNegativeStock = errors.New("stock must be >= 0")
)
