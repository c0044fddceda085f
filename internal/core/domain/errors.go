package domain

import "errors"

var (
	// ErrUserNotFound is thrown when looking up a user that was never registered
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists ...
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidUserID ...
	ErrInvalidUserID = errors.New("user id must be a positive integer")
	// ErrInvalidPrice is thrown when a quote carries a zero or negative price
	ErrInvalidPrice = errors.New("price must be strictly positive")
	// ErrInvalidSymbol ...
	ErrInvalidSymbol = errors.New("symbol must not be empty")
)
