package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrAlreadyBound = errors.New("key already bound")
	ErrWrongType    = errors.New("operation not allowed for key type")
	ErrSuspended    = errors.New("key suspended")

	ErrInvalidKeyType = errors.New("invalid key type")
	ErrInvalidName    = errors.New("invalid display name")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidUserID  = errors.New("invalid user id")

	ErrKeySpaceExhausted = errors.New("could not generate a unique token")
)
