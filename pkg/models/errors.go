package models

import "errors"

var (
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrCredentialNotSet = errors.New("credential not set in environment")
)
