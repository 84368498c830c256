package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("auth: credentials required")
	ErrTokensDisabled  = errors.New("auth: token signing is not configured")
)
