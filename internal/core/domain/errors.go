package domain

import "errors"

var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrSelfRelay         = errors.New("relay target is the sender")
)
