package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArity    = errors.New("invalid arity")
	ErrAlreadyComputed = errors.New("already computed")
	ErrNotComputed     = errors.New("not computed")
	ErrOracle          = errors.New("oracle failure")
)
