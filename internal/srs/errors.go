package srs

import "errors"

var (
	ErrInvalidQuality = errors.New("srs: invalid quality")
	ErrInvalidCard    = errors.New("srs: card violates scheduling invariants")
	ErrInvalidParams  = errors.New("srs: invalid parameters")
)
