package database

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAlreadyFollowed = errors.New("stock already followed")
	ErrNotFollowed     = errors.New("stock not followed")
)
