package database

import "errors"

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrMigrate       = errors.New("database migration failed")
	ErrCorruptRow    = errors.New("corrupt stored row")
)
