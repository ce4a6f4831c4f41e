package repository

import "errors"

var (
	ErrDurableWrite = errors.New("durable raw store write failed")
	ErrInvalidEvent = errors.New("raw event has no id")
	ErrHydrate      = errors.New("loading raw store mirror failed")
)
