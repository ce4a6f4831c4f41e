package model

import "errors"

var (
	ErrUnknownKind     = errors.New("unknown raw event kind")
	ErrDecodePayload   = errors.New("decode raw payload")
	ErrMissingNativeID = errors.New("raw item has no platform id")
)
