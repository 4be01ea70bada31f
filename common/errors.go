package common

import "errors"

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyEmpty    = errors.New("key cannot be empty")

	ErrKeyOverflow   = errors.New("key too large for a single page")
	ErrValueOverflow = errors.New("value too large for a single page")
	ErrPageOverflow  = errors.New("node does not fit in a single page")

	ErrUnexpectedNodeType  = errors.New("unexpected node type")
	ErrUnexpectedWALRecord = errors.New("unexpected WAL record")
	ErrCorruption          = errors.New("data file corrupted")

	ErrClosed = errors.New("storage engine closed")
)
