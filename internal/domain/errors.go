package domain

import "errors"

var (
	// ErrFileTooLarge is returned when a download exceeds the media ceiling.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrNotFound is returned when a remote entity does not exist.
	ErrNotFound = errors.New("not found")
)
