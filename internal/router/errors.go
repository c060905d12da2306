package router

import "errors"

var (
	ErrPlayerNotFound = errors.New("whisper target not found")
	ErrEmptyContent   = errors.New("empty chat content")
)
