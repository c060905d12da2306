package client

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNoSession        = errors.New("no session id assigned yet")
	ErrAlreadyConnected = errors.New("connect already in progress or established")
)
