package livemusic

import "errors"

var (
	ErrNoPrompt            = errors.New("cannot play without a prompt")
	ErrNoBackend           = errors.New("no generation backend configured")
	ErrNoActiveSession     = errors.New("no active generation session")
	ErrConnectionClosed    = errors.New("connection closed unexpectedly")
	ErrTooManyDecodeErrors = errors.New("too many audio chunks failed to decode")
	ErrClosed              = errors.New("live music helper closed")

	errConnectAbandoned = errors.New("connection attempt abandoned")
)
