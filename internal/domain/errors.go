package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoData       = errors.New("no market data")
	ErrRateLimited  = errors.New("rate limited")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrNotConnected = errors.New("not connected")
	ErrLockHeld     = errors.New("lock already held")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownVenue = errors.New("unknown venue")
	ErrContextDone  = errors.New("context cancelled")
)
