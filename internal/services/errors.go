package services

import "errors"

// Run service errors
var (
	ErrRunNotFound     = errors.New("run not found")
	ErrRunFinished     = errors.New("run already finished")
	ErrServiceStopping = errors.New("run service is shutting down")
)
