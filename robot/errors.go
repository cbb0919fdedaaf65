package robot

import (
	"errors"
	"fmt"
)

var (
	// ErrSceneNotFound is returned by New when the scene file does not exist.
	ErrSceneNotFound = errors.New("scene file does not exist")
	// ErrNotImplemented marks a missing required hook. It is an authoring
	// bug in the concrete environment, never a runtime condition.
	ErrNotImplemented = errors.New("required hook not implemented")
	// ErrActionShape is returned by Step for actions of the wrong length.
	ErrActionShape = errors.New("action does not match the action space shape")
	// ErrUnsupportedRenderMode is returned by Render for unknown modes.
	ErrUnsupportedRenderMode = errors.New("unsupported render mode")
	// ErrInvalidConfig is returned by New for configs no simulation can run.
	ErrInvalidConfig = errors.New("invalid environment config")
	// ErrResetExhausted is matched by ResetExhaustedError.
	ErrResetExhausted = errors.New("simulator reset attempts exhausted")
)

// ResetExhaustedError reports that the simulator never reached a valid
// initial configuration within the allowed attempts.
type ResetExhaustedError struct {
	Attempts int
	// Last error returned by the resetter, if any
	Last error
}

func (e *ResetExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s after %d attempts: %v", ErrResetExhausted, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s after %d attempts", ErrResetExhausted, e.Attempts)
}

func (e *ResetExhaustedError) Is(target error) bool {
	return target == ErrResetExhausted
}

func (e *ResetExhaustedError) Unwrap() error {
	return e.Last
}
