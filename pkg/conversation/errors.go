package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidMerge         = errors.New("invalid merge")
	ErrThreadMerged         = errors.New("thread is merged")
	ErrEmptyPrompt          = errors.New("prompt is empty")
	ErrInvalidBranchType    = errors.New("invalid branch type")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidDisplayNumber = errors.New("invalid display number")
	ErrInvalidState         = errors.New("invalid conversation state")
	ErrPersist              = errors.New("persist conversation state")
)

// NotFoundError reports a missing node, referenced by id or display number.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("node %q %s", e.Ref, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidMergeError reports why two nodes cannot be merged. Cause is set when
// the merge failed because a node is missing.
type InvalidMergeError struct {
	Source string
	Target string
	Reason string
	Cause  error
}

func (e *InvalidMergeError) Error() string {
	if e == nil {
		return ErrInvalidMerge.Error()
	}
	return fmt.Sprintf("%s %s -> %s: %s", ErrInvalidMerge, e.Source, e.Target, e.Reason)
}

func (e *InvalidMergeError) Is(target error) bool { return target == ErrInvalidMerge }

func (e *InvalidMergeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ThreadMergedError is returned when a continuation targets a closed thread.
type ThreadMergedError struct {
	Prefix string
}

func (e *ThreadMergedError) Error() string {
	if e == nil {
		return ErrThreadMerged.Error()
	}
	return fmt.Sprintf("%s: %s", ErrThreadMerged, e.Prefix)
}

func (e *ThreadMergedError) Is(target error) bool { return target == ErrThreadMerged }

func notFound(ref fmt.Stringer) error {
	return &NotFoundError{Ref: ref.String()}
}
