package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a lifecycle failure.
type Kind int

const (
	// KindUnknown is any failure outside the taxonomy.
	KindUnknown Kind = iota
	// KindLoad means the kernel program bundle could not be opened, loaded or verified.
	KindLoad
	// KindAttach means an instrumentation point could not be bound.
	KindAttach
	// KindTable means a kernel table handle was unobtainable.
	KindTable
	// KindRendererUnavailable means the external flame-graph renderer is missing or failed.
	KindRendererUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "LoadError"
	case KindAttach:
		return "AttachError"
	case KindTable:
		return "TableError"
	case KindRendererUnavailable:
		return "RendererUnavailable"
	default:
		return "Error"
	}
}

// Fatal reports whether a failure of this kind decides the process exit code.
func (k Kind) Fatal() bool {
	return k != KindRendererUnavailable
}

// StageError is a failure of one named lifecycle stage.
type StageError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// New wraps err as a failure of the given kind and stage.
func New(kind Kind, stage string, err error) error {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// Newf formats a new stage failure.
func Newf(kind Kind, stage string, format string, args ...any) error {
	return New(kind, stage, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first StageError in err's chain.
func KindOf(err error) Kind {
	var se *StageError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries a StageError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindLoad:
		return 2
	case KindAttach:
		return 3
	case KindTable:
		return 4
	default:
		return 1
	}
}
