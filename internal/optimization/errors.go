package optimization

import (
	"errors"
	"fmt"
)

// Kind classifies an optimization error into one of the failure
// categories surfaced by the loop and its collaborators.
type Kind uint8

const (
	// KindUnknown is the zero Kind, used when no category applies.
	KindUnknown Kind = iota
	// KindInvalidValue reports a parameter value outside its bounds or
	// category set, or a missing required parameter.
	KindInvalidValue
	// KindDimensionMismatch reports a vector whose width does not match
	// the governing parameter space.
	KindDimensionMismatch
	// KindUnknownParameter reports a name that does not exist in the
	// active parameter space.
	KindUnknownParameter
	// KindInvalidEncoding reports a malformed encoded block, such as a
	// one-hot fragment without exactly one active entry.
	KindInvalidEncoding
	// KindInfeasibleContext reports a context that leaves the selector
	// with no feasible search problem.
	KindInfeasibleContext
	// KindOptimizationFailure reports that the inner acquisition
	// optimizer produced no feasible point within its restart budget.
	KindOptimizationFailure
	// KindModelUpdateFailure reports a surrogate model that could not
	// absorb the current loop state.
	KindModelUpdateFailure
	// KindObjectiveEvaluationFailure reports an objective that failed
	// while evaluating a batch.
	KindObjectiveEvaluationFailure
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidValue:
		return "InvalidValue"
	case KindDimensionMismatch:
		return "DimensionMismatch"
	case KindUnknownParameter:
		return "UnknownParameter"
	case KindInvalidEncoding:
		return "InvalidEncoding"
	case KindInfeasibleContext:
		return "InfeasibleContext"
	case KindOptimizationFailure:
		return "OptimizationFailure"
	case KindModelUpdateFailure:
		return "ModelUpdateFailure"
	case KindObjectiveEvaluationFailure:
		return "ObjectiveEvaluationFailure"
	default:
		return "Unknown"
	}
}

// Sentinel errors for use with errors.Is. Each carries only a Kind;
// matching is by Kind, so a wrapped *Error anywhere in a chain
// satisfies errors.Is(err, ErrInvalidValue) and friends.
var (
	ErrInvalidValue               = &Error{Kind: KindInvalidValue}
	ErrDimensionMismatch          = &Error{Kind: KindDimensionMismatch}
	ErrUnknownParameter           = &Error{Kind: KindUnknownParameter}
	ErrInvalidEncoding            = &Error{Kind: KindInvalidEncoding}
	ErrInfeasibleContext          = &Error{Kind: KindInfeasibleContext}
	ErrOptimizationFailure        = &Error{Kind: KindOptimizationFailure}
	ErrModelUpdateFailure         = &Error{Kind: KindModelUpdateFailure}
	ErrObjectiveEvaluationFailure = &Error{Kind: KindObjectiveEvaluationFailure}
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind is the taxonomy category of the error.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}
	if e.Kind != KindUnknown {
		if prefix != "" {
			prefix = fmt.Sprintf("%s: %s", prefix, e.Kind)
		} else {
			prefix = e.Kind.String()
		}
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target matches this error by Kind. It makes the
// sentinel errors above usable with errors.Is through wrapped chains.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Kind != KindUnknown && t.Kind == e.Kind
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new optimization error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorf creates a new optimization error with a formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with a kind and additional context.
// If err is nil, WrapError returns nil.
func WrapError(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with a kind and formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(kind Kind, err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf returns the Kind of the first *Error found in err's chain,
// or KindUnknown if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsOptimizationError checks if an error has an *Error in its chain.
// If so, it returns that error and true; otherwise nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
