package lasvm

import (
	"fmt"

	"github.com/ansel1/merry"
)

type constError string

const (
	// ErrNilKernel may be returned from [NewCache].
	ErrNilKernel = constError("nil kernel function")
	// ErrInvalidSize may be returned from [Cache.SetMaxSize].
	ErrInvalidSize = constError("invalid cache size")
	// ErrInvalidIndex is returned when an index, rank or
	// row length is negative.
	ErrInvalidIndex = constError("invalid index")
	// ErrInvalidLabel is returned when a label is not +1 or -1.
	ErrInvalidLabel = constError("invalid label")
	// ErrInvalidPenalty may be returned from [NewSolver].
	ErrInvalidPenalty = constError("invalid penalty")
	// ErrInvalidArgument is returned for malformed bulk inputs.
	ErrInvalidArgument = constError("invalid argument")
	// ErrShrunk is returned when an operation requires
	// the working set to span the whole active set.
	ErrShrunk = constError("working set is shrunk")
	// ErrCacheBound may be returned from [NewSolver].
	ErrCacheBound = constError("cache is bound to another solver")
	// ErrNotPositive is returned when a negative curvature
	// shows the kernel is not positive semi-definite.
	ErrNotPositive = constError("kernel is not positive (negative curvature)")
	// ErrPoisoned wraps every error returned by a solver
	// after it has failed once.
	ErrPoisoned = constError("solver failed earlier")
)

func (errStr constError) Error() string { return string(errStr) }

// Class separates programmer errors from model errors.
// Neither class is recoverable.
type Class int

const (
	// ClassNone is reported for errors not produced by this package.
	ClassNone Class = iota
	// ClassContract marks a misuse of the API.
	ClassContract
	// ClassModel marks a condition detected in the data or kernel.
	ClassModel
)

func (c Class) String() string {
	switch c {
	case ClassContract:
		return "contract"
	case ClassModel:
		return "model"
	default:
		return "none"
	}
}

const (
	classKey = "lasvm.class"
	indexKey = "lasvm.index"
)

// ErrorClass returns the [Class] attached to err.
func ErrorClass(err error) Class {
	if class, ok := merry.Value(err, classKey).(Class); ok {
		return class
	}
	return ClassNone
}

// ErrorIndex returns the example index or rank attached to err, if any.
func ErrorIndex(err error) (int, bool) {
	index, ok := merry.Value(err, indexKey).(int)
	return index, ok
}

func contractError(err error, format string, args ...any) error {
	return merry.WrapSkipping(err, 1).
		Appendf(format, args...).
		WithValue(classKey, ClassContract)
}

func modelError(err error, format string, args ...any) error {
	return merry.WrapSkipping(err, 1).
		Appendf(format, args...).
		WithValue(classKey, ClassModel)
}

func indexError(what string, index int) error {
	return merry.WrapSkipping(ErrInvalidIndex, 1).
		Appendf("%s must be >=0 but %d was given", what, index).
		WithValue(classKey, ClassContract).
		WithValue(indexKey, index)
}

func poisonedError(cause error) error {
	return fmt.Errorf("%w: %w", ErrPoisoned, cause)
}
