package kernel

import "fmt"

type constError string

const (
	// ErrUnknownType may be returned from [ParseType] and [NewMatrix].
	ErrUnknownType = constError("unknown kernel type")
	// ErrNoExamples may be returned from [NewMatrix].
	ErrNoExamples = constError("no examples")
	// ErrUnsorted may be returned from [NewMatrix] when a
	// [Vector] does not have strictly increasing indices.
	ErrUnsorted = constError("vector indices are not strictly increasing")
)

func (errStr constError) Error() string { return string(errStr) }

func unsortedError(example, position int) error {
	return fmt.Errorf("%w: example %d at feature %d",
		ErrUnsorted, example, position)
}
