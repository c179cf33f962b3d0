package online

type constError string

// ErrInvalidConfig may be returned from [Train].
const ErrInvalidConfig = constError("invalid training configuration")

func (errStr constError) Error() string { return string(errStr) }
