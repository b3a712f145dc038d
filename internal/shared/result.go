package shared

// Failure is the error half of a Result.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Result is the success/failure envelope returned by every exposed operation.
type Result[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

// ResultOf folds a value/error pair into a Result.
func ResultOf[T any](value T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Result[T]{Success: true, Data: value}
}

// Fail converts err into a failed Result.
func Fail[T any](err error) Result[T] {
	kind := KindOf(err)
	msg := err.Error()
	if kind == KindInternal {
		msg = "internal error"
	}
	return Result[T]{Error: &Failure{Kind: kind, Message: msg}}
}
