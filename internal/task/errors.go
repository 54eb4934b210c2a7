package task

import "errors"

// Common errors
var (
	ErrNilRouter         = errors.New("router cannot be nil")
	ErrNilInvoker        = errors.New("invoker cannot be nil")
	ErrNilStore          = errors.New("task store cannot be nil")
	ErrNilLogger         = errors.New("logger cannot be nil")
	ErrNilExecutor       = errors.New("executor cannot be nil")
	ErrNilHTTPClient     = errors.New("http client cannot be nil")
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)
