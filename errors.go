package asyncrt

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrRuntimeShutdown is returned when work is submitted to a runtime that
	// has begun shutting down.
	ErrRuntimeShutdown = errors.New("asyncrt: runtime is shut down")

	// ErrCancelled is the terminal error of a task that was cancelled before
	// it completed. Cancellation is a distinct terminal state, see
	// [TaskCancelled]; the error exists so that Wait has something to return.
	ErrCancelled = errors.New("asyncrt: task cancelled")

	// ErrClosed is returned by channels and primitives that have been closed.
	ErrClosed = errors.New("asyncrt: closed")

	// ErrEmpty is returned by non-blocking receives on an empty channel.
	ErrEmpty = errors.New("asyncrt: empty")

	// ErrFull is returned by non-blocking sends on a full channel.
	ErrFull = errors.New("asyncrt: full")

	// ErrTimeout is returned when an operation wrapped by [Timeout] (or one
	// of the *Timeout helpers) does not complete in time.
	ErrTimeout = &TimeoutError{}

	// ErrSemaphoreOverflow is returned when a semaphore's permits would exceed
	// [MaxPermits].
	ErrSemaphoreOverflow = errors.New("asyncrt: semaphore permits overflow")

	// ErrSemaphoreEmpty is returned by TryAcquire when no permit is available.
	ErrSemaphoreEmpty = errors.New("asyncrt: semaphore has no permits")

	// ErrRegistrationClosed is returned by readiness polls on a closed
	// registration.
	ErrRegistrationClosed = errors.New("asyncrt: registration closed")

	// ErrNilFuture is returned when spawning a nil future.
	ErrNilFuture = errors.New("asyncrt: nil future")

	// ErrBlockOnReentrant is returned when BlockOn, Shutdown or
	// JoinHandle.Wait would block a goroutine that polls the same runtime's
	// tasks.
	ErrBlockOnReentrant = errors.New("asyncrt: blocking call on a runtime goroutine")
)

// PanicError is the terminal error of a task whose poll panicked.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncrt: task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// TimeoutError reports an elapsed deadline. All instances match
// [ErrTimeout] under [errors.Is].
type TimeoutError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "asyncrt: operation timed out"
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is matches any *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// Timeout reports true, for compatibility with net.Error style checks.
func (e *TimeoutError) Timeout() bool { return true }

// SendError carries a value that could not be delivered back to the sender.
type SendError[T any] struct {
	Value T
	// Err is ErrClosed, ErrFull or ErrTimeout.
	Err error
}

// Error implements the error interface.
func (e *SendError[T]) Error() string {
	return "asyncrt: send failed: " + e.Err.Error()
}

// Unwrap returns the reason the send failed.
func (e *SendError[T]) Unwrap() error {
	return e.Err
}

// LaggedError is returned by a broadcast receiver that fell behind. Skipped
// values are lost; the next receive resumes at the oldest retained value.
type LaggedError struct {
	Skipped uint64
}

// Error implements the error interface.
func (e *LaggedError) Error() string {
	return fmt.Sprintf("asyncrt: receiver lagged, %d values skipped", e.Skipped)
}
