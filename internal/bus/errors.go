package bus

import "fmt"

// Error codes returned by the bus. Keep stable; they appear in fault events.
const (
	ErrCodeInvalidArgument   = "queuebus.invalid_argument"
	ErrCodeAlreadySubscribed = "queuebus.already_subscribed"
	ErrCodeNotSubscribed     = "queuebus.not_subscribed"
	ErrCodeQueueNameInUse    = "queuebus.queue_name_in_use"
	ErrCodeResponseTimeout   = "queuebus.response_timeout"
	ErrCodeReplyNotAllowed   = "queuebus.reply_not_allowed"
	ErrCodeSendFailed        = "queuebus.send_failed"
	ErrCodeClosed            = "queuebus.closed"
	ErrCodeInvalidated       = "queuebus.invalidated"
)

// Code returns an error value that carries only a code string.
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

// Code lets event sinks report the code without string matching.
func (e codedError) Code() string { return string(e) }

var (
	ErrInvalidArgument   = Code(ErrCodeInvalidArgument)
	ErrAlreadySubscribed = Code(ErrCodeAlreadySubscribed)
	ErrNotSubscribed     = Code(ErrCodeNotSubscribed)
	ErrQueueNameInUse    = Code(ErrCodeQueueNameInUse)
	ErrResponseTimeout   = Code(ErrCodeResponseTimeout)
	ErrReplyNotAllowed   = Code(ErrCodeReplyNotAllowed)
	ErrSendFailed        = Code(ErrCodeSendFailed)
	ErrClosed            = Code(ErrCodeClosed)
	ErrInvalidated       = Code(ErrCodeInvalidated)
)

// HandlerError is returned by ProcessMessage when a handler fails. It
// unwraps to the handler's own error.
type HandlerError struct {
	Type string
	ID   string
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s %s: %v", e.Type, e.ID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}
