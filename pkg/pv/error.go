package pv

import "fmt"

// Kind classifies adapter failures; the orchestrator decides the
// user-visible consequences based on it.
type Kind int

const (
	// KindConfig: required credential/address field missing or malformed at
	// Init time. Fatal to polling until reconfigured, never retried
	// automatically.
	KindConfig Kind = iota + 1

	// KindTransport: non-200 status, connection failure, or timeout. The
	// cycle ends early with values unchanged; the next cycle is scheduled
	// normally.
	KindTransport

	// KindProtocol: the vendor envelope parsed but signals an internal
	// failure. Treated like transport but preserves the vendor reason.
	KindProtocol
)

// Error is the explicit failure result of an adapter operation. The HTTP
// status code (0 when the request never completed) is recorded for
// diagnostics.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConfig:
		return "config: " + e.Message
	case KindProtocol:
		return fmt.Sprintf("vendor error (code %d): %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("transport error (http %d): %s", e.Code, e.Message)
	}
}

func configErr(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

func transportErr(code int, format string, args ...any) *Error {
	return &Error{Kind: KindTransport, Code: code, Message: fmt.Sprintf(format, args...)}
}

func protocolErr(code int, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: fmt.Sprintf(format, args...)}
}
