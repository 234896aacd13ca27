package errs

import (
	"fmt"
	"strings"

	pkgerr "github.com/pkg/errors"
)

// Error codes for the chat session client. Grouped by the failure surface
// they belong to; the hundreds digit is the group.
const (
	CodeConnectionFailure = 1101 // transport-level, retryable
	CodeAuthFailure       = 1102 // bearer token invalid or expired, not retried
	CodeSendFailure       = 1201 // message post failed
	CodeFetchFailure      = 1202 // history or group load failed
	CodeProtocolError     = 1301 // undecodable or unknown inbound frame
	CodeInternal          = 1901 // recovered panic or invariant violation
)

var (
	ErrConnectionFailure = NewCodeError(CodeConnectionFailure, "connection failure")
	ErrAuthFailure       = NewCodeError(CodeAuthFailure, "auth failure")
	ErrSendFailure       = NewCodeError(CodeSendFailure, "send failure")
	ErrFetchFailure      = NewCodeError(CodeFetchFailure, "fetch failure")
	ErrProtocol          = NewCodeError(CodeProtocolError, "protocol error")
)

// CodeError carries a stable code alongside a human message. Detail is
// accumulated through WithDetail/WrapMsg and never replaces Msg.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Msg, e.Detail)
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

func (e *CodeError) WithDetail(detail string) *CodeError {
	out := e.clone()
	if out.Detail == "" {
		out.Detail = detail
	} else {
		out.Detail += ", " + detail
	}
	return out
}

// Wrap returns the error with a captured stack.
func (e *CodeError) Wrap() error {
	return pkgerr.WithStack(e.clone())
}

// WrapMsg clones the error, appends msg and key/value pairs to the detail,
// and captures a stack.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	out := e.clone()
	if d := toDetail(msg, kv); d != "" {
		if out.Detail == "" {
			out.Detail = d
		} else {
			out.Detail += ", " + d
		}
	}
	return pkgerr.WithStack(out)
}

// Is matches any CodeError with the same code, so wrapped variants compare
// equal to the sentinel via errors.Is.
func (e *CodeError) Is(target error) bool {
	ce, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return ce.Code == e.Code
}

// Code extracts the code from err, walking the wrap chain. Returns 0 when no
// CodeError is found.
func Code(err error) int {
	for err != nil {
		if ce, ok := err.(*CodeError); ok {
			return ce.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

func IsCode(err error, code int) bool {
	return Code(err) == code
}

func toDetail(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
		} else {
			sb.WriteString(fmt.Sprintf("%v", kv[i]))
		}
	}
	return sb.String()
}
