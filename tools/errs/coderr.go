package errs

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError is a typed error carried through the gateway. Two CodeErrors are
// considered the same error when their codes match; Detail is informational.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{Code: code, Msg: msg}
}

func (e CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches any CodeError with the same code, so errors.Is(err, ErrUpload)
// holds for every wrapped upload failure.
func (e CodeError) Is(target error) bool {
	var t CodeError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e CodeError) WithDetail(detail string) CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

// Wrap attaches a stack trace.
func (e CodeError) Wrap() error {
	return errors.WithStack(e)
}

// WrapMsg returns a copy of e with msg and key/value pairs appended to its detail.
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	if msg == "" && len(kv) == 0 {
		return e.Wrap()
	}
	return errors.WithStack(e.WithDetail(toString(msg, kv)))
}

// Cause wraps a lower level error under code e, keeping err reachable through
// errors.Is/As.
func (e CodeError) Cause(err error, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&causeError{code: e.WithDetail(toString(err.Error(), kv)), err: err})
}

type causeError struct {
	code CodeError
	err  error
}

func (c *causeError) Error() string { return c.code.Error() }
func (c *causeError) Unwrap() []error {
	return []error{c.code, c.err}
}

// As returns the first CodeError in err's chain.
func As(err error) (CodeError, bool) {
	var ce CodeError
	ok := stderrors.As(err, &ce)
	return ce, ok
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, toString(msg, kv))
}

func New(msg string, kv ...any) error {
	return errors.New(toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
