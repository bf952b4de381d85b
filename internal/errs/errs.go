// Package errs holds the error taxonomy of a repository update.
//
// Every kind is an errbuilder error carrying a distinct code, so callers
// classify failures structurally instead of matching on message text.
package errs

import (
	"errors"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindTransientStore
	KindGeneration
	KindSigning
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindTransientStore:
		return "transient-store"
	case KindGeneration:
		return "generation"
	case KindSigning:
		return "signing"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// NotFound reports the expected absence of a remote object.
func NotFound(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(msg)
}

// TransientStore reports any object store failure other than absence.
func TransientStore(msg string, cause error) error {
	b := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg)
	if cause != nil {
		return b.WithCause(cause)
	}
	return b
}

func Generation(msg string, cause error) error {
	b := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(msg)
	if cause != nil {
		return b.WithCause(cause)
	}
	return b
}

func Signing(msg string, cause error) error {
	b := errbuilder.New().
		WithCode(errbuilder.CodePermissionDenied).
		WithMsg(msg)
	if cause != nil {
		return b.WithCause(cause)
	}
	return b
}

func Configuration(msg string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg)
}

// KindOf returns the kind of the first coded error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var builder *errbuilder.ErrBuilder
	if !errors.As(err, &builder) {
		return KindUnknown
	}
	switch errbuilder.CodeOf(builder) {
	case errbuilder.CodeNotFound:
		return KindNotFound
	case errbuilder.CodeInternal:
		return KindTransientStore
	case errbuilder.CodeFailedPrecondition:
		return KindGeneration
	case errbuilder.CodePermissionDenied:
		return KindSigning
	case errbuilder.CodeInvalidArgument:
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsTransient(err error) bool     { return KindOf(err) == KindTransientStore }
func IsGeneration(err error) bool    { return KindOf(err) == KindGeneration }
func IsSigning(err error) bool       { return KindOf(err) == KindSigning }
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// Message returns the builder message when err carries one.
func Message(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && builder.Msg != "" {
		return builder.Msg
	}
	return err.Error()
}
