// Package corerr defines the error taxonomy shared by every component of
// the corpus pipeline (chunker, rasterizer, muxer, index, retriever).
//
// Every error the core raises is a *Error with a Kind drawn from the
// constants below, so callers can branch with errors.As instead of string
// matching, the same way qdrant.OperationError lets callers branch on
// OperationErrorCode.
package corerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig          Kind = "config_error"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindEncoderNotFound Kind = "encoder_not_found"
	KindEncoderFailed   Kind = "encoder_failed"
	KindIO              Kind = "io_error"
	KindEmbedder        Kind = "embedder_error"
	KindIndexBackend    Kind = "index_backend_error"
	KindVideoNotFound   Kind = "video_not_found"
	KindEmptyInput      Kind = "empty_input"
)

// Error is the single error type raised by the core. Component is the
// component that raised it (e.g. "chunker", "videomux"), Detail is a
// human-readable message, and Cause (optional) is the wrapped underlying
// error.
type Error struct {
	Kind      Kind
	Component string
	Detail    string
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return "corpus: nil error"
	}
	msg := fmt.Sprintf("%s: %s", e.Component, e.Detail)
	if e.Kind != "" {
		msg = fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, component, detail string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Detail: detail, Cause: cause}
}

func Config(component, detail string) *Error {
	return New(KindConfig, component, detail, nil)
}

func PayloadTooLarge(component, detail string) *Error {
	return New(KindPayloadTooLarge, component, detail, nil)
}

func EncoderNotFound(component, binary string, cause error) *Error {
	return New(KindEncoderNotFound, component, fmt.Sprintf("encoder binary %q not found in PATH", binary), cause)
}

func EncoderFailed(component, detail string, cause error) *Error {
	return New(KindEncoderFailed, component, detail, cause)
}

func IO(component, detail string, cause error) *Error {
	return New(KindIO, component, detail, cause)
}

func Embedder(component, detail string, cause error) *Error {
	return New(KindEmbedder, component, detail, cause)
}

func IndexBackend(component, detail string, cause error) *Error {
	return New(KindIndexBackend, component, detail, cause)
}

func VideoNotFound(component, path string) *Error {
	return New(KindVideoNotFound, component, fmt.Sprintf("video not found: %s", path), nil)
}

func EmptyInput(component string) *Error {
	return New(KindEmptyInput, component, "empty input text", nil)
}

// Is reports whether err wraps a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
