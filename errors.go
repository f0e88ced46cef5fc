package scripturepath

import (
	"errors"
	"fmt"
)

var (
	ErrStudyNotFound  = errors.New("study not found")
	ErrStudyLocked    = errors.New("study is locked")
	ErrAlreadyClaimed = errors.New("study already has an owner")
	ErrNotOwner       = errors.New("caller does not own this study")

	ErrMalformedResponse = errors.New("malformed generation response")
	ErrGeneratorFailed   = errors.New("text generation failed")
)

// ErrorKind classifies a GenerationError
type ErrorKind int

const (
	MalformedResponse ErrorKind = iota + 1
	GeneratorFailed
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedResponse:
		return "malformed response"
	case GeneratorFailed:
		return "generator failed"
	}
	return fmt.Sprintf("error kind %d", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case MalformedResponse:
		return ErrMalformedResponse
	case GeneratorFailed:
		return ErrGeneratorFailed
	}
	return nil
}

// GenerationError is returned when model output cannot become a study or a
// section. errors.Is matches it against ErrMalformedResponse or
// ErrGeneratorFailed according to Kind.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func malformed(format string, args ...interface{}) *GenerationError {
	return &GenerationError{Kind: MalformedResponse, Err: fmt.Errorf(format, args...)}
}

// UnknownSectionError names a section id outside the canonical list
type UnknownSectionError struct {
	SectionID string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown section %q", e.SectionID)
}
