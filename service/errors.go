package service

import "fmt"

type Field string

const (
	FieldImage    Field = "image"
	FieldQuestion Field = "question"
)

// ValidationError reports a required request field that is absent or blank.
// It is raised before any decoding or inference.
type ValidationError struct {
	Field Field
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// ProcessingError wraps every other fault: undecodable image, model failure,
// no free model session. Its message is the underlying fault text.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// DecodeError marks a payload that could not be turned into an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
