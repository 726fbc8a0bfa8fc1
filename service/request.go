package service

import "strings"

type Upload struct {
	Filename string
	Data     []byte
}

// Request pairs one uploaded image with one question. A nil Image means the
// field was absent; a present but empty upload is a decode fault.
type Request struct {
	Image    *Upload
	Question string
}

// Validate checks field presence only. The image is checked first.
func (r Request) Validate() error {
	if r.Image == nil {
		return &ValidationError{Field: FieldImage}
	}
	if strings.TrimSpace(r.Question) == "" {
		return &ValidationError{Field: FieldQuestion}
	}
	return nil
}
