// Package llm is the boundary to the text and multimodal generation services.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("no content generated")

// Part is one element of a generation request: either text or an inline image.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func Text(s string) Part {
	return Part{Text: s}
}

func Image(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

func (p Part) IsImage() bool {
	return len(p.Data) > 0
}

// Generator sends an ordered list of parts and returns the response text.
type Generator interface {
	Generate(ctx context.Context, parts ...Part) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, parts ...Part) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, parts ...Part) (string, error) {
	return f(ctx, parts...)
}
