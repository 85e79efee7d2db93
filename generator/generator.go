// Package generator wraps the external image generator behind a narrow
// interface. The service does not know or care which model or hosted
// service sits behind it - it is an opaque, slow, fallible function.
package generator

import "context"

type Request struct {
	Prompt string
	Width  int
	Height int
	Style  string
}

type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// Func adapts a plain function to the Generator interface
type Func func(ctx context.Context, req Request) ([]byte, error)

func (f Func) Generate(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
