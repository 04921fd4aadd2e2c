package oracle

import "context"

// Oracle is the abstraction over the natural-language extraction service.
// It takes a text prompt and returns the model's raw text output; callers
// own the contract for what that text must contain.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}
