package worker

import (
	"context"
	"fmt"
)

// Handler is a function that processes a delivery.
type Handler func(ctx context.Context, d *Delivery) error

// Middleware is a function that wraps a handler to add functionality.
type Middleware func(Handler) Handler

// Recoverer turns a handler panic into an error so the retry policy decides
// the message's fate.
func Recoverer(next Handler) Handler {
	return func(ctx context.Context, d *Delivery) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return next(ctx, d)
	}
}
