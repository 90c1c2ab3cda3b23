// Package gesture detects the user gestures that toggle the dev menu.
package gesture

import "context"

// Trigger raises toggle requests until its context is cancelled.
type Trigger interface {
	// Run calls fire once per detected gesture. It blocks until ctx is done
	// or the trigger's input ends.
	Run(ctx context.Context, fire func()) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, fire func()) error

// Run implements Trigger.
func (f TriggerFunc) Run(ctx context.Context, fire func()) error {
	return f(ctx, fire)
}
