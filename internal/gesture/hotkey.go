package gesture

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultHotkey is Ctrl+O.
const DefaultHotkey byte = 0x0f

// HotkeyTrigger fires whenever its hotkey byte appears on an input stream,
// typically a terminal in raw mode.
type HotkeyTrigger struct {
	r   io.Reader
	key byte
}

// NewHotkeyTrigger creates a trigger reading r. A zero key selects DefaultHotkey.
func NewHotkeyTrigger(r io.Reader, key byte) *HotkeyTrigger {
	if key == 0 {
		key = DefaultHotkey
	}
	return &HotkeyTrigger{r: r, key: key}
}

// Key returns the hotkey byte.
func (h *HotkeyTrigger) Key() byte { return h.key }

// Run reads the stream until EOF or ctx is done. A read blocked on the
// stream is left to finish on its own once ctx is done.
func (h *HotkeyTrigger) Run(ctx context.Context, fire func()) error {
	inputCh := make(chan byte, 16)
	errCh := make(chan error, 1)

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := h.r.Read(buf)
			for _, b := range buf[:n] {
				select {
				case inputCh <- b:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errCh:
			// Bytes read before the error are still delivered.
		drain:
			for {
				select {
				case b := <-inputCh:
					if b == h.key {
						fire()
					}
				default:
					break drain
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("hotkey input: %w", err)

		case b := <-inputCh:
			if b == h.key {
				fire()
			}
		}
	}
}
