package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/menu"
)

// Client is the overlay UI's side of the bridge.
type Client struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	pending sync.Map // map[string]chan Message

	subMu        sync.Mutex
	nextSub      int64
	closeSubs    map[int64]func(context.Context)
	renderSubs   map[int64]func(RenderEvent)
	handlerGroup sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
}

// Dial connects to a bridge server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ws:         ws,
		logger:     logger,
		closeSubs:  make(map[int64]func(context.Context)),
		renderSubs: make(map[int64]func(RenderEvent)),
		ctx:        cctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close disconnects from the server and waits for running handlers.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	c.handlerGroup.Wait()
	return err
}

// CloseMenu asks the native side to tear the overlay down for the current screen.
func (c *Client) CloseMenu(ctx context.Context) error {
	return c.call(ctx, MethodClose, nil, nil)
}

// ListItems returns the current screen's menu items.
func (c *Client) ListItems(ctx context.Context) (menu.Listing, error) {
	var items menu.Listing
	err := c.call(ctx, MethodListItems, nil, &items)
	return items, err
}

// Select dispatches the action for key on the current screen.
func (c *Client) Select(ctx context.Context, key string) error {
	return c.call(ctx, MethodSelect, SelectParams{Key: key}, nil)
}

// IsOnboardingFinished reads the persisted onboarding flag.
func (c *Client) IsOnboardingFinished(ctx context.Context) (bool, error) {
	var finished bool
	err := c.call(ctx, MethodGetOnboardingFinished, nil, &finished)
	return finished, err
}

// SetOnboardingFinished writes the onboarding flag and returns the stored value.
func (c *Client) SetOnboardingFinished(ctx context.Context, finished bool) (bool, error) {
	var stored bool
	err := c.call(ctx, MethodSetOnboardingFinished, OnboardingParams{Finished: finished}, &stored)
	return stored, err
}

// ReloadApp reloads the current screen's app from its manifest.
func (c *Client) ReloadApp(ctx context.Context) error {
	return c.call(ctx, MethodReloadApp, nil, nil)
}

// GoHome leaves the current screen for the host's home screen.
func (c *Client) GoHome(ctx context.Context) error {
	return c.call(ctx, MethodGoHome, nil, nil)
}

// Subscription is a registered event handler.
type Subscription struct {
	remove func()
	once   sync.Once
}

// Remove unsubscribes the handler. It is safe to call more than once.
func (s *Subscription) Remove() {
	s.once.Do(s.remove)
}

// SubscribeToCloseRequests registers handler to run whenever the native side
// asks the UI to close. handler should return once the UI's collapse
// animation has finished; the request is acknowledged after every handler
// returned. The context is cancelled when the client closes.
func (c *Client) SubscribeToCloseRequests(handler func(ctx context.Context)) *Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.closeSubs[id] = handler
	return &Subscription{remove: func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.closeSubs, id)
	}}
}

// SubscribeToRender registers handler for overlay view updates. Handlers run
// on the client's read goroutine and must not block.
func (c *Client) SubscribeToRender(handler func(RenderEvent)) *Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.renderSubs[id] = handler
	return &Subscription{remove: func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.renderSubs, id)
	}}
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrNotConnected
	}

	msg := Message{ID: uuid.NewString(), Kind: KindRequest, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		msg.Params = raw
	}

	respCh := make(chan Message, 1)
	c.pending.Store(msg.ID, respCh)
	defer c.pending.Delete(msg.ID)

	if err := c.write(msg); err != nil {
		return err
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("invalid %s result: %w", method, err)
			}
		}
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("bridge connection ended", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid bridge message", zap.Error(err))
			continue
		}

		switch msg.Kind {
		case KindResponse:
			if ch, ok := c.pending.LoadAndDelete(msg.ID); ok {
				ch.(chan Message) <- msg
			}
		case KindEvent:
			c.handleEvent(msg)
		}
	}
}

func (c *Client) handleEvent(msg Message) {
	switch msg.Method {
	case EventRender:
		var ev RenderEvent
		if err := json.Unmarshal(msg.Params, &ev); err != nil {
			c.logger.Warn("invalid render event", zap.Error(err))
			return
		}
		c.subMu.Lock()
		handlers := make([]func(RenderEvent), 0, len(c.renderSubs))
		for _, h := range c.renderSubs {
			handlers = append(handlers, h)
		}
		c.subMu.Unlock()
		for _, h := range handlers {
			h(ev)
		}

	case EventCloseRequested:
		c.subMu.Lock()
		handlers := make([]func(context.Context), 0, len(c.closeSubs))
		for _, h := range c.closeSubs {
			handlers = append(handlers, h)
		}
		c.subMu.Unlock()

		c.handlerGroup.Add(1)
		go func() {
			defer c.handlerGroup.Done()

			var wg sync.WaitGroup
			for _, h := range handlers {
				wg.Add(1)
				go func(h func(context.Context)) {
					defer wg.Done()
					h(c.ctx)
				}(h)
			}
			wg.Wait()

			if err := c.write(Message{ID: msg.ID, Kind: KindAck}); err != nil && !c.closed.Load() {
				c.logger.Debug("failed to ack close request", zap.Error(err))
			}
		}()
	}
}
