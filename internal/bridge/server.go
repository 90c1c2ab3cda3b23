package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/overlay"
)

// Handler answers UI requests. It is implemented by the dev menu coordinator.
type Handler interface {
	Close(ctx context.Context) error
	ListItems(ctx context.Context) (menu.Listing, error)
	Select(ctx context.Context, key string) error
	OnboardingFinished(ctx context.Context) (bool, error)
	SetOnboardingFinished(ctx context.Context, finished bool) (bool, error)
	ReloadApp(ctx context.Context) error
	GoHome(ctx context.Context) error
}

// Server defaults.
const (
	DefaultCloseAckTimeout = 500 * time.Millisecond
	DefaultWriteTimeout    = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	sendBuffer             = 64
)

// Config configures a Server.
type Config struct {
	// CloseAckTimeout bounds how long RequestClose waits for UI acks.
	CloseAckTimeout time.Duration
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
	// RequestTimeout bounds each handler call.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server serves the bridge protocol to overlay UIs over websockets.
// It implements overlay.Surface and overlay.CloseHandshake.
type Server struct {
	handler  Handler
	cfg      Config
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients sync.Map // map[string]*conn
	waits   sync.Map // map[string]*closeWait

	lastRender atomic.Pointer[[]byte]

	closed   atomic.Bool
	wg       sync.WaitGroup
	requests atomic.Int64
	acks     atomic.Int64
}

// NewServer creates a bridge server dispatching requests to h.
func NewServer(h Handler, cfg Config) *Server {
	if cfg.CloseAckTimeout <= 0 {
		cfg.CloseAckTimeout = DefaultCloseAckTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		handler: h,
		cfg:     cfg,
		logger:  cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local development tool
			},
		},
	}
}

// ServerStats are bridge counters.
type ServerStats struct {
	Clients  int   `json:"clients"`
	Requests int64 `json:"requests"`
	Acks     int64 `json:"acks"`
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Clients:  s.ClientCount(),
		Requests: s.requests.Load(),
		Acks:     s.acks.Load(),
	}
}

// ClientCount returns the number of connected UIs.
func (s *Server) ClientCount() int {
	count := 0
	s.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(uuid.NewString(), ws, s.cfg.WriteTimeout)
	s.clients.Store(c.id, c)
	s.logger.Debug("ui connected", zap.String("client", c.id), zap.String("remote", r.RemoteAddr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.writeLoop()
	}()

	if frame := s.lastRender.Load(); frame != nil {
		c.enqueue(*frame, true)
	}

	s.readLoop(c)

	s.clients.Delete(c.id)
	c.close()
	s.forgetAcks(c.id)
	s.logger.Debug("ui disconnected", zap.String("client", c.id))
}

func (s *Server) readLoop(c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed.Load() {
				s.logger.Debug("ui read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(c, Message{Kind: KindResponse, Error: &Error{Code: CodeParseError, Message: "invalid JSON"}})
			continue
		}

		switch msg.Kind {
		case KindAck:
			s.ack(c.id, msg.ID)
		case KindRequest:
			s.requests.Add(1)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.reply(c, s.dispatch(msg))
			}()
		default:
			s.reply(c, Message{ID: msg.ID, Kind: KindResponse, Error: &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("unexpected message kind %q", msg.Kind)}})
		}
	}
}

func (s *Server) reply(c *conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		return
	}
	c.enqueue(data, false)
}

func (s *Server) dispatch(req Message) Message {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	resp := Message{ID: req.ID, Kind: KindResponse}
	result, err := s.call(ctx, req)
	if err != nil {
		var berr *Error
		if !errors.As(err, &berr) {
			berr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		resp.Error = berr
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Error{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

type ack struct{}

func (s *Server) call(ctx context.Context, req Message) (any, error) {
	switch req.Method {
	case MethodClose:
		return ack{}, s.handler.Close(ctx)

	case MethodListItems:
		return s.handler.ListItems(ctx)

	case MethodSelect:
		var p SelectParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Key == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "key is required"}
		}
		return ack{}, s.handler.Select(ctx, p.Key)

	case MethodGetOnboardingFinished:
		return s.handler.OnboardingFinished(ctx)

	case MethodSetOnboardingFinished:
		var p OnboardingParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.handler.SetOnboardingFinished(ctx, p.Finished)

	case MethodReloadApp:
		return ack{}, s.handler.ReloadApp(ctx)

	case MethodGoHome:
		return ack{}, s.handler.GoHome(ctx)

	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return &Error{Code: CodeInvalidParams, Message: "params are required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

// Render implements overlay.Surface. Frames are dropped for UIs that fall
// behind; the latest frame is replayed to UIs that connect later.
func (s *Server) Render(view overlay.ViewSnapshot) {
	data, err := newEvent("", EventRender, RenderEvent{
		Attached: view.Attached(),
		Screen:   view.Parent,
		Visible:  view.Visible,
		Props:    view.Props,
		Alpha:    view.Alpha,
		Scale:    view.Scale,
	})
	if err != nil {
		s.logger.Error("failed to encode render event", zap.Error(err))
		return
	}
	s.lastRender.Store(&data)

	s.clients.Range(func(_, value any) bool {
		value.(*conn).enqueue(data, true)
		return true
	})
}

// closeWait tracks the UIs that still owe an ack for one close request.
type closeWait struct {
	mu      sync.Mutex
	pending map[string]bool
	done    chan struct{}
	once    sync.Once
}

func (w *closeWait) resolve(clientID string) {
	w.mu.Lock()
	delete(w.pending, clientID)
	empty := len(w.pending) == 0
	w.mu.Unlock()

	if empty {
		w.once.Do(func() { close(w.done) })
	}
}

// RequestClose implements overlay.CloseHandshake. It asks every connected UI
// to collapse and returns once all of them acked, a UI disconnects, the ack
// timeout fires or ctx is done. With no UI connected it returns at once.
func (s *Server) RequestClose(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	var targets []*conn
	s.clients.Range(func(_, value any) bool {
		targets = append(targets, value.(*conn))
		return true
	})
	if len(targets) == 0 {
		return nil
	}

	id := uuid.NewString()
	w := &closeWait{pending: make(map[string]bool, len(targets)), done: make(chan struct{})}
	for _, c := range targets {
		w.pending[c.id] = true
	}
	s.waits.Store(id, w)
	defer s.waits.Delete(id)

	data, err := newEvent(id, EventCloseRequested, struct{}{})
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.CloseAckTimeout)
	defer timer.Stop()

	// A UI whose queue is full cannot collapse in time; it counts as acked.
	for _, c := range targets {
		if !c.enqueue(data, true) {
			s.logger.Debug("close request not queued", zap.String("client", c.id))
			w.resolve(c.id)
		}
	}

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		s.logger.Debug("close request timed out", zap.String("request", id))
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) ack(clientID, requestID string) {
	val, ok := s.waits.Load(requestID)
	if !ok {
		return
	}
	s.acks.Add(1)
	val.(*closeWait).resolve(clientID)
}

// forgetAcks releases pending close requests from a departed UI.
func (s *Server) forgetAcks(clientID string) {
	s.waits.Range(func(_, value any) bool {
		value.(*closeWait).resolve(clientID)
		return true
	})
}

// Shutdown disconnects every UI and waits for connection goroutines.
func (s *Server) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.clients.Range(func(_, value any) bool {
		c := value.(*conn)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		c.close()
		return true
	})
	s.wg.Wait()
}

// conn is one connected UI with its own writer goroutine.
type conn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	timeout time.Duration
	once    sync.Once
}

func newConn(id string, ws *websocket.Conn, timeout time.Duration) *conn {
	return &conn{
		id:      id,
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		timeout: timeout,
	}
}

// enqueue queues a frame. Droppable frames are skipped when the queue is
// full; others wait up to the write timeout.
func (c *conn) enqueue(data []byte, droppable bool) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	if droppable {
		select {
		case c.send <- data:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	case <-timer.C:
		c.close()
		return false
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
