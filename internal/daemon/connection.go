package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

// requestTimeout bounds commands that wait on the UI loop.
const requestTimeout = 10 * time.Second

// Connection represents a client connection to the daemon.
type Connection struct {
	id     int64
	conn   net.Conn
	daemon *Daemon
	logger *zap.Logger

	parser *protocol.Parser
	writer *protocol.Writer

	mu     sync.Mutex // Protects writes
	closed bool
}

// newConnection creates a new connection handler.
func newConnection(id int64, conn net.Conn, daemon *Daemon) *Connection {
	return &Connection{
		id:     id,
		conn:   conn,
		daemon: daemon,
		logger: daemon.logger.With(zap.Int64("client", id)),
		parser: protocol.NewParser(conn),
		writer: protocol.NewWriter(conn),
	}
}

// Handle processes commands from the client until disconnect or error.
func (c *Connection) Handle(ctx context.Context) {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.daemon.config.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.daemon.config.ReadTimeout))
		}

		cmd, err := c.parser.ParseCommand()
		if err != nil {
			if errors.Is(err, io.EOF) || isClosedError(err) {
				return // Client disconnected
			}
			if isTimeoutError(err) {
				continue
			}
			c.logger.Debug("parse error", zap.Error(err))

			var unknown *protocol.ErrUnknownCommand
			if errors.As(err, &unknown) {
				c.writeErr(protocol.ErrInvalidCommand,
					fmt.Sprintf("unknown verb %s, expected one of %s", unknown.Verb, strings.Join(unknown.ValidVerbs, " ")))
				continue
			}
			c.writeErr(protocol.ErrInvalidArgs, err.Error())
			continue
		}

		if err := c.handleCommand(ctx, cmd); err != nil {
			if isClosedError(err) {
				return
			}
			c.logger.Debug("write failed", zap.String("verb", cmd.Verb), zap.Error(err))
		}
	}
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// handleCommand dispatches a command to the appropriate handler.
func (c *Connection) handleCommand(ctx context.Context, cmd *protocol.Command) error {
	switch cmd.Verb {
	case protocol.VerbPing:
		return c.write(func(w *protocol.Writer) error { return w.WritePong() })
	case protocol.VerbInfo:
		return c.writeJSONValue(c.daemon.Info())
	case protocol.VerbShutdown:
		return c.handleShutdown()
	case protocol.VerbScreen:
		return c.handleScreen(cmd)
	case protocol.VerbMenu:
		return c.handleMenu(ctx, cmd)
	case protocol.VerbShake:
		c.daemon.coord.Shake()
		return c.writeOK("shake")
	case protocol.VerbSensor:
		return c.handleSensor(cmd)
	default:
		return c.writeErr(protocol.ErrInvalidCommand, "unknown verb "+cmd.Verb)
	}
}

func (c *Connection) handleShutdown() error {
	err := c.writeOK("shutting down")

	// Stop from another goroutine; Stop waits on this connection.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.daemon.Stop(ctx); err != nil {
			c.logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	return err
}

func (c *Connection) handleScreen(cmd *protocol.Command) error {
	if cmd.SubVerb == protocol.SubVerbList {
		return c.writeJSONValue(c.daemon.Screens())
	}
	if cmd.SubVerb == "" {
		return c.writeErr(protocol.ErrInvalidArgs,
			"SCREEN requires one of "+strings.Join(protocol.SubVerbs(protocol.VerbScreen), " "))
	}
	if len(cmd.Args) != 1 {
		return c.writeErr(protocol.ErrInvalidArgs, "SCREEN "+cmd.SubVerb+" requires a screen id")
	}
	id := host.ScreenID(cmd.Args[0])

	switch cmd.SubVerb {
	case protocol.SubVerbCreate:
		var cfg protocol.ScreenCreateConfig
		if len(cmd.Data) > 0 {
			if err := json.Unmarshal(cmd.Data, &cfg); err != nil {
				return c.writeErr(protocol.ErrInvalidArgs, "invalid screen config: "+err.Error())
			}
		}
		if err := c.daemon.CreateScreen(id, cfg); err != nil {
			return c.writeError(err)
		}
		return c.writeOK("created " + string(id))

	case protocol.SubVerbFocus:
		if err := c.daemon.FocusScreen(id); err != nil {
			return c.writeError(err)
		}
		return c.writeOK("focused " + string(id))

	case protocol.SubVerbDestroy:
		if err := c.daemon.DestroyScreen(id); err != nil {
			return c.writeError(err)
		}
		return c.writeOK("destroyed " + string(id))

	case protocol.SubVerbSettings:
		if len(cmd.Data) == 0 {
			return c.writeErr(protocol.ErrInvalidArgs, "SCREEN SETTINGS requires a flags payload")
		}
		var flags protocol.ScreenFlags
		if err := json.Unmarshal(cmd.Data, &flags); err != nil {
			return c.writeErr(protocol.ErrInvalidArgs, "invalid flags: "+err.Error())
		}
		if err := c.daemon.SetScreenFlags(id, devsupport.Flags(flags)); err != nil {
			return c.writeError(err)
		}
		return c.writeOK("updated " + string(id))
	}

	return c.writeErr(protocol.ErrInvalidCommand, "unknown SCREEN sub-verb "+cmd.SubVerb)
}

func (c *Connection) handleMenu(ctx context.Context, cmd *protocol.Command) error {
	ov := c.daemon.coord.Overlay()

	switch cmd.SubVerb {
	case protocol.SubVerbShow, protocol.SubVerbHide, protocol.SubVerbToggle:
		if len(cmd.Args) > 1 {
			return c.writeErr(protocol.ErrInvalidArgs, "MENU "+cmd.SubVerb+" takes at most one screen id")
		}
		if len(cmd.Args) == 0 {
			switch cmd.SubVerb {
			case protocol.SubVerbShow:
				ov.ShowInCurrent()
			case protocol.SubVerbHide:
				ov.HideInCurrent()
			default:
				ov.ToggleInCurrent()
			}
			return c.writeOK(strings.ToLower(cmd.SubVerb))
		}

		id := host.ScreenID(cmd.Args[0])
		if _, err := c.daemon.screen(id); err != nil {
			return c.writeError(err)
		}
		switch cmd.SubVerb {
		case protocol.SubVerbShow:
			ov.Show(id)
		case protocol.SubVerbHide:
			ov.Hide(id)
		default:
			ov.Toggle(id)
		}
		return c.writeOK(strings.ToLower(cmd.SubVerb) + " " + string(id))

	case protocol.SubVerbStatus:
		return c.writeJSONValue(c.daemon.coord.Status())

	case protocol.SubVerbItems:
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		items, err := c.daemon.coord.ListItems(ctx)
		if err != nil {
			return c.writeError(err)
		}
		return c.writeJSONValue(items)

	case protocol.SubVerbSelect:
		if len(cmd.Args) != 1 {
			return c.writeErr(protocol.ErrInvalidArgs, "MENU SELECT requires an item key")
		}
		key := cmd.Args[0]

		if !menu.IsAction(key) {
			return c.writeErr(protocol.ErrNotFound, "no menu action "+key)
		}

		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if err := c.daemon.coord.Select(ctx, key); err != nil {
			return c.writeError(err)
		}
		return c.writeOK("selected " + key)
	}

	return c.writeErr(protocol.ErrInvalidArgs,
		"MENU requires one of "+strings.Join(protocol.SubVerbs(protocol.VerbMenu), " "))
}

func (c *Connection) handleSensor(cmd *protocol.Command) error {
	if len(cmd.Args) != 3 {
		return c.writeErr(protocol.ErrInvalidArgs, "SENSOR requires x y z")
	}
	var v [3]float64
	for i, arg := range cmd.Args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return c.writeErr(protocol.ErrInvalidArgs, fmt.Sprintf("invalid sample value %q", arg))
		}
		v[i] = f
	}

	queued, err := c.daemon.Sensor(v[0], v[1], v[2])
	if err != nil {
		return c.writeError(err)
	}
	if !queued {
		return c.writeOK("dropped")
	}
	return c.writeOK("queued")
}

// writeError maps a daemon error onto a protocol error code.
func (c *Connection) writeError(err error) error {
	code := protocol.ErrInternal
	switch {
	case errors.Is(err, ErrScreenNotFound):
		code = protocol.ErrNotFound
	case errors.Is(err, ErrScreenExists):
		code = protocol.ErrAlreadyExists
	case errors.Is(err, ErrShakeDisabled):
		code = protocol.ErrInvalidState
	case errors.Is(err, devmenu.ErrNotStarted):
		code = protocol.ErrShuttingDown
	case errors.Is(err, context.DeadlineExceeded):
		code = protocol.ErrTimeout
	}
	return c.writeErr(code, err.Error())
}

func (c *Connection) writeOK(msg string) error {
	return c.write(func(w *protocol.Writer) error { return w.WriteOK(msg) })
}

func (c *Connection) writeErr(code protocol.ErrorCode, msg string) error {
	return c.write(func(w *protocol.Writer) error { return w.WriteErr(code, msg) })
}

func (c *Connection) writeJSONValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return c.writeErr(protocol.ErrInternal, err.Error())
	}
	return c.write(func(w *protocol.Writer) error { return w.WriteJSON(data) })
}

// write serializes a response under the write lock and deadline.
func (c *Connection) write(fn func(*protocol.Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return net.ErrClosed
	}
	if c.daemon.config.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.daemon.config.WriteTimeout))
	}
	return fn(c.writer)
}

func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
