package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/standardbeagle/devmenu/internal/devmenu"
	"github.com/standardbeagle/devmenu/internal/devsupport"
	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
	"github.com/standardbeagle/devmenu/internal/protocol"
)

var (
	// ErrNotConnected is returned when trying to use a closed client.
	ErrNotConnected = errors.New("not connected to daemon")
	// ErrServerError is returned when the daemon returns an error response.
	ErrServerError = errors.New("daemon error")
)

// Client is a client for communicating with the daemon over the socket.
// Calls are serialized; one command is in flight at a time.
type Client struct {
	conn   net.Conn
	parser *protocol.Parser
	writer *protocol.Writer

	mu     sync.Mutex // Protects connection state
	closed bool

	// Options
	socketPath string
	timeout    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSocketPath sets the socket path for the client.
func WithSocketPath(path string) ClientOption {
	return func(c *Client) {
		c.socketPath = path
	}
}

// WithTimeout sets the timeout of each round trip.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a new daemon client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		socketPath: DefaultSocketPath(),
		timeout:    15 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect connects to the daemon.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.closed {
		return nil
	}

	conn, err := Connect(c.socketPath, c.timeout)
	if err != nil {
		return err
	}

	c.conn = conn
	c.parser = protocol.NewParser(conn)
	c.writer = protocol.NewWriter(conn)
	c.closed = false

	return nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return nil
	}

	c.closed = true
	return c.conn.Close()
}

// Ping sends a ping to the daemon and waits for a pong response.
func (c *Client) Ping() error {
	resp, err := c.roundTrip(&protocol.Command{Verb: protocol.VerbPing})
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponsePong {
		return fmt.Errorf("expected PONG, got %s", resp.Type)
	}
	return nil
}

// Info retrieves daemon information.
func (c *Client) Info() (*Info, error) {
	var info Info
	if err := c.sendJSON(&protocol.Command{Verb: protocol.VerbInfo}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown() error {
	_, err := c.sendOK(&protocol.Command{Verb: protocol.VerbShutdown})
	return err
}

// ScreenCreate creates a screen and brings it to the foreground.
func (c *Client) ScreenCreate(id host.ScreenID, cfg protocol.ScreenCreateConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal screen config: %w", err)
	}
	_, err = c.sendOK(&protocol.Command{
		Verb:    protocol.VerbScreen,
		SubVerb: protocol.SubVerbCreate,
		Args:    []string{string(id)},
		Data:    data,
	})
	return err
}

// ScreenFocus brings a screen to the foreground.
func (c *Client) ScreenFocus(id host.ScreenID) error {
	return c.screenCommand(protocol.SubVerbFocus, id)
}

// ScreenDestroy destroys a screen.
func (c *Client) ScreenDestroy(id host.ScreenID) error {
	return c.screenCommand(protocol.SubVerbDestroy, id)
}

// ScreenList lists the daemon's screens.
func (c *Client) ScreenList() ([]ScreenInfo, error) {
	var screens []ScreenInfo
	err := c.sendJSON(&protocol.Command{Verb: protocol.VerbScreen, SubVerb: protocol.SubVerbList}, &screens)
	return screens, err
}

// ScreenSettings replaces a screen's development flags.
func (c *Client) ScreenSettings(id host.ScreenID, flags devsupport.Flags) error {
	data, err := json.Marshal(protocol.ScreenFlags(flags))
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	_, err = c.sendOK(&protocol.Command{
		Verb:    protocol.VerbScreen,
		SubVerb: protocol.SubVerbSettings,
		Args:    []string{string(id)},
		Data:    data,
	})
	return err
}

// MenuShow shows the overlay in a screen, or the current one when id is empty.
func (c *Client) MenuShow(id host.ScreenID) error {
	return c.menuCommand(protocol.SubVerbShow, id)
}

// MenuHide hides the overlay in a screen, or the current one when id is empty.
func (c *Client) MenuHide(id host.ScreenID) error {
	return c.menuCommand(protocol.SubVerbHide, id)
}

// MenuToggle toggles the overlay in a screen, or the current one when id is empty.
func (c *Client) MenuToggle(id host.ScreenID) error {
	return c.menuCommand(protocol.SubVerbToggle, id)
}

// MenuStatus returns a snapshot of the dev menu.
func (c *Client) MenuStatus() (*devmenu.Status, error) {
	var status devmenu.Status
	if err := c.sendJSON(&protocol.Command{Verb: protocol.VerbMenu, SubVerb: protocol.SubVerbStatus}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// MenuItems lists the current screen's menu items.
func (c *Client) MenuItems() (menu.Listing, error) {
	var items menu.Listing
	err := c.sendJSON(&protocol.Command{Verb: protocol.VerbMenu, SubVerb: protocol.SubVerbItems}, &items)
	return items, err
}

// MenuSelect selects a menu item of the current screen.
func (c *Client) MenuSelect(key string) error {
	_, err := c.sendOK(&protocol.Command{
		Verb:    protocol.VerbMenu,
		SubVerb: protocol.SubVerbSelect,
		Args:    []string{key},
	})
	return err
}

// Shake toggles the overlay as a detected shake does.
func (c *Client) Shake() error {
	_, err := c.sendOK(&protocol.Command{Verb: protocol.VerbShake})
	return err
}

// Sensor sends one accelerometer sample. It reports whether the daemon
// queued it.
func (c *Client) Sensor(x, y, z float64) (bool, error) {
	msg, err := c.sendOK(&protocol.Command{
		Verb: protocol.VerbSensor,
		Args: []string{formatFloat(x), formatFloat(y), formatFloat(z)},
	})
	if err != nil {
		return false, err
	}
	return msg == "queued", nil
}

func (c *Client) screenCommand(subVerb string, id host.ScreenID) error {
	_, err := c.sendOK(&protocol.Command{
		Verb:    protocol.VerbScreen,
		SubVerb: subVerb,
		Args:    []string{string(id)},
	})
	return err
}

func (c *Client) menuCommand(subVerb string, id host.ScreenID) error {
	cmd := &protocol.Command{Verb: protocol.VerbMenu, SubVerb: subVerb}
	if id != "" {
		cmd.Args = []string{string(id)}
	}
	_, err := c.sendOK(cmd)
	return err
}

// sendOK sends a command expecting an OK response and returns its message.
func (c *Client) sendOK(cmd *protocol.Command) (string, error) {
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return "", err
	}
	if resp.Type != protocol.ResponseOK {
		return "", fmt.Errorf("expected OK response, got %s", resp.Type)
	}
	return resp.Message, nil
}

// sendJSON sends a command expecting a JSON response decoded into v.
func (c *Client) sendJSON(cmd *protocol.Command, v any) error {
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return err
	}
	if resp.Type != protocol.ResponseJSON {
		return fmt.Errorf("expected JSON response, got %s", resp.Type)
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cmd.Verb, err)
	}
	return nil
}

func (c *Client) roundTrip(cmd *protocol.Command) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return nil, ErrNotConnected
	}

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := c.writer.WriteCommand(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	resp, err := c.parser.ParseResponse()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.Type == protocol.ResponseErr {
		return nil, fmt.Errorf("%w: [%s] %s", ErrServerError, resp.Code, resp.Message)
	}
	return resp, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
