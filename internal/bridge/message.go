// Package bridge carries the round-trip protocol between the native dev menu
// and its overlay UI: JSON messages over a websocket.
//
// The UI sends requests (close, listItems, select, onboarding flag, reloadApp,
// goHome) and receives responses. The native side pushes events: render
// carries the overlay view state and closeRequested asks the UI to run its
// collapse animation, which the UI confirms with an ack carrying the event id.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/standardbeagle/devmenu/internal/host"
	"github.com/standardbeagle/devmenu/internal/menu"
)

// Kind is the message kind.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
	KindAck      Kind = "ack"
)

// Request methods.
const (
	MethodClose                 = "close"
	MethodListItems             = "listItems"
	MethodSelect                = "select"
	MethodGetOnboardingFinished = "getOnboardingFinished"
	MethodSetOnboardingFinished = "setOnboardingFinished"
	MethodReloadApp             = "reloadApp"
	MethodGoHome                = "goHome"
)

// Events pushed to the UI.
const (
	EventCloseRequested = "closeRequested"
	EventRender         = "render"
)

// Error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	// ErrNotConnected is returned by client calls after the connection ended.
	ErrNotConnected = errors.New("bridge not connected")

	// ErrAckTimeout is returned by RequestClose when some UI did not ack in time.
	ErrAckTimeout = errors.New("close request not acknowledged")

	// ErrServerClosed is returned by servers used after Shutdown.
	ErrServerClosed = errors.New("bridge server closed")
)

// Message is the envelope of every frame.
type Message struct {
	ID     string          `json:"id,omitempty"`
	Kind   Kind            `json:"kind"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is a failed request's error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// SelectParams are the params of select.
type SelectParams struct {
	Key string `json:"key"`
}

// OnboardingParams are the params of setOnboardingFinished.
type OnboardingParams struct {
	Finished bool `json:"finished"`
}

// RenderEvent is the overlay view state pushed with every change.
type RenderEvent struct {
	Attached bool          `json:"attached"`
	Screen   host.ScreenID `json:"screen,omitempty"`
	Visible  bool          `json:"visible"`
	Props    menu.Props    `json:"props"`
	Alpha    float64       `json:"alpha"`
	Scale    float64       `json:"scale"`
}

func newEvent(id, method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{ID: id, Kind: KindEvent, Method: method, Params: raw})
}
