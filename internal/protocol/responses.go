package protocol

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
)

// ResponseType indicates the type of response.
type ResponseType string

const (
	ResponseOK   ResponseType = "OK"
	ResponseErr  ResponseType = "ERR"
	ResponseJSON ResponseType = "JSON"
	ResponsePong ResponseType = "PONG"
)

// Response represents a response from the daemon.
type Response struct {
	Type    ResponseType
	Message string // For OK/ERR responses
	Code    string // Error code for ERR responses
	Data    []byte // Payload of JSON responses
}

// ErrorCode represents daemon error codes.
type ErrorCode string

const (
	ErrNotFound       ErrorCode = "not_found"
	ErrAlreadyExists  ErrorCode = "already_exists"
	ErrShuttingDown   ErrorCode = "shutting_down"
	ErrInvalidArgs    ErrorCode = "invalid_args"
	ErrInvalidCommand ErrorCode = "invalid_command"
	ErrInvalidState   ErrorCode = "invalid_state"
	ErrTimeout        ErrorCode = "timeout"
	ErrInternal       ErrorCode = "internal"
)

// FormatOK formats a simple OK response.
func FormatOK(message string) []byte {
	if message == "" {
		return []byte("OK" + CommandTerminator)
	}
	return []byte("OK " + sanitize(message) + CommandTerminator)
}

// FormatErr formats an error response.
func FormatErr(code ErrorCode, message string) []byte {
	return []byte("ERR " + string(code) + " " + sanitize(message) + CommandTerminator)
}

// FormatPong formats a PONG response.
func FormatPong() []byte {
	return []byte("PONG" + CommandTerminator)
}

// FormatJSON formats a JSON response. The payload travels base64 encoded
// after the data marker, like command data.
func FormatJSON(data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(string(ResponseJSON))
	writeData(&buf, data)
	buf.WriteString(CommandTerminator)
	return buf.Bytes()
}

func writeData(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	buf.WriteByte(' ')
	buf.WriteString(DataMarker)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(len(encoded)))
	buf.WriteByte('\n')
	buf.WriteString(encoded)
}

// sanitize keeps free text from forming a terminator or data marker.
func sanitize(message string) string {
	message = strings.NewReplacer(";", ",", "\r", " ", "\n", " ").Replace(message)
	for strings.Contains(message, "--") {
		message = strings.ReplaceAll(message, "--", "-")
	}
	return message
}
