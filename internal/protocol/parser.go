package protocol

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	// CommandTerminator ends every command and response, payload included.
	CommandTerminator = ";;"

	// DataMarker introduces "LENGTH\nBASE64" after the arguments.
	DataMarker = "--"
)

// Parser reads framed commands or responses from a stream:
//
//	VERB [SUBVERB] [ARGS...] [-- LENGTH\nBASE64];;
//
// For example:
//
//	PING;;
//	MENU TOGGLE main;;
//	SENSOR 0.4 -14.2 9.8;;
//	SCREEN CREATE main -- 36\neyJtYW5pZmVzdFVybCI6ImV4cDovL2FwcCJ9;;
type Parser struct {
	reader *bufio.Reader
}

// NewParser creates a parser reading from r.
func NewParser(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// ValidVerbs lists all valid command verbs.
var ValidVerbs = []string{
	VerbPing, VerbInfo, VerbShutdown, VerbScreen, VerbMenu, VerbShake, VerbSensor,
}

// ErrJSONInsteadOfCommand is returned for a frame that looks like JSON.
var ErrJSONInsteadOfCommand = errors.New("json_instead_of_command")

// ErrUnknownCommand is returned for a verb outside ValidVerbs.
type ErrUnknownCommand struct {
	Verb       string
	ValidVerbs []string
}

func (e *ErrUnknownCommand) Error() string {
	return "unknown_command:" + e.Verb
}

// frame is one terminated message split into its words and payload.
type frame struct {
	words []string
	data  []byte
}

// next reads and splits the next frame. It returns io.EOF only when the
// stream ends cleanly between frames.
func (p *Parser) next(kind string) (frame, error) {
	var sb strings.Builder
	for {
		chunk, err := p.reader.ReadString(';')
		sb.WriteString(chunk)
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(sb.String()) != "" {
				return frame{}, fmt.Errorf("unexpected EOF, missing terminator %q", CommandTerminator)
			}
			return frame{}, err
		}
		if strings.HasSuffix(sb.String(), CommandTerminator) {
			break
		}
	}

	body := strings.TrimSpace(strings.TrimSuffix(sb.String(), CommandTerminator))
	if body == "" {
		return frame{}, fmt.Errorf("empty %s", kind)
	}
	if body[0] == '{' || body[0] == '[' {
		return frame{}, ErrJSONInsteadOfCommand
	}

	head, payload, hasData := strings.Cut(body, " "+DataMarker+" ")
	if !hasData && (head == DataMarker || strings.HasSuffix(head, " "+DataMarker)) {
		return frame{}, errors.New("data marker present but no data length")
	}

	f := frame{words: strings.Fields(head)}
	if len(f.words) == 0 {
		return frame{}, fmt.Errorf("empty %s", kind)
	}
	if hasData {
		data, err := decodePayload(payload)
		if err != nil {
			return frame{}, fmt.Errorf("failed to parse data: %w", err)
		}
		f.data = data
	}
	return f, nil
}

// decodePayload decodes "LENGTH\nBASE64", checking the declared length.
func decodePayload(payload string) ([]byte, error) {
	lengthStr, encoded, ok := strings.Cut(payload, "\n")
	if !ok {
		return nil, errors.New("data length without data content (missing newline)")
	}
	length, err := strconv.Atoi(strings.TrimSpace(lengthStr))
	if err != nil {
		return nil, fmt.Errorf("invalid data length %q: %w", lengthStr, err)
	}
	if len(encoded) != length {
		return nil, fmt.Errorf("data length mismatch: expected %d, got %d", length, len(encoded))
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	return data, nil
}

// ParseCommand reads the next command. A second word that is a known
// sub-verb of the verb becomes SubVerb; everything else is an argument.
func (p *Parser) ParseCommand() (*Command, error) {
	f, err := p.next("command")
	if err != nil {
		return nil, err
	}

	cmd := &Command{Verb: strings.ToUpper(f.words[0]), Data: f.data}
	if !slices.Contains(ValidVerbs, cmd.Verb) {
		return nil, &ErrUnknownCommand{Verb: cmd.Verb, ValidVerbs: ValidVerbs}
	}

	args := f.words[1:]
	if len(args) > 0 {
		if sub := strings.ToUpper(args[0]); slices.Contains(SubVerbs(cmd.Verb), sub) {
			cmd.SubVerb = sub
			args = args[1:]
		}
	}
	if len(args) > 0 {
		cmd.Args = args
	}
	return cmd, nil
}

// ParseResponse reads the next response.
func (p *Parser) ParseResponse() (*Response, error) {
	f, err := p.next("response")
	if err != nil {
		return nil, err
	}

	resp := &Response{Type: ResponseType(strings.ToUpper(f.words[0]))}
	rest := f.words[1:]

	switch resp.Type {
	case ResponseOK:
		resp.Message = strings.Join(rest, " ")
	case ResponseErr:
		if len(rest) > 0 {
			resp.Code = rest[0]
			resp.Message = strings.Join(rest[1:], " ")
		}
	case ResponsePong:
	case ResponseJSON:
		if f.data == nil {
			return nil, fmt.Errorf("%s response requires data", resp.Type)
		}
		resp.Data = f.data
	default:
		return nil, fmt.Errorf("unknown response type: %s", resp.Type)
	}
	return resp, nil
}

// FormatCommand encodes cmd as one frame.
func FormatCommand(cmd *Command) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(slices.Concat([]string{cmd.Verb}, nonEmpty(cmd.SubVerb), cmd.Args), " "))
	if len(cmd.Data) > 0 {
		writeData(&buf, cmd.Data)
	}
	buf.WriteString(CommandTerminator)
	return buf.Bytes()
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// Writer writes framed messages to a stream.
type Writer struct {
	w io.Writer
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(frame []byte) error {
	_, err := w.w.Write(frame)
	return err
}

// WriteOK writes an OK response.
func (w *Writer) WriteOK(message string) error { return w.write(FormatOK(message)) }

// WriteErr writes an error response.
func (w *Writer) WriteErr(code ErrorCode, message string) error {
	return w.write(FormatErr(code, message))
}

// WritePong writes a PONG response.
func (w *Writer) WritePong() error { return w.write(FormatPong()) }

// WriteJSON writes a JSON response.
func (w *Writer) WriteJSON(data []byte) error { return w.write(FormatJSON(data)) }

// WriteCommand writes a command.
func (w *Writer) WriteCommand(cmd *Command) error { return w.write(FormatCommand(cmd)) }
