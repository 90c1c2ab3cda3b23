package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseCommand_Simple(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Command
	}{
		{
			name:  "PING",
			input: "PING;;",
			want:  &Command{Verb: "PING"},
		},
		{
			name:  "INFO lowercase",
			input: "info;;",
			want:  &Command{Verb: "INFO"},
		},
		{
			name:  "SHUTDOWN with surrounding whitespace",
			input: "\r\n SHUTDOWN \r\n;;",
			want:  &Command{Verb: "SHUTDOWN"},
		},
		{
			name:  "SHAKE",
			input: "SHAKE;;",
			want:  &Command{Verb: "SHAKE"},
		},
		{
			name:  "SENSOR with negative values",
			input: "SENSOR 0.4 -14.2 9.8;;",
			want:  &Command{Verb: "SENSOR", Args: []string{"0.4", "-14.2", "9.8"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(strings.NewReader(tt.input))
			got, err := parser.ParseCommand()
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got.Verb != tt.want.Verb {
				t.Errorf("Verb = %v, want %v", got.Verb, tt.want.Verb)
			}
			if got.SubVerb != "" {
				t.Errorf("SubVerb = %v, want none", got.SubVerb)
			}
			if strings.Join(got.Args, " ") != strings.Join(tt.want.Args, " ") {
				t.Errorf("Args = %v, want %v", got.Args, tt.want.Args)
			}
		})
	}
}

func TestParseCommand_WithSubVerb(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Command
	}{
		{
			name:  "SCREEN CREATE",
			input: "SCREEN CREATE main;;",
			want:  &Command{Verb: "SCREEN", SubVerb: "CREATE", Args: []string{"main"}},
		},
		{
			name:  "SCREEN LIST",
			input: "SCREEN LIST;;",
			want:  &Command{Verb: "SCREEN", SubVerb: "LIST"},
		},
		{
			name:  "MENU TOGGLE without screen",
			input: "MENU TOGGLE;;",
			want:  &Command{Verb: "MENU", SubVerb: "TOGGLE"},
		},
		{
			name:  "menu select lowercase",
			input: "menu select dev-hmr;;",
			want:  &Command{Verb: "MENU", SubVerb: "SELECT", Args: []string{"dev-hmr"}},
		},
		{
			name:  "sub-verb of another verb is an argument",
			input: "MENU CREATE main;;",
			want:  &Command{Verb: "MENU", Args: []string{"CREATE", "main"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(strings.NewReader(tt.input))
			got, err := parser.ParseCommand()
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if got.Verb != tt.want.Verb {
				t.Errorf("Verb = %v, want %v", got.Verb, tt.want.Verb)
			}
			if got.SubVerb != tt.want.SubVerb {
				t.Errorf("SubVerb = %v, want %v", got.SubVerb, tt.want.SubVerb)
			}
			if strings.Join(got.Args, " ") != strings.Join(tt.want.Args, " ") {
				t.Errorf("Args = %v, want %v", got.Args, tt.want.Args)
			}
		})
	}
}

func TestParseCommand_WithData(t *testing.T) {
	input := "SCREEN CREATE main -- 36\neyJtYW5pZmVzdFVybCI6ImV4cDovL2FwcCJ9;;"

	got, err := NewParser(strings.NewReader(input)).ParseCommand()
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if got.SubVerb != SubVerbCreate || len(got.Args) != 1 || got.Args[0] != "main" {
		t.Errorf("got %+v", got)
	}
	if want := `{"manifestUrl":"exp://app"}`; string(got.Data) != want {
		t.Errorf("Data = %s, want %s", got.Data, want)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{
			name:  "unknown verb",
			input: "PROC LIST;;",
			check: func(err error) bool {
				var unknown *ErrUnknownCommand
				return errors.As(err, &unknown) && unknown.Verb == "PROC"
			},
		},
		{
			name:  "json instead of command",
			input: `{"verb":"PING"};;`,
			check: func(err error) bool { return errors.Is(err, ErrJSONInsteadOfCommand) },
		},
		{
			name:  "empty",
			input: "  ;;",
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "data marker without length",
			input: "SCREEN CREATE main --;;",
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "length mismatch",
			input: "SCREEN CREATE main -- 10\nYWJj;;",
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "missing terminator",
			input: "PING",
			check: func(err error) bool { return err != nil && strings.Contains(err.Error(), "missing terminator") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(strings.NewReader(tt.input)).ParseCommand()
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseCommand_Sequence(t *testing.T) {
	parser := NewParser(strings.NewReader("PING;;MENU STATUS;;SHAKE;;"))

	var verbs []string
	for range 3 {
		cmd, err := parser.ParseCommand()
		if err != nil {
			t.Fatalf("ParseCommand() error = %v", err)
		}
		verbs = append(verbs, cmd.Verb)
	}
	if got := strings.Join(verbs, ","); got != "PING,MENU,SHAKE" {
		t.Errorf("verbs = %s", got)
	}
}

func TestParseCommand_SingleSemicolonIsNotTerminator(t *testing.T) {
	parser := NewParser(strings.NewReader("MENU SELECT a;b;;PING;;"))

	cmd, err := parser.ParseCommand()
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if len(cmd.Args) != 1 || cmd.Args[0] != "a;b" {
		t.Errorf("Args = %v, want [a;b]", cmd.Args)
	}

	cmd, err = parser.ParseCommand()
	if err != nil || cmd.Verb != VerbPing {
		t.Errorf("second command = %+v, %v", cmd, err)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Response
	}{
		{
			name:  "OK",
			input: FormatOK(""),
			want:  Response{Type: ResponseOK},
		},
		{
			name:  "OK with message",
			input: FormatOK("screen main created"),
			want:  Response{Type: ResponseOK, Message: "screen main created"},
		},
		{
			name:  "ERR",
			input: FormatErr(ErrNotFound, "screen ghost"),
			want:  Response{Type: ResponseErr, Code: "not_found", Message: "screen ghost"},
		},
		{
			name:  "PONG",
			input: FormatPong(),
			want:  Response{Type: ResponsePong},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser(bytes.NewReader(tt.input)).ParseResponse()
			if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}
			if got.Type != tt.want.Type || got.Code != tt.want.Code || got.Message != tt.want.Message {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatErr_SanitizesMessage(t *testing.T) {
	msg := "bad;; input -- with\nnewline;;;"
	resp, err := NewParser(bytes.NewReader(FormatErr(ErrInvalidArgs, msg))).ParseResponse()
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.Type != ResponseErr || resp.Code != string(ErrInvalidArgs) {
		t.Errorf("got %+v", resp)
	}
	if strings.Contains(resp.Message, ";;") || strings.Contains(resp.Message, "--") {
		t.Errorf("message not sanitized: %q", resp.Message)
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteOK("done"); err != nil {
		t.Errorf("WriteOK failed: %v", err)
	}
	if got := buf.String(); got != "OK done;;" {
		t.Errorf("WriteOK = %q, want %q", got, "OK done;;")
	}
	buf.Reset()

	if err := w.WriteErr(ErrNotFound, "ghost"); err != nil {
		t.Errorf("WriteErr failed: %v", err)
	}
	if got := buf.String(); got != "ERR not_found ghost;;" {
		t.Errorf("WriteErr = %q, want %q", got, "ERR not_found ghost;;")
	}
	buf.Reset()

	if err := w.WritePong(); err != nil {
		t.Errorf("WritePong failed: %v", err)
	}
	if got := buf.String(); got != "PONG;;" {
		t.Errorf("WritePong = %q, want %q", got, "PONG;;")
	}
}

func TestRoundTrip(t *testing.T) {
	original := &Command{
		Verb:    VerbScreen,
		SubVerb: SubVerbSettings,
		Args:    []string{"main"},
		Data:    []byte(`{"dev_support":true}`),
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteCommand(original); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	parsed, err := NewParser(&buf).ParseCommand()
	if err != nil {
		t.Fatalf("Failed to parse command: %v", err)
	}
	if parsed.Verb != original.Verb || parsed.SubVerb != original.SubVerb {
		t.Errorf("parsed %+v, want %+v", parsed, original)
	}
	if string(parsed.Data) != string(original.Data) {
		t.Errorf("Data = %s, want %s", parsed.Data, original.Data)
	}

	// JSON payloads may contain the terminator; base64 keeps them intact.
	jsonData := []byte(`{"label":"a;;b -- c"}`)
	resp, err := NewParser(bytes.NewReader(FormatJSON(jsonData))).ParseResponse()
	if err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if resp.Type != ResponseJSON {
		t.Errorf("Type = %v, want JSON", resp.Type)
	}
	if string(resp.Data) != string(jsonData) {
		t.Errorf("Data = %s, want %s", resp.Data, jsonData)
	}
}
