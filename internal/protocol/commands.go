// Package protocol defines the text-based control protocol spoken on the
// devmenu control socket.
package protocol

// Command represents a parsed command from the client.
type Command struct {
	Verb    string   // Primary command verb (SCREEN, MENU, etc.)
	SubVerb string   // Optional sub-verb (CREATE, SHOW, etc.)
	Args    []string // Positional arguments
	Data    []byte   // Optional JSON data payload
}

// Command verbs
const (
	VerbPing     = "PING"
	VerbInfo     = "INFO"
	VerbShutdown = "SHUTDOWN"
	VerbScreen   = "SCREEN"
	VerbMenu     = "MENU"
	VerbShake    = "SHAKE"
	VerbSensor   = "SENSOR"
)

// Screen sub-verbs
const (
	SubVerbCreate   = "CREATE"
	SubVerbFocus    = "FOCUS"
	SubVerbDestroy  = "DESTROY"
	SubVerbList     = "LIST"
	SubVerbSettings = "SETTINGS"
)

// Menu sub-verbs
const (
	SubVerbShow   = "SHOW"
	SubVerbHide   = "HIDE"
	SubVerbToggle = "TOGGLE"
	SubVerbStatus = "STATUS"
	SubVerbItems  = "ITEMS"
	SubVerbSelect = "SELECT"
)

// subVerbs maps each verb taking sub-verbs to the ones it accepts.
var subVerbs = map[string][]string{
	VerbScreen: {SubVerbCreate, SubVerbFocus, SubVerbDestroy, SubVerbList, SubVerbSettings},
	VerbMenu:   {SubVerbShow, SubVerbHide, SubVerbToggle, SubVerbStatus, SubVerbItems, SubVerbSelect},
}

// SubVerbs returns the sub-verbs accepted by verb.
func SubVerbs(verb string) []string {
	return subVerbs[verb]
}

// ScreenCreateConfig is the optional payload of SCREEN CREATE.
type ScreenCreateConfig struct {
	// ManifestURL and Manifest describe the screen's task.
	ManifestURL string         `json:"manifestUrl,omitempty"`
	Manifest    map[string]any `json:"manifest,omitempty"`

	// Flags overrides the development flags the screen starts with.
	Flags *ScreenFlags `json:"flags,omitempty"`

	// OverlayPermission is whether drawing over other apps is already
	// allowed; GrantOnRequest is what a permission request answers.
	OverlayPermission *bool `json:"overlay_permission,omitempty"`
	GrantOnRequest    *bool `json:"grant_on_request,omitempty"`
}

// ScreenFlags is the payload of SCREEN SETTINGS.
type ScreenFlags struct {
	Attached    bool `json:"attached"`
	Internal    bool `json:"internal"`
	DevSupport  bool `json:"dev_support"`
	JSDevMode   bool `json:"js_dev_mode"`
	RemoteDebug bool `json:"remote_debug"`
	FastRefresh bool `json:"fast_refresh"`
	PerfMonitor bool `json:"perf_monitor"`
}
