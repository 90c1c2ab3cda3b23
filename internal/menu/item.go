// Package menu implements the per-screen menu controller: what diagnostic
// actions a screen offers right now, and what happens when one is selected.
package menu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Item keys offered by the dev menu.
const (
	KeyReload      = "dev-reload"
	KeyInspector   = "dev-inspector"
	KeyRemoteDebug = "dev-remote-debug"
	KeyHMR         = "dev-hmr"
	KeyPerfMonitor = "dev-perf-monitor"
	KeyLiveReload  = "dev-live-reload"
)

// Order is the presentation priority of known keys. Keys not listed here
// are presented after these, in provider order.
var Order = []string{
	KeyLiveReload,
	KeyHMR,
	KeyRemoteDebug,
	KeyReload,
	KeyPerfMonitor,
	KeyInspector,
}

// Actions are the keys Controller.Select dispatches. dev-reload is an
// action without a listed item; the UI shows it as a separate button.
var Actions = []string{
	KeyReload,
	KeyRemoteDebug,
	KeyHMR,
	KeyInspector,
	KeyPerfMonitor,
}

// IsAction reports whether Select handles key.
func IsAction(key string) bool {
	return slices.Contains(Actions, key)
}

// Item is one selectable menu entry.
type Item struct {
	Label     string `json:"label"`
	IsEnabled bool   `json:"isEnabled"`
	Detail    string `json:"detail,omitempty"`
}

// Entry is an item together with its key.
type Entry struct {
	Key  string `json:"key"`
	Item Item   `json:"item"`
}

// Listing maps keys to items. It remembers insertion order so that
// presentation can fall back to provider order for unlisted keys.
// The zero value is an empty listing ready to use.
type Listing struct {
	keys  []string
	items map[string]Item
}

// Set adds or replaces the item for key. Replacing keeps the key's position.
func (l *Listing) Set(key string, item Item) {
	if l.items == nil {
		l.items = make(map[string]Item)
	}
	if _, ok := l.items[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.items[key] = item
}

// Get returns the item for key.
func (l Listing) Get(key string) (Item, bool) {
	item, ok := l.items[key]
	return item, ok
}

// Keys returns the keys in provider order.
func (l Listing) Keys() []string {
	return append([]string(nil), l.keys...)
}

// Len returns the number of items.
func (l Listing) Len() int { return len(l.keys) }

// Entries returns the items in provider order.
func (l Listing) Entries() []Entry {
	entries := make([]Entry, 0, len(l.keys))
	for _, k := range l.keys {
		entries = append(entries, Entry{Key: k, Item: l.items[k]})
	}
	return entries
}

// MarshalJSON encodes the listing as an object keyed by item key.
func (l Listing) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range l.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(l.items[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by item key, keeping the object's
// key order as provider order.
func (l *Listing) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("menu listing must be a JSON object")
	}

	*l = Listing{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected listing key %v", tok)
		}
		var item Item
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("invalid item %q: %w", key, err)
		}
		l.Set(key, item)
	}

	_, err = dec.Token()
	return err
}

// Presentation returns the listing's entries in presentation order: keys in
// Order first by priority, then any remaining keys in provider order.
func Presentation(l Listing) []Entry {
	entries := l.Entries()
	rank := func(key string) int {
		for i, k := range Order {
			if k == key {
				return i
			}
		}
		return len(Order)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return rank(entries[i].Key) < rank(entries[j].Key)
	})
	return entries
}
