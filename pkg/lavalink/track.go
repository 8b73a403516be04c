package lavalink

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Track describes one playable item as returned by a node. The Encoded token
// is opaque and only understood by the node. A Track is never modified after
// construction; players and queues share the same pointer.
type Track struct {
	Encoded    string
	Identifier string
	Seekable   bool
	Author     string
	Duration   int64 // milliseconds
	Stream     bool
	Title      string
	URI        string
	Requester  string
	Extra      map[string]any
}

// NewTrack builds a Track from a decoded node payload of the form
// {"track": "...", "info": {...}}.
func NewTrack(data map[string]any, requester string, extra map[string]any) (*Track, error) {
	encoded, err := field[string](data, "track")
	if err != nil {
		return nil, err
	}

	rawInfo, ok := data["info"]
	if !ok {
		return nil, &MissingFieldError{Field: "info"}
	}
	info, ok := rawInfo.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: info has type %T", ErrInvalidTrack, rawInfo)
	}

	t := &Track{Encoded: encoded, Requester: requester, Extra: maps.Clone(extra)}
	if t.Extra == nil {
		t.Extra = map[string]any{}
	}

	if t.Identifier, err = field[string](info, "identifier"); err != nil {
		return nil, err
	}
	if t.Seekable, err = field[bool](info, "isSeekable"); err != nil {
		return nil, err
	}
	if t.Author, err = field[string](info, "author"); err != nil {
		return nil, err
	}
	if t.Duration, err = millis(info, "length"); err != nil {
		return nil, err
	}
	if t.Stream, err = field[bool](info, "isStream"); err != nil {
		return nil, err
	}
	if t.Title, err = field[string](info, "title"); err != nil {
		return nil, err
	}
	if t.URI, err = field[string](info, "uri"); err != nil {
		return nil, err
	}

	return t, nil
}

// TrackFromJSON decodes raw node JSON and builds a Track from it.
func TrackFromJSON(raw []byte, requester string, extra map[string]any) (*Track, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrack, err)
	}
	return NewTrack(data, requester, extra)
}

func (t *Track) String() string {
	return fmt.Sprintf("<Track title=%q identifier=%s>", t.Title, t.Identifier)
}

func field[T any](m map[string]any, key string) (T, error) {
	var zero T
	raw, ok := m[key]
	if !ok {
		return zero, &MissingFieldError{Field: key}
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T", ErrInvalidTrack, key, raw)
	}
	return v, nil
}

func millis(m map[string]any, key string) (int64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, &MissingFieldError{Field: key}
	}

	var v int64
	switch n := raw.(type) {
	case float64:
		v = int64(n)
	case int:
		v = int64(n)
	case int64:
		v = n
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidTrack, key, err)
		}
		v = i
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidTrack, key, raw)
	}

	if v < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalidTrack, key)
	}
	return v, nil
}
