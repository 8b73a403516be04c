package lavalink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackData() map[string]any {
	return map[string]any{
		"track": "QAAAjQIAJVJpY2sgQXN0bGV5",
		"info": map[string]any{
			"identifier": "dQw4w9WgXcQ",
			"isSeekable": true,
			"author":     "RickAstleyVEVO",
			"length":     float64(212000),
			"isStream":   false,
			"title":      "Never Gonna Give You Up",
			"uri":        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
	}
}

func TestNewTrack(t *testing.T) {
	extra := map[string]any{"source": "search"}
	tr, err := NewTrack(trackData(), "42", extra)
	require.NoError(t, err)

	assert.Equal(t, "QAAAjQIAJVJpY2sgQXN0bGV5", tr.Encoded)
	assert.Equal(t, "dQw4w9WgXcQ", tr.Identifier)
	assert.True(t, tr.Seekable)
	assert.Equal(t, "RickAstleyVEVO", tr.Author)
	assert.Equal(t, int64(212000), tr.Duration)
	assert.False(t, tr.Stream)
	assert.Equal(t, "Never Gonna Give You Up", tr.Title)
	assert.Equal(t, "42", tr.Requester)
	assert.Equal(t, "search", tr.Extra["source"])

	extra["source"] = "changed"
	assert.Equal(t, "search", tr.Extra["source"])
}

func TestNewTrackNilExtra(t *testing.T) {
	tr, err := NewTrack(trackData(), "", nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Extra)
	assert.Empty(t, tr.Extra)
}

func TestNewTrackMissingField(t *testing.T) {
	for _, field := range []string{"identifier", "isSeekable", "author", "length", "isStream", "title", "uri"} {
		data := trackData()
		delete(data["info"].(map[string]any), field)

		_, err := NewTrack(data, "", nil)
		var mf *MissingFieldError
		require.True(t, errors.As(err, &mf), field)
		assert.Equal(t, field, mf.Field)
		assert.ErrorIs(t, err, ErrInvalidTrack)
		assert.Contains(t, err.Error(), "missing field: "+field)
	}

	data := trackData()
	delete(data, "track")
	_, err := NewTrack(data, "", nil)
	assert.EqualError(t, err, "cannot build a track from partial data (missing field: track)")

	data = trackData()
	delete(data, "info")
	_, err = NewTrack(data, "", nil)
	assert.EqualError(t, err, "cannot build a track from partial data (missing field: info)")
}

func TestNewTrackRejectsBadValues(t *testing.T) {
	data := trackData()
	data["info"].(map[string]any)["length"] = float64(-1)
	_, err := NewTrack(data, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTrack)

	data = trackData()
	data["info"].(map[string]any)["title"] = 12
	_, err = NewTrack(data, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTrack)

	data = trackData()
	data["info"] = "nope"
	_, err = NewTrack(data, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTrack)
}

func TestTrackFromJSON(t *testing.T) {
	raw := []byte(`{"track":"abc","info":{"identifier":"id","isSeekable":false,"author":"a",
		"length":9007199254740993,"isStream":true,"title":"t","uri":"u"}}`)
	tr, err := TrackFromJSON(raw, "1", nil)
	require.NoError(t, err)
	assert.True(t, tr.Stream)
	assert.Positive(t, tr.Duration)
	assert.Equal(t, `<Track title="t" identifier=id>`, tr.String())

	_, err = TrackFromJSON([]byte("{"), "", nil)
	assert.ErrorIs(t, err, ErrInvalidTrack)
}
