package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Load types reported by /loadtracks.
const (
	LoadTrack    = "TRACK_LOADED"
	LoadPlaylist = "PLAYLIST_LOADED"
	LoadSearch   = "SEARCH_RESULT"
	LoadEmpty    = "NO_MATCHES"
	LoadFailed   = "LOAD_FAILED"
)

// LoadResult is the response of /loadtracks. Tracks are kept raw until a
// requester is known; Build turns them into Track values.
type LoadResult struct {
	LoadType     string `json:"loadType"`
	PlaylistInfo struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"playlistInfo"`
	Tracks    []map[string]any `json:"tracks"`
	Exception *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
}

// Build converts the raw tracks. The first malformed entry fails the whole
// result.
func (r *LoadResult) Build(requester string) ([]*Track, error) {
	out := make([]*Track, 0, len(r.Tracks))
	for i, raw := range r.Tracks {
		t, err := NewTrack(raw, requester, nil)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadTracks resolves identifier (a URL or a "ytsearch:" style query) on the node.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*LoadResult, error) {
	var res LoadResult
	q := url.Values{"identifier": {identifier}}
	if err := n.rest(ctx, http.MethodGet, "/loadtracks?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DecodeTrack asks the node to decode one encoded track token.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (map[string]any, error) {
	var info map[string]any
	q := url.Values{"track": {encoded}}
	if err := n.rest(ctx, http.MethodGet, "/decodetrack?"+q.Encode(), nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// DecodeTracks decodes several encoded tokens in one request.
func (n *Node) DecodeTracks(ctx context.Context, encoded ...string) ([]map[string]any, error) {
	var out []map[string]any
	if err := n.rest(ctx, http.MethodPost, "/decodetracks", encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) rest(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+n.cfg.address()+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.cfg.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
