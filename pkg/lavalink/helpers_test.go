package lavalink

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeManager records everything a Node reports to its owner.
type fakeManager struct {
	mu           sync.Mutex
	players      map[string]*Player
	events       []Event
	connected    int
	disconnected []int
}

func newFakeManager() *fakeManager {
	return &fakeManager{players: make(map[string]*Player)}
}

func (m *fakeManager) Player(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

func (m *fakeManager) add(p *Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.guildID] = p
}

func (m *fakeManager) NodeConnected(*Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected++
}

func (m *fakeManager) NodeDisconnected(_ *Node, code int, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = append(m.disconnected, code)
}

func (m *fakeManager) Dispatch(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *fakeManager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *fakeManager) Connected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func testConfig(clock *fakeClock) *Config {
	cfg := &Config{
		UserID:       "bot",
		Logger:       zerolog.Nop(),
		BackoffUnit:  time.Millisecond,
		PingInterval: -1,
	}
	if clock != nil {
		cfg.Clock = clock.Now
	}
	cfg.setDefaults()
	return cfg
}

// offlineNode returns a node that was never connected; everything sent to it
// is buffered in pending.
func offlineNode(name string, m Manager, cfg *Config) *Node {
	return newNode(NodeConfig{Name: name, Host: "127.0.0.1", Port: 1, Password: "pw"}, m, cfg)
}

// sent decodes the messages buffered on n and clears the buffer.
func sent(t *testing.T, n *Node) []map[string]any {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]map[string]any, 0, len(n.pending))
	for _, b := range n.pending {
		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		out = append(out, m)
	}
	n.pending = nil
	return out
}

func ops(msgs []map[string]any) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i], _ = m["op"].(string)
	}
	return out
}

type playerFixture struct {
	clock   *fakeClock
	cfg     *Config
	manager *fakeManager
	node    *Node
	player  *Player
}

func newPlayerFixture(t *testing.T, mode Mode) *playerFixture {
	t.Helper()
	f := &playerFixture{clock: newFakeClock(), manager: newFakeManager()}
	f.cfg = testConfig(f.clock)
	f.node = offlineNode("main", f.manager, f.cfg)
	f.player = newPlayer("guild", f.node, mode, f.cfg, f.manager.Dispatch)
	f.player.channelID = "voice"
	f.manager.add(f.player)
	return f
}

func testTrack(id string, duration int64) *Track {
	return &Track{
		Encoded:    "enc-" + id,
		Identifier: id,
		Seekable:   true,
		Title:      "Track " + id,
		Duration:   duration,
		Extra:      map[string]any{},
	}
}

func eventsOf[T Event](events []Event) []T {
	var out []T
	for _, e := range events {
		if ev, ok := e.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

// wsServer is a minimal node: it upgrades every request (unless reject says
// otherwise) and hands the connections to the test.
type wsServer struct {
	srv    *httptest.Server
	conns  chan *serverConn
	hits   atomic.Int32
	reject func(hit int32) int // status code to answer with, 0 to upgrade
}

type serverConn struct {
	conn   *websocket.Conn
	header http.Header
}

func newWSServer(t *testing.T, reject func(hit int32) int) *wsServer {
	t.Helper()
	s := &wsServer{conns: make(chan *serverConn, 8), reject: reject}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit := s.hits.Add(1)
		if s.reject != nil {
			if code := s.reject(hit); code != 0 {
				http.Error(w, http.StatusText(code), code)
				return
			}
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- &serverConn{conn: c, header: r.Header.Clone()}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) nodeConfig(t *testing.T, name string) NodeConfig {
	t.Helper()
	return nodeConfigFor(t, s.srv.URL, name)
}

func nodeConfigFor(t *testing.T, rawURL, name string) NodeConfig {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return NodeConfig{Name: name, Host: host, Port: port, Password: "pw"}
}

func (s *wsServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { c.conn.Close() })
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("node did not connect")
		return nil
	}
}

func (c *serverConn) read(t *testing.T) map[string]any {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func (c *serverConn) write(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}
