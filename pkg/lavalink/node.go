package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/keshon/lavalink-client/pkg/retrylimit"
	"github.com/rs/zerolog"
)

// NodeConfig describes how to reach one node.
type NodeConfig struct {
	Name          string `yaml:"name"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Password      string `yaml:"password"`
	ResumeKey     string `yaml:"resume_key"`
	ResumeTimeout int    `yaml:"resume_timeout"` // seconds
}

func (c NodeConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Manager is what a Node needs from the component owning it: player lookup,
// connection lifecycle notifications and event dispatch. Client implements it.
type Manager interface {
	Player(guildID string) (*Player, bool)
	NodeConnected(n *Node)
	NodeDisconnected(n *Node, code int, reason string)
	Dispatch(e Event)
}

// Node owns the websocket connection to one node. Commands sent while the
// connection is down are buffered and flushed, in order, once it is back.
type Node struct {
	cfg     NodeConfig
	name    string
	manager Manager
	log     zerolog.Logger

	userID       string
	shardCount   int
	dialer       *websocket.Dialer
	backoff      retrylimit.Backoff
	pingInterval time.Duration
	httpClient   *http.Client

	mu               sync.Mutex
	conn             *websocket.Conn
	pending          [][]byte
	connecting       chan struct{} // closed when the dial in progress ends
	resumeConfigured bool
	fatal            bool
	attempts         int

	stats atomic.Pointer[Stats]
}

func newNode(cfg NodeConfig, m Manager, c *Config) *Node {
	name := cfg.Name
	if name == "" {
		name = cfg.address()
	}
	unit := c.BackoffUnit
	return &Node{
		cfg:          cfg,
		name:         name,
		manager:      m,
		log:          c.Logger.With().Str("node", name).Logger(),
		userID:       c.UserID,
		shardCount:   c.ShardCount,
		dialer:       &websocket.Dialer{HandshakeTimeout: 30 * time.Second, Proxy: http.ProxyFromEnvironment},
		backoff:      retrylimit.Linear(10*unit, 60*unit),
		pingInterval: c.PingInterval,
		httpClient:   c.HTTPClient,
	}
}

func (n *Node) Name() string { return n.name }

func (n *Node) Config() NodeConfig { return n.cfg }

// Available reports whether the node connection is live.
func (n *Node) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

// Stats returns the latest statistics reported by the node, or nil.
func (n *Node) Stats() *Stats {
	return n.stats.Load()
}

// Attempts returns the number of failed connection attempts since the last
// successful connect.
func (n *Node) Attempts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts
}

// Pending returns the number of buffered outbound messages.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Run keeps the node connected until ctx is cancelled or the node rejects
// the credentials.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := n.Connect(ctx); err != nil {
			return err
		}
		code, reason := n.listen(ctx)
		if err := ctx.Err(); err != nil {
			// shutdown: players stay where they are
			n.drop()
			n.log.Info().Msg("Connection closed on shutdown")
			return err
		}
		n.closed(code, reason)
	}
}

// Connect dials the node, retrying with a capped linear backoff. It returns
// immediately when already connected. Concurrent callers share one dial: the
// others wait for it to finish. An authentication failure is final: the node
// never dials again and later calls return ErrNodeClosed.
func (n *Node) Connect(ctx context.Context) error {
	for {
		n.mu.Lock()
		if n.conn != nil {
			n.mu.Unlock()
			return nil
		}
		if n.fatal {
			n.mu.Unlock()
			return ErrNodeClosed
		}
		if wait := n.connecting; wait != nil {
			n.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := make(chan struct{})
		n.connecting = done
		n.mu.Unlock()

		err := n.connect(ctx)

		n.mu.Lock()
		n.connecting = nil
		n.mu.Unlock()
		close(done)
		return err
	}
}

func (n *Node) connect(ctx context.Context) error {
	var conn *websocket.Conn
	err := retrylimit.WithRetryConfig(ctx, func(int) error {
		c, err := n.dial(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, retrylimit.RetryConfig{
		Backoff:   n.backoff,
		WarnFirst: 1,
		Warn: func(_ int, err error) {
			n.log.Warn().Err(err).Msg("Failed to establish connection")
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			n.mu.Lock()
			n.attempts = attempt
			n.mu.Unlock()
			n.log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("Retrying connection")
		},
	})
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			n.mu.Lock()
			n.fatal = true
			n.mu.Unlock()
			n.log.Error().Msg("Authentication failed while connecting to the node, giving up")
			return ErrAuthentication
		}
		return err
	}

	n.established(conn)
	return nil
}

func (n *Node) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("Num-Shards", strconv.Itoa(n.shardCount))
	header.Set("User-Id", n.userID)

	n.mu.Lock()
	if n.resumeConfigured && n.cfg.ResumeKey != "" {
		header.Set("Resume-Key", n.cfg.ResumeKey)
	}
	n.mu.Unlock()

	url := "ws://" + n.cfg.address()
	conn, resp, err := n.dialer.DialContext(ctx, url, header)
	if err == nil {
		return conn, nil
	}
	if resp != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, retrylimit.Fatal(ErrAuthentication)
		}
		return nil, fmt.Errorf("remote returned status %d, expected 101; is %s a node and not a web server? %w",
			resp.StatusCode, n.cfg.address(), err)
	}
	return nil, fmt.Errorf("dial %s (is the node running on this port?): %w", url, err)
}

// established installs conn, configures resuming once per Node and flushes
// the buffered messages before anyone else can write to the connection.
func (n *Node) established(conn *websocket.Conn) {
	n.mu.Lock()
	n.conn = conn
	n.attempts = 0

	if !n.resumeConfigured && n.cfg.ResumeKey != "" && n.cfg.ResumeTimeout > 0 {
		b, _ := json.Marshal(configureResumingMessage{
			Op:      opConfigureResuming,
			Key:     n.cfg.ResumeKey,
			Timeout: n.cfg.ResumeTimeout,
		})
		if err := n.writeLocked(b); err != nil {
			n.log.Error().Err(err).Msg("Failed to configure resuming")
		} else {
			n.resumeConfigured = true
		}
	}

	queued := n.pending
	n.pending = nil
	for i, b := range queued {
		if n.conn == nil {
			n.pending = append(n.pending, queued[i:]...)
			break
		}
		if err := n.writeLocked(b); err != nil {
			n.pending = append(n.pending, queued[i:]...)
			break
		}
	}
	flushed := len(queued) - len(n.pending)
	n.mu.Unlock()

	n.log.Info().Int("flushed", flushed).Msg("Connection established")
	n.manager.NodeConnected(n)
}

// Send serializes v and writes it to the node, or buffers it while the
// connection is down. Messages are never dropped.
func (n *Node) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		n.log.Debug().RawJSON("payload", b).Msg("Send called before connection ready, buffering")
		n.pending = append(n.pending, b)
		return nil
	}
	if err := n.writeLocked(b); err != nil {
		n.pending = append(n.pending, b)
	}
	return nil
}

// writeLocked writes one frame. On failure the connection is closed so the
// read loop notices and reconnects.
func (n *Node) writeLocked(b []byte) error {
	n.log.Debug().RawJSON("payload", b).Msg("Sending payload")
	if err := n.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		n.log.Error().Err(err).Msg("Write failed, dropping connection")
		n.conn.Close()
		n.conn = nil
		return err
	}
	return nil
}

// listen reads messages until the connection closes and returns the close
// code and reason.
func (n *Node) listen(ctx context.Context) (int, string) {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn == nil {
		return websocket.CloseAbnormalClosure, "connection lost before listening"
	}

	done := make(chan struct{})
	defer close(done)
	go n.keepalive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code, ce.Text
			}
			return websocket.CloseAbnormalClosure, err.Error()
		}
		n.log.Debug().RawJSON("payload", data).Msg("Received message")
		n.handle(data)
	}
}

// keepalive pings the node and closes conn when ctx is cancelled so the
// blocked reader returns.
func (n *Node) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	var tick <-chan time.Time
	if n.pingInterval > 0 {
		t := time.NewTicker(n.pingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				n.log.Debug().Err(err).Msg("Ping failed")
			}
		}
	}
}

func (n *Node) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		n.log.Warn().Err(err).Msg("Received malformed message")
		return
	}

	switch msg.Op {
	case opStats:
		var s Stats
		if err := json.Unmarshal(data, &s); err != nil {
			n.log.Warn().Err(err).Msg("Received malformed stats")
			return
		}
		n.stats.Store(&s)
	case opPlayerUpdate:
		p, ok := n.manager.Player(msg.GuildID)
		if !ok || msg.State == nil {
			n.log.Debug().Str("guild", msg.GuildID).Msg("Ignoring player update for unknown player")
			return
		}
		p.updateState(msg.State.Position, msg.State.Time)
	case opEvent:
		n.handleEvent(&msg)
	default:
		n.log.Warn().Str("op", msg.Op).Msg("Received unknown op")
	}
}

func (n *Node) handleEvent(msg *inbound) {
	p, ok := n.manager.Player(msg.GuildID)
	if !ok {
		n.log.Warn().Str("guild", msg.GuildID).Msg("Received event for non-existent player")
		return
	}

	ev, ok := translateEvent(p, msg)
	if !ok {
		n.log.Warn().Str("type", msg.Type).Msg("Unknown event received")
		return
	}

	n.manager.Dispatch(ev)
	p.handleEvent(ev)
}

// closed drops the connection and tells the manager, which may move players
// elsewhere. Run reconnects afterwards.
func (n *Node) closed(code int, reason string) {
	n.drop()
	n.log.Info().Int("code", code).Str("reason", reason).Msg("Connection closed")
	n.manager.NodeDisconnected(n, code, reason)
}

func (n *Node) drop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("<Node name=%s>", n.name)
}
