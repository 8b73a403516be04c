// Package lavalink is a client for remote audio nodes speaking the Lavalink
// websocket protocol. It keeps one connection per node, tracks playback state
// per guild and turns node messages into typed events.
//
// Typical usage:
//
//	c := lavalink.New(lavalink.Config{UserID: botID, Logger: log})
//	c.AddEventHook(func(e lavalink.Event) { ... })
//	c.AddNode(lavalink.NodeConfig{Host: "127.0.0.1", Port: 2333, Password: "pass"})
//
//	p, _ := c.CreatePlayer(guildID)
//	p.Add(userID, track, -1)
//	p.PlayNext()
package lavalink

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/lavalink-client/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Config configures a Client. Zero values get sensible defaults.
type Config struct {
	UserID      string
	ShardCount  int // default 1
	Logger      zerolog.Logger
	PlayerMode  Mode
	ConnectBack bool // move failed-over players back when their node returns

	BackoffUnit  time.Duration // default time.Second; reconnect waits min(10n, 60) units
	PingInterval time.Duration // default 60s, negative disables
	HTTPClient   *http.Client  // default client with 30s timeout
	Clock        func() time.Time
	Rand         func(n int) int
}

func (c *Config) setDefaults() {
	if c.ShardCount <= 0 {
		c.ShardCount = 1
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.IntN
	}
}

// Client owns the nodes and players and implements Manager for its nodes.
type Client struct {
	cfg     Config
	log     zerolog.Logger
	jobs    *jobmgr.Manager
	closing atomic.Bool

	nodesMu sync.RWMutex
	nodes   []*Node

	playersMu sync.RWMutex
	players   map[string]*Player

	hooksMu sync.RWMutex
	hooks   []func(Event)
}

// New creates a Client. Nodes start connecting as soon as they are added.
func New(cfg Config) *Client {
	cfg.setDefaults()
	c := &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		players: make(map[string]*Player),
	}
	c.jobs = jobmgr.NewManager(context.Background(), func(status string) {
		c.log.Debug().Str("job", status).Msg("Node job status")
	})
	return c
}

// AddNode registers a node and starts its connection loop in the background.
func (c *Client) AddNode(nc NodeConfig) (*Node, error) {
	n := newNode(nc, c, &c.cfg)

	c.nodesMu.Lock()
	for _, existing := range c.nodes {
		if existing.name == n.name {
			c.nodesMu.Unlock()
			return nil, fmt.Errorf("node %q already added", n.name)
		}
	}
	c.nodes = append(c.nodes, n)
	c.nodesMu.Unlock()

	if err := c.jobs.StartAsync("node:"+n.name, n.Run); err != nil {
		return nil, err
	}
	c.log.Info().Str("node", n.name).Msg("Node added")
	return n, nil
}

// Nodes returns the registered nodes in registration order.
func (c *Client) Nodes() []*Node {
	c.nodesMu.RLock()
	defer c.nodesMu.RUnlock()
	return append([]*Node(nil), c.nodes...)
}

// AvailableNodes returns the connected nodes in registration order.
func (c *Client) AvailableNodes() []*Node {
	var out []*Node
	for _, n := range c.Nodes() {
		if n.Available() {
			out = append(out, n)
		}
	}
	return out
}

// pickNode returns the first available node other than except, falling back
// to the first registered one so commands get buffered until it connects.
func (c *Client) pickNode(except *Node) *Node {
	nodes := c.Nodes()
	for _, n := range nodes {
		if n != except && n.Available() {
			return n
		}
	}
	if except == nil && len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// Player returns the player of guildID, if any.
func (c *Client) Player(guildID string) (*Player, bool) {
	c.playersMu.RLock()
	defer c.playersMu.RUnlock()
	p, ok := c.players[guildID]
	return p, ok
}

// Players returns every registered player.
func (c *Client) Players() []*Player {
	c.playersMu.RLock()
	defer c.playersMu.RUnlock()
	out := make([]*Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, p)
	}
	return out
}

// CreatePlayer returns the player of guildID, creating it on the first
// available node when it does not exist yet.
func (c *Client) CreatePlayer(guildID string) (*Player, error) {
	if p, ok := c.Player(guildID); ok {
		return p, nil
	}

	node := c.pickNode(nil)
	if node == nil {
		return nil, ErrNoAvailableNode
	}

	c.playersMu.Lock()
	defer c.playersMu.Unlock()
	if p, ok := c.players[guildID]; ok {
		return p, nil
	}
	p := newPlayer(guildID, node, c.cfg.PlayerMode, &c.cfg, c.Dispatch)
	c.players[guildID] = p
	c.log.Debug().Str("guild", guildID).Str("node", node.name).Str("mode", p.mode.String()).Msg("Player created")
	return p, nil
}

// DestroyPlayer tells the node to drop the guild's player, clears its queue
// and stored data and forgets it.
func (c *Client) DestroyPlayer(guildID string) error {
	c.playersMu.Lock()
	p, ok := c.players[guildID]
	delete(c.players, guildID)
	c.playersMu.Unlock()
	if !ok {
		return ErrPlayerNotFound
	}

	p.Cleanup()
	p.mu.Lock()
	p.current = nil
	err := p.sendLocked(guildMessage{Op: opDestroy, GuildID: guildID})
	p.mu.Unlock()
	return err
}

// AddEventHook registers a hook called for every event, in registration order.
func (c *Client) AddEventHook(hook func(Event)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Dispatch delivers e to every hook.
func (c *Client) Dispatch(e Event) {
	c.hooksMu.RLock()
	hooks := slices.Clone(c.hooks)
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		h(e)
	}
	c.log.Debug().Str("event", fmt.Sprintf("%T", e)).Int("hooks", len(hooks)).Msg("Dispatched event")
}

// NodeConnected moves players back to n when ConnectBack is enabled.
func (c *Client) NodeConnected(n *Node) {
	if c.closing.Load() {
		return
	}
	c.Dispatch(NodeConnectedEvent{Node: n})
	if !c.cfg.ConnectBack {
		return
	}

	for _, p := range c.Players() {
		p.mu.Lock()
		back := p.originalNode == n
		if back {
			p.originalNode = nil
		}
		p.mu.Unlock()
		if back {
			p.ChangeNode(n)
		}
	}
}

// NodeDisconnected moves every player of n to another available node. When
// none is available the players stay and their commands are buffered on n.
func (c *Client) NodeDisconnected(n *Node, code int, reason string) {
	if c.closing.Load() {
		return
	}
	c.Dispatch(NodeDisconnectedEvent{Node: n, Code: code, Reason: reason})
	c.movePlayers(n, true)
}

// RemoveNode stops the named node's connection loop and moves its players to
// another available node. They are not moved back later.
func (c *Client) RemoveNode(name string) error {
	c.nodesMu.Lock()
	i := slices.IndexFunc(c.nodes, func(n *Node) bool { return n.name == name })
	if i < 0 {
		c.nodesMu.Unlock()
		return fmt.Errorf("node %q not found", name)
	}
	n := c.nodes[i]
	c.nodes = slices.Delete(c.nodes, i, i+1)
	c.nodesMu.Unlock()

	if err := c.jobs.Stop("node:" + name); err != nil {
		c.log.Debug().Err(err).Str("node", name).Msg("Node loop was not running")
	}
	for _, p := range c.Players() {
		p.mu.Lock()
		if p.originalNode == n {
			p.originalNode = nil
		}
		p.mu.Unlock()
	}
	c.movePlayers(n, false)
	c.log.Info().Str("node", name).Msg("Node removed")
	return nil
}

// movePlayers fails over every player of n. With remember set, players keep
// n as their original node so ConnectBack can return them.
func (c *Client) movePlayers(n *Node, remember bool) {
	var affected []*Player
	for _, p := range c.Players() {
		if p.Node() == n {
			affected = append(affected, p)
		}
	}
	if len(affected) == 0 {
		return
	}

	target := c.pickNode(n)
	if target == nil {
		c.log.Warn().Str("node", n.name).Int("players", len(affected)).Msg("No node available for failover")
		return
	}

	for _, p := range affected {
		if remember {
			p.mu.Lock()
			if p.originalNode == nil {
				p.originalNode = n
			}
			p.mu.Unlock()
		}
		p.ChangeNode(target)
	}
}

// VoiceServerUpdate forwards a voice server payload to the guild's player.
func (c *Client) VoiceServerUpdate(guildID string, event map[string]any) {
	if p, ok := c.Player(guildID); ok {
		p.VoiceServerUpdate(event)
	}
}

// VoiceStateUpdate forwards the bot's own voice state to the guild's player.
// Updates about other users are ignored.
func (c *Client) VoiceStateUpdate(guildID, userID, sessionID, channelID string) {
	if userID != c.cfg.UserID {
		return
	}
	if p, ok := c.Player(guildID); ok {
		p.VoiceStateUpdate(sessionID, channelID)
	}
}

// Close stops every node connection loop and waits for them to exit.
// Players are left on their nodes; no failover happens while closing.
func (c *Client) Close() {
	c.closing.Store(true)
	c.log.Debug().Str("jobs", c.jobs.Status()).Msg("Stopping node loops")
	c.jobs.StopAll()
	c.jobs.Wait()
}
