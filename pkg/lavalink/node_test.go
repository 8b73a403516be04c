package lavalink

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeNameDefaultsToAddress(t *testing.T) {
	n := newNode(NodeConfig{Host: "10.0.0.1", Port: 2333}, newFakeManager(), testConfig(nil))
	assert.Equal(t, "10.0.0.1:2333", n.Name())
	assert.Equal(t, "<Node name=10.0.0.1:2333>", n.String())
	assert.False(t, n.Available())
	assert.Nil(t, n.Stats())
}

func TestConnectSendsHandshakeHeaders(t *testing.T) {
	srv := newWSServer(t, nil)
	m := newFakeManager()
	cfg := testConfig(nil)
	cfg.ShardCount = 3
	n := newNode(srv.nodeConfig(t, "main"), m, cfg)

	require.NoError(t, n.Connect(t.Context()))
	conn := srv.accept(t)

	assert.Equal(t, "pw", conn.header.Get("Authorization"))
	assert.Equal(t, "3", conn.header.Get("Num-Shards"))
	assert.Equal(t, "bot", conn.header.Get("User-Id"))
	assert.Empty(t, conn.header.Get("Resume-Key"))
	assert.True(t, n.Available())
	assert.Equal(t, 1, m.Connected())

	// already connected: no second dial
	require.NoError(t, n.Connect(t.Context()))
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestConcurrentConnectDialsOnce(t *testing.T) {
	srv := newWSServer(t, nil)
	m := newFakeManager()
	n := newNode(srv.nodeConfig(t, "main"), m, testConfig(nil))

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- n.Connect(t.Context())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	srv.accept(t)
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Equal(t, 1, m.Connected())
	assert.True(t, n.Available())
}

func TestBufferedMessagesFlushInOrderBeforeNewOnes(t *testing.T) {
	srv := newWSServer(t, nil)
	n := newNode(srv.nodeConfig(t, "main"), newFakeManager(), testConfig(nil))

	for _, op := range []string{"first", "second", "third"} {
		require.NoError(t, n.Send(map[string]string{"op": op}))
	}
	assert.Equal(t, 3, n.Pending())

	require.NoError(t, n.Connect(t.Context()))
	conn := srv.accept(t)
	assert.Zero(t, n.Pending())

	require.NoError(t, n.Send(map[string]string{"op": "fourth"}))

	var got []string
	for range 4 {
		got = append(got, conn.read(t)["op"].(string))
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, got)
}

func TestAuthenticationFailureIsFinal(t *testing.T) {
	srv := newWSServer(t, func(int32) int { return http.StatusUnauthorized })
	n := newNode(srv.nodeConfig(t, "main"), newFakeManager(), testConfig(nil))

	assert.ErrorIs(t, n.Connect(t.Context()), ErrAuthentication)
	assert.Equal(t, int32(1), srv.hits.Load())

	assert.ErrorIs(t, n.Connect(t.Context()), ErrNodeClosed)
	assert.ErrorIs(t, n.Run(t.Context()), ErrNodeClosed)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestConnectRetriesWrongProtocol(t *testing.T) {
	srv := newWSServer(t, func(hit int32) int {
		if hit < 3 {
			return http.StatusOK
		}
		return 0
	})
	n := newNode(srv.nodeConfig(t, "main"), newFakeManager(), testConfig(nil))

	require.NoError(t, n.Connect(t.Context()))
	srv.accept(t)
	assert.Equal(t, int32(3), srv.hits.Load())
	assert.Zero(t, n.Attempts())
}

func TestConnectGivesUpWhenContextEnds(t *testing.T) {
	n := newNode(NodeConfig{Name: "dead", Host: "127.0.0.1", Port: 1}, newFakeManager(), testConfig(nil))
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	err := n.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, n.Attempts())
	assert.False(t, n.Available())
}

func TestResumeConfiguredOnceAndKeyOnReconnect(t *testing.T) {
	srv := newWSServer(t, nil)
	m := newFakeManager()
	nc := srv.nodeConfig(t, "main")
	nc.ResumeKey = "resume-me"
	nc.ResumeTimeout = 60
	n := newNode(nc, m, testConfig(nil))

	require.NoError(t, n.Send(map[string]string{"op": "queued"}))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	first := srv.accept(t)
	assert.Empty(t, first.header.Get("Resume-Key"))
	assert.Equal(t, map[string]any{"op": "configureResuming", "key": "resume-me", "timeout": float64(60)}, first.read(t))
	assert.Equal(t, "queued", first.read(t)["op"])

	first.conn.Close()

	second := srv.accept(t)
	assert.Equal(t, "resume-me", second.header.Get("Resume-Key"))

	require.Eventually(t, func() bool { return n.Available() }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, n.Send(map[string]string{"op": "after"}))
	assert.Equal(t, "after", second.read(t)["op"], "configureResuming is not sent again")

	m.mu.Lock()
	assert.Equal(t, []int{1006}, m.disconnected)
	m.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunCancelIsNotADisconnect(t *testing.T) {
	srv := newWSServer(t, nil)
	m := newFakeManager()
	n := newNode(srv.nodeConfig(t, "main"), m, testConfig(nil))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	srv.accept(t)
	require.Eventually(t, func() bool { return m.Connected() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	m.mu.Lock()
	assert.Empty(t, m.disconnected)
	m.mu.Unlock()
	assert.False(t, n.Available())
}

func TestCloseFrameReportsCode(t *testing.T) {
	srv := newWSServer(t, nil)
	m := newFakeManager()
	n := newNode(srv.nodeConfig(t, "main"), m, testConfig(nil))
	require.NoError(t, n.Connect(t.Context()))
	conn := srv.accept(t)

	go func() {
		_ = conn.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4000, "bye"), time.Now().Add(time.Second))
	}()
	code, reason := n.listen(t.Context())
	assert.Equal(t, 4000, code)
	assert.Equal(t, "bye", reason)
}

func TestHandleStats(t *testing.T) {
	n := offlineNode("main", newFakeManager(), testConfig(nil))
	n.handle([]byte(`{"op":"stats","players":3,"playingPlayers":1,"uptime":1000,
		"memory":{"free":1,"used":2,"allocated":3,"reservable":4},
		"cpu":{"cores":8,"systemLoad":0.5,"lavalinkLoad":0.1},
		"frameStats":{"sent":3000,"nulled":10,"deficit":-10}}`))

	s := n.Stats()
	require.NotNil(t, s)
	assert.Equal(t, 3, s.Players)
	assert.Equal(t, 1, s.PlayingPlayers)
	assert.Equal(t, int64(2), s.Memory.Used)
	assert.Equal(t, 8, s.CPU.Cores)
	require.NotNil(t, s.FrameStats)
	assert.Equal(t, -10, s.FrameStats.Deficit)
}

func TestHandlePlayerUpdate(t *testing.T) {
	f := newPlayerFixture(t, ModeBasic)
	require.NoError(t, f.player.Play(testTrack("a", 100000), PlayOptions{}))

	f.node.handle([]byte(`{"op":"playerUpdate","guildId":"guild","state":{"position":4200,"time":1700000000000}}`))
	assert.Equal(t, int64(4200), f.player.Position())

	// unknown guilds and ops are ignored
	f.node.handle([]byte(`{"op":"playerUpdate","guildId":"other","state":{"position":1,"time":1}}`))
	f.node.handle([]byte(`{"op":"somethingElse"}`))
	f.node.handle([]byte(`not json`))
	assert.Len(t, eventsOf[PlayerUpdateEvent](f.manager.Events()), 1)
}

func TestHandleEventDispatchesAndAdvances(t *testing.T) {
	f := newPlayerFixture(t, ModeQueue)
	p := f.player
	require.NoError(t, p.AddTracks("u", testTrack("a", 1000), testTrack("b", 1000)))
	require.NoError(t, p.PlayNext())
	sent(t, f.node)

	f.node.handle([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"guild","track":"enc-a","reason":"FINISHED"}`))

	ends := eventsOf[TrackEndEvent](f.manager.Events())
	require.Len(t, ends, 1)
	assert.Equal(t, "a", ends[0].Track.Identifier)

	// the end is dispatched before the player advances
	events := f.manager.Events()
	require.GreaterOrEqual(t, len(events), 2)
	assert.IsType(t, TrackEndEvent{}, events[len(events)-2])
	start, ok := events[len(events)-1].(TrackStartEvent)
	require.True(t, ok)
	assert.Equal(t, "b", start.Track.Identifier)
	assert.Equal(t, "b", p.Current().Identifier)
	assert.Equal(t, []string{"play"}, ops(sent(t, f.node)))

	f.node.handle([]byte(`{"op":"event","type":"WebSocketClosedEvent","guildId":"guild","code":4014,"reason":"disconnected","byRemote":true}`))
	closed := eventsOf[WebSocketClosedEvent](f.manager.Events())
	require.Len(t, closed, 1)
	assert.Equal(t, 4014, closed[0].Code)
	assert.Equal(t, "b", p.Current().Identifier)
}

func TestHandleEventIgnoresUnknown(t *testing.T) {
	f := newPlayerFixture(t, ModeQueue)
	before := len(f.manager.Events())

	f.node.handle([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"nobody","reason":"FINISHED"}`))
	f.node.handle([]byte(`{"op":"event","type":"BrandNewEvent","guildId":"guild"}`))

	assert.Len(t, f.manager.Events(), before)
}
