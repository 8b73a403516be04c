package lavalink

import (
	"errors"
	"fmt"
	"slices"
)

var ErrNoQueue = errors.New("player has no queue")

// Queue is the ordered list of upcoming tracks of a ModeQueue player plus its
// selection policy. It never holds nil entries.
type Queue struct {
	tracks  []*Track
	shuffle bool
	repeat  bool
}

func (q *Queue) Len() int { return len(q.tracks) }

func (q *Queue) push(t *Track) {
	q.tracks = append(q.tracks, t)
}

func (q *Queue) insert(i int, t *Track) {
	i = max(0, min(i, len(q.tracks)))
	q.tracks = slices.Insert(q.tracks, i, t)
}

func (q *Queue) removeAt(i int) *Track {
	t := q.tracks[i]
	q.tracks = slices.Delete(q.tracks, i, i+1)
	return t
}

func (q *Queue) clear() {
	q.tracks = nil
}

// Add appends track to the queue, stamping it with requester when the track
// has none. A non-negative index inserts at that position instead (clamped to
// the queue bounds); pass -1 to append.
func (p *Player) Add(requester string, track *Track, index int) error {
	if track == nil {
		return fmt.Errorf("%w: nil track", ErrInvalidTrack)
	}
	if track.Requester == "" && requester != "" {
		t := *track
		t.Requester = requester
		track = &t
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return ErrNoQueue
	}
	if index < 0 {
		p.queue.push(track)
	} else {
		p.queue.insert(index, track)
	}
	return nil
}

// AddTracks appends several tracks in order.
func (p *Player) AddTracks(requester string, tracks ...*Track) error {
	for _, t := range tracks {
		if err := p.Add(requester, t, -1); err != nil {
			return err
		}
	}
	return nil
}

// Queue returns a copy of the queued tracks.
func (p *Player) Queue() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return nil
	}
	return slices.Clone(p.queue.tracks)
}

// RemoveAt removes and returns the queued track at index i.
func (p *Player) RemoveAt(i int) (*Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return nil, ErrNoQueue
	}
	if i < 0 || i >= p.queue.Len() {
		return nil, fmt.Errorf("%w: queue index %d", ErrOutOfRange, i)
	}
	return p.queue.removeAt(i), nil
}

// ClearQueue drops every queued track.
func (p *Player) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil {
		p.queue.clear()
	}
}

// SetShuffle makes the next selection uniformly random instead of the head.
func (p *Player) SetShuffle(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return ErrNoQueue
	}
	p.queue.shuffle = on
	return nil
}

// SetRepeat re-queues the current track at the tail whenever the player
// advances.
func (p *Player) SetRepeat(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		return ErrNoQueue
	}
	p.queue.repeat = on
	return nil
}

func (p *Player) Shuffle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue != nil && p.queue.shuffle
}

func (p *Player) Repeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue != nil && p.queue.repeat
}
