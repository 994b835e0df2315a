package queue

import (
	"sync"

	"github.com/strefethen/harmony-go/internal/media"
)

// Transition is the result of finishing the current song.
// Cleanup names the song whose file must be released, Play the song to realize and deliver.
// Either may be nil.
type Transition struct {
	Cleanup *media.Song
	Play    *media.Song
}

// Idle reports whether the transition leaves nothing to play.
func (t Transition) Idle() bool {
	return t.Play == nil
}

// Replay reports whether the transition repeats the song that was already current.
func (t Transition) Replay() bool {
	return t.Cleanup == nil && t.Play != nil
}

// Queue holds the current song, the pending songs and the loop flag.
// All methods are safe for concurrent use; transitions must still be driven
// from a single goroutine so that each song finishes exactly once.
type Queue struct {
	mu      sync.Mutex
	current *media.Song
	pending []media.Song
	looping bool
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{}
}

// AddSong appends the song, or puts it at the head of pending when playNext is set.
func (q *Queue) AddSong(song media.Song, playNext bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if playNext {
		q.pending = append([]media.Song{song}, q.pending...)
		return
	}
	q.pending = append(q.pending, song)
}

// AddSongIfCurrent adds the song only while another song is current and reports
// whether it did. An idle queue is left untouched so the caller can start playback.
func (q *Queue) AddSongIfCurrent(song media.Song, playNext bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return false
	}
	if playNext {
		q.pending = append([]media.Song{song}, q.pending...)
	} else {
		q.pending = append(q.pending, song)
	}
	return true
}

// Start adds the song and, when nothing is current, advances to the head of pending
// under the same lock. started is false when another song was already current; the
// song is then queued behind it and the transition is empty.
func (q *Queue) Start(song media.Song, playNext bool) (t Transition, started bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if playNext {
		q.pending = append([]media.Song{song}, q.pending...)
	} else {
		q.pending = append(q.pending, song)
	}
	if q.current != nil {
		return Transition{}, false
	}
	return q.advanceLocked(), true
}

// Current returns a copy of the current song, or nil.
func (q *Queue) Current() *media.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil {
		return nil
	}
	song := *q.current
	return &song
}

// Upcoming returns the first n pending songs in play order.
func (q *Queue) Upcoming(n int) []media.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.pending) {
		n = len(q.pending)
	}
	if n <= 0 {
		return []media.Song{}
	}
	upcoming := make([]media.Song, n)
	copy(upcoming, q.pending[:n])
	return upcoming
}

// Len returns the number of pending songs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Looping returns the loop flag.
func (q *Queue) Looping() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.looping
}

// ToggleLooping flips the loop flag and returns the new value.
func (q *Queue) ToggleLooping() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.looping = !q.looping
	return q.looping
}

// Clear empties pending and returns how many songs were removed.
// The current song keeps playing.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := len(q.pending)
	q.pending = nil
	return removed
}

// FinishCurrentAndAdvance ends the current song. With looping on and a current
// song the same song is returned for replay and nothing is cleaned up.
func (q *Queue) FinishCurrentAndAdvance() Transition {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.looping && q.current != nil {
		song := *q.current
		return Transition{Play: &song}
	}
	return q.advanceLocked()
}

// SkipCurrent ends the current song ignoring the loop flag.
func (q *Queue) SkipCurrent() Transition {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanceLocked()
}

// DropCurrent discards the current song if it is still songID. It is used when the
// song never got a file, so no cleanup is produced.
func (q *Queue) DropCurrent(songID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == nil || q.current.ID != songID {
		return false
	}
	q.current = nil
	return true
}

// Snapshot is a consistent copy of the queue state.
type Snapshot struct {
	Current *media.Song  `json:"current"`
	Pending []media.Song `json:"pending"`
	Looping bool         `json:"looping"`
}

// Snapshot copies the whole queue under one lock.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{
		Pending: make([]media.Song, len(q.pending)),
		Looping: q.looping,
	}
	copy(snap.Pending, q.pending)
	if q.current != nil {
		song := *q.current
		snap.Current = &song
	}
	return snap
}

func (q *Queue) advanceLocked() Transition {
	cleanup := q.current
	q.current = nil
	if len(q.pending) > 0 {
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.current = &next
	}

	transition := Transition{Cleanup: cleanup}
	if q.current != nil {
		song := *q.current
		transition.Play = &song
	}
	return transition
}
