// Package player provides the playback controller: the queue/shuffle/repeat
// state machine and the transport operations that drive the audio output.
package player

import "math/rand"

// Playback status constants.
const (
	StatusPlay  = "play"
	StatusPause = "pause"
	StatusStop  = "stop"
)

// RepeatMode cycles none → all → one → none.
type RepeatMode string

const (
	RepeatOff RepeatMode = "none"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// Next returns the mode following m in the cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// QueueState is the queue/shuffle/repeat state machine. Queue and
// OriginalQueue are a single coupled object: Queue is always a permutation
// of OriginalQueue's contents, and identical to it when not shuffled (modulo
// transient reorder edits). All transitions preserve that invariant, which
// makes the shuffle round-trip property mechanically checkable.
type QueueState struct {
	Current       string     `json:"currentSongId"`
	Queue         []string   `json:"queue"`
	OriginalQueue []string   `json:"originalQueue"`
	Shuffled      bool       `json:"isShuffled"`
	Repeat        RepeatMode `json:"repeatMode"`
}

// NewQueueState returns an empty, unshuffled state with repeat off.
func NewQueueState() QueueState {
	return QueueState{Repeat: RepeatOff}
}

// SetQueue replaces the queue with a new playback context. current must be a
// member of context (callers build the context around it). When shuffled,
// the current song stays first and the rest is permuted.
func (q *QueueState) SetQueue(current string, context []string) {
	q.OriginalQueue = append([]string(nil), context...)
	q.Current = current
	if q.Shuffled {
		q.Queue = shuffleKeepingFirst(current, q.OriginalQueue)
	} else {
		q.Queue = append([]string(nil), q.OriginalQueue...)
	}
}

// CurrentIndex returns the current song's position in Queue, or -1.
func (q *QueueState) CurrentIndex() int {
	return indexOf(q.Queue, q.Current)
}

// PeekNext returns the song that would play after the current one, without
// changing state. ok is false at the end of the queue when repeat is off;
// playback must not advance past the end.
func (q *QueueState) PeekNext() (string, bool) {
	idx := q.CurrentIndex()
	if idx < 0 || len(q.Queue) == 0 {
		return "", false
	}
	if idx+1 < len(q.Queue) {
		return q.Queue[idx+1], true
	}
	if q.Repeat == RepeatAll {
		return q.Queue[0], true
	}
	return "", false
}

// PeekPrevious returns the song before the current one, without changing
// state. ok is false at the head of the queue.
func (q *QueueState) PeekPrevious() (string, bool) {
	idx := q.CurrentIndex()
	if idx <= 0 {
		return "", false
	}
	return q.Queue[idx-1], true
}

// Advance moves to the next song per PeekNext.
func (q *QueueState) Advance() (string, bool) {
	next, ok := q.PeekNext()
	if ok {
		q.Current = next
	}
	return next, ok
}

// Retreat moves to the previous song per PeekPrevious.
func (q *QueueState) Retreat() (string, bool) {
	prev, ok := q.PeekPrevious()
	if ok {
		q.Current = prev
	}
	return prev, ok
}

// Append adds a song to the end of the queue and, when absent, to
// OriginalQueue. The two never diverge except by shuffle permutation, so a
// song already queued is a no-op.
func (q *QueueState) Append(id string) {
	if indexOf(q.Queue, id) >= 0 {
		return
	}
	q.Queue = append(q.Queue, id)
	if indexOf(q.OriginalQueue, id) < 0 {
		q.OriginalQueue = append(q.OriginalQueue, id)
	}
}

// Remove drops a song from both orderings. When the current song is
// removed, Current moves to the entry now occupying its position (or the
// new tail); currentChanged reports that so the controller can reload.
func (q *QueueState) Remove(id string) (currentChanged bool) {
	idx := indexOf(q.Queue, id)
	if idx < 0 {
		return false
	}
	q.Queue = append(q.Queue[:idx], q.Queue[idx+1:]...)
	if oidx := indexOf(q.OriginalQueue, id); oidx >= 0 {
		q.OriginalQueue = append(q.OriginalQueue[:oidx], q.OriginalQueue[oidx+1:]...)
	}
	if id != q.Current {
		return false
	}
	if len(q.Queue) == 0 {
		q.Current = ""
		return true
	}
	if idx >= len(q.Queue) {
		idx = len(q.Queue) - 1
	}
	q.Current = q.Queue[idx]
	return true
}

// Clear empties the queue, preserving only the currently-playing entry when
// one exists.
func (q *QueueState) Clear() {
	if q.Current == "" {
		q.Queue = nil
		q.OriginalQueue = nil
		return
	}
	q.Queue = []string{q.Current}
	q.OriginalQueue = []string{q.Current}
}

// Reorder moves the queue entry at from to position to. Only Queue is
// touched; shuffle-order edits are transient and never alter OriginalQueue.
// Out-of-bounds indexes make it a silent no-op.
func (q *QueueState) Reorder(from, to int) {
	if from < 0 || from >= len(q.Queue) || to < 0 || to >= len(q.Queue) || from == to {
		return
	}
	moved := q.Queue[from]
	q.Queue = append(q.Queue[:from], q.Queue[from+1:]...)
	q.Queue = append(q.Queue[:to], append([]string{moved}, q.Queue[to:]...)...)
}

// ToggleShuffle flips shuffle mode. Entering shuffle keeps the current song
// first and permutes the rest; leaving restores OriginalQueue's exact order
// (with the current song placed first when it is not a member). The
// transform is lossless: toggling twice restores the pre-shuffle order.
func (q *QueueState) ToggleShuffle() {
	if !q.Shuffled {
		q.Shuffled = true
		q.Queue = shuffleKeepingFirst(q.Current, q.OriginalQueue)
		return
	}
	q.Shuffled = false
	if q.Current == "" || indexOf(q.OriginalQueue, q.Current) >= 0 {
		q.Queue = append([]string(nil), q.OriginalQueue...)
		return
	}
	q.Queue = append([]string{q.Current}, q.OriginalQueue...)
}

// ToggleRepeat cycles the repeat mode.
func (q *QueueState) ToggleRepeat() {
	q.Repeat = q.Repeat.Next()
}

// shuffleKeepingFirst returns a permutation of ids with first (when present)
// pinned to the front.
func shuffleKeepingFirst(first string, ids []string) []string {
	others := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != first {
			others = append(others, id)
		}
	}
	rand.Shuffle(len(others), func(i, j int) {
		others[i], others[j] = others[j], others[i]
	})
	if first == "" || indexOf(ids, first) < 0 {
		return others
	}
	return append([]string{first}, others...)
}

func indexOf(ids []string, id string) int {
	if id == "" {
		return -1
	}
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
