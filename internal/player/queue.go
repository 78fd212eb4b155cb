package player

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"kabutune/internal/track"
)

const (
	// MaxSize caps the queue length.
	MaxSize = 10
	// LowWaterMark is the number of tracks left after the current one at
	// which the queue asks for more.
	LowWaterMark = 2
)

// RelatedFetcher returns tracks related to a video, optionally biased by q.
type RelatedFetcher interface {
	Related(ctx context.Context, videoID, q string) ([]track.Track, error)
}

// State is a snapshot of the queue.
type State struct {
	Tracks    []track.Track
	Index     int
	Playing   bool
	Shuffled  bool
	Repeating bool
}

// Idle reports whether nothing is loaded.
func (s State) Idle() bool {
	return s.Index < 0
}

// Queue is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	tracks    []track.Track
	index     int
	playing   bool
	shuffled  bool
	repeating bool
	played    map[string]struct{}
	rng       *rand.Rand
}

func NewQueue() *Queue {
	return &Queue{
		index:  -1,
		played: make(map[string]struct{}),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand replaces the shuffle source, for tests.
func (q *Queue) WithRand(r *rand.Rand) *Queue {
	q.rng = r
	return q
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return State{
		Tracks:    slices.Clone(q.tracks),
		Index:     q.index,
		Playing:   q.playing,
		Shuffled:  q.shuffled,
		Repeating: q.repeating,
	}
}

func (q *Queue) Current() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() (track.Track, bool) {
	if q.index < 0 || q.index >= len(q.tracks) {
		return track.Track{}, false
	}
	return q.tracks[q.index], true
}

func (q *Queue) setIndexLocked(i int) {
	q.index = i
	q.playing = true
	q.played[q.tracks[i].ID] = struct{}{}
}

// Play jumps to t if it is queued, otherwise replaces the queue with t.
func (q *Queue) Play(t track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOfLocked(t.ID); i >= 0 {
		q.setIndexLocked(i)
		return
	}
	q.resetLocked([]track.Track{t})
}

// PlayAll replaces the queue and starts at the first track.
func (q *Queue) PlayAll(tracks []track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked(dedupe(tracks, nil))
}

func (q *Queue) resetLocked(tracks []track.Track) {
	if len(tracks) > MaxSize {
		tracks = tracks[:MaxSize]
	}
	q.tracks = tracks
	q.played = make(map[string]struct{})
	if len(tracks) == 0 {
		q.index = -1
		q.playing = false
		return
	}
	q.setIndexLocked(0)
}

// Next advances. At the end it wraps to the start only when repeating,
// otherwise it stays on the current track and keeps playing. With shuffle
// on it picks a random track not yet played.
func (q *Queue) Next() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	if q.index < 0 {
		q.setIndexLocked(0)
		return q.tracks[0], true
	}

	if q.shuffled {
		if i, ok := q.randomUnplayedLocked(); ok {
			q.setIndexLocked(i)
			return q.tracks[i], true
		}
		if q.repeating {
			q.played = make(map[string]struct{})
			q.played[q.tracks[q.index].ID] = struct{}{}
			if i, ok := q.randomUnplayedLocked(); ok {
				q.setIndexLocked(i)
				return q.tracks[i], true
			}
		}
		q.playing = true
		return q.tracks[q.index], true
	}

	next := q.index + 1
	if next >= len(q.tracks) {
		if !q.repeating {
			q.playing = true
			return q.tracks[q.index], true
		}
		next = 0
	}
	q.setIndexLocked(next)
	return q.tracks[next], true
}

func (q *Queue) randomUnplayedLocked() (int, bool) {
	var candidates []int
	for i, t := range q.tracks {
		if _, seen := q.played[t.ID]; !seen && i != q.index {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[q.rng.IntN(len(candidates))], true
}

// Prev steps back, wrapping from the first track to the last.
func (q *Queue) Prev() (track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tracks) == 0 {
		return track.Track{}, false
	}
	prev := q.index - 1
	if prev < 0 {
		prev = len(q.tracks) - 1
	}
	q.setIndexLocked(prev)
	return q.tracks[prev], true
}

// Jump moves to index i. It reports false for an out of range index.
func (q *Queue) Jump(i int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.tracks) {
		return false
	}
	q.setIndexLocked(i)
	return true
}

// Add appends tracks whose ids are not queued yet and trims the queue to
// MaxSize. Trimming drops already played tracks from the front first and
// never drops the current track. It returns how many tracks were added.
func (q *Queue) Add(tracks []track.Track) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	fresh := dedupe(tracks, q.tracks)
	if len(fresh) == 0 {
		return 0
	}
	q.tracks = append(q.tracks, fresh...)
	added := len(fresh)

	if over := len(q.tracks) - MaxSize; over > 0 {
		drop := over
		if q.index >= 0 {
			drop = min(over, q.index)
		}
		q.tracks = q.tracks[drop:]
		if q.index >= 0 {
			q.index -= drop
		}
		if len(q.tracks) > MaxSize {
			added -= len(q.tracks) - MaxSize
			q.tracks = q.tracks[:MaxSize]
		}
	}
	return max(added, 0)
}

// Remove drops the track with id. Removing the current track makes the
// following one current.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOfLocked(id)
	if i < 0 {
		return false
	}
	q.tracks = slices.Delete(q.tracks, i, i+1)
	delete(q.played, id)
	switch {
	case len(q.tracks) == 0:
		q.index = -1
		q.playing = false
	case i < q.index:
		q.index--
	case i == q.index && q.index >= len(q.tracks):
		q.index = len(q.tracks) - 1
	}
	return true
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tracks = nil
	q.index = -1
	q.playing = false
	q.played = make(map[string]struct{})
}

func (q *Queue) TogglePlay() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index < 0 {
		return false
	}
	q.playing = !q.playing
	return q.playing
}

func (q *Queue) ToggleShuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffled = !q.shuffled
	return q.shuffled
}

func (q *Queue) ToggleRepeat() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeating = !q.repeating
	return q.repeating
}

// Remaining is the number of tracks after the current one.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.index < 0 {
		return 0
	}
	return len(q.tracks) - q.index - 1
}

// NeedsRefill reports whether a track is loaded and at most LowWaterMark
// tracks follow it.
func (q *Queue) NeedsRefill() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index >= 0 && len(q.tracks)-q.index-1 <= LowWaterMark
}

// Refill asks f for tracks related to the current one, querying with
// "<title> <channel>", and adds them. The lock is not held while fetching.
func (q *Queue) Refill(ctx context.Context, f RelatedFetcher) (int, error) {
	cur, ok := q.Current()
	if !ok {
		return 0, nil
	}
	related, err := f.Related(ctx, cur.ID, cur.Title+" "+cur.Channel)
	if err != nil {
		return 0, err
	}
	return q.Add(related), nil
}

func (q *Queue) indexOfLocked(id string) int {
	return slices.IndexFunc(q.tracks, func(t track.Track) bool { return t.ID == id })
}

// dedupe returns tracks with an id that is non-empty, unique and absent
// from existing.
func dedupe(tracks, existing []track.Track) []track.Track {
	seen := make(map[string]struct{}, len(existing)+len(tracks))
	for _, t := range existing {
		seen[t.ID] = struct{}{}
	}
	out := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}
