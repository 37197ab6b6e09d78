package media

// NotFound is the index sentinel for a track that is not in the queue.
const NotFound = -1

// Queue is an ordered, id-deduplicated track sequence. It is rebuilt rather
// than mutated whenever the library or active filters change.
type Queue struct {
	tracks []Track
	index  map[string]int
}

// NewQueue copies tracks into a queue, keeping the first occurrence of each id.
func NewQueue(tracks []Track) Queue {
	q := Queue{
		tracks: make([]Track, 0, len(tracks)),
		index:  make(map[string]int, len(tracks)),
	}
	for _, t := range tracks {
		if _, dup := q.index[t.ID]; dup {
			continue
		}
		q.index[t.ID] = len(q.tracks)
		q.tracks = append(q.tracks, t)
	}
	return q
}

// Len returns the number of tracks in the queue.
func (q Queue) Len() int { return len(q.tracks) }

// IsEmpty returns true if the queue has no tracks.
func (q Queue) IsEmpty() bool { return len(q.tracks) == 0 }

// At returns the track at i. It panics on out-of-range indexes like a slice.
func (q Queue) At(i int) Track { return q.tracks[i] }

// IndexOf returns the position of id, or NotFound.
func (q Queue) IndexOf(id string) int {
	if i, ok := q.index[id]; ok {
		return i
	}
	return NotFound
}

// Lookup returns the track with the given id.
func (q Queue) Lookup(id string) (Track, bool) {
	i := q.IndexOf(id)
	if i == NotFound {
		return Track{}, false
	}
	return q.tracks[i], true
}

// IDs returns the track ids in queue order.
func (q Queue) IDs() []string {
	ids := make([]string, len(q.tracks))
	for i, t := range q.tracks {
		ids[i] = t.ID
	}
	return ids
}

// Tracks returns a copy of the queued tracks.
func (q Queue) Tracks() []Track {
	out := make([]Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}
