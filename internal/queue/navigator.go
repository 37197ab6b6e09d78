// Package queue decides which track plays next or previous. Everything here
// is a pure function of its inputs plus the injected random source.
package queue

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/satindergrewal/sonora/internal/media"
)

// RepeatMode selects end-of-track and end-of-queue behaviour.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	}
	return "off"
}

// ParseRepeatMode accepts "off", "all" or "one".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	}
	return RepeatOff, fmt.Errorf("queue: unknown repeat mode %q", s)
}

// RestartThreshold is how far into a track prev restarts instead of stepping back.
const RestartThreshold = 3.0

// Action is what the caller should do with a Decision.
type Action int

const (
	ActionNone    Action = iota // empty queue, nothing to do
	ActionPlay                  // play Index from the start
	ActionRestart               // restart the current track at 0
	ActionStop                  // stop playback, do not advance
	// ActionStopThenPlay stops, then starts Index. Only produced for a manual
	// skip past the end of a non-repeating queue.
	ActionStopThenPlay
)

func (a Action) String() string {
	return [...]string{"none", "play", "restart", "stop", "stop-then-play"}[a]
}

// Decision is the navigator's answer.
type Decision struct {
	Action Action
	Index  int
}

// Navigator holds the inputs the next/prev rules depend on.
type Navigator struct {
	Queue     media.Queue
	CurrentID string
	Shuffle   bool
	Repeat    RepeatMode
	Rand      *rand.Rand // nil uses the global source
}

func (n Navigator) intn(k int) int {
	if n.Rand != nil {
		return n.Rand.IntN(k)
	}
	return rand.IntN(k)
}

// Next returns the move for a skip (autoTriggered=false) or a natural
// track end (autoTriggered=true).
func (n Navigator) Next(autoTriggered bool) Decision {
	size := n.Queue.Len()
	if size == 0 {
		return Decision{Action: ActionNone, Index: media.NotFound}
	}
	current := n.Queue.IndexOf(n.CurrentID)

	if autoTriggered && n.Repeat == RepeatOne {
		return Decision{Action: ActionRestart, Index: current}
	}

	if n.Shuffle {
		pick := n.intn(size)
		if size > 1 && pick == current {
			pick = (pick + 1) % size
		}
		return Decision{Action: ActionPlay, Index: pick}
	}

	if current == media.NotFound {
		return Decision{Action: ActionPlay, Index: 0}
	}

	idx := current + 1
	if idx < size {
		return Decision{Action: ActionPlay, Index: idx}
	}
	if n.Repeat == RepeatAll {
		return Decision{Action: ActionPlay, Index: 0}
	}
	if autoTriggered {
		return Decision{Action: ActionStop, Index: current}
	}
	return Decision{Action: ActionStopThenPlay, Index: 0}
}

// Prev returns the move for a previous-track request given the elapsed
// time on the current track in seconds.
func (n Navigator) Prev(elapsed float64) Decision {
	size := n.Queue.Len()
	if size == 0 {
		return Decision{Action: ActionNone, Index: media.NotFound}
	}
	current := n.Queue.IndexOf(n.CurrentID)
	if elapsed > RestartThreshold {
		return Decision{Action: ActionRestart, Index: current}
	}
	if current == media.NotFound {
		current = 0
	}
	return Decision{Action: ActionPlay, Index: (current - 1 + size) % size}
}
