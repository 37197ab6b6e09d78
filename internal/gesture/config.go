// Package gesture turns raw multi-touch samples over the player surface
// into continuous control changes: seek, volume and zoom.
package gesture

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the topology a touch sequence was classified as.
type Kind int

const (
	KindNone Kind = iota
	Swipe
	Pinch
	Circle
)

func (k Kind) String() string {
	switch k {
	case Swipe:
		return "swipe"
	case Pinch:
		return "pinch"
	case Circle:
		return "circle"
	}
	return "none"
}

// Action is what a classified gesture drives.
type Action int

const (
	ActionNone Action = iota
	ActionSeek
	ActionVolume
	ActionZoom
)

func (a Action) String() string {
	switch a {
	case ActionSeek:
		return "seek"
	case ActionVolume:
		return "volume"
	case ActionZoom:
		return "zoom"
	}
	return "none"
}

var (
	ErrUnknownGesture = errors.New("gesture: unknown gesture")
	ErrUnknownAction  = errors.New("gesture: unknown action")
)

// ParseAction accepts seek, volume, zoom or none (any case).
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seek":
		return ActionSeek, nil
	case "volume":
		return ActionVolume, nil
	case "zoom":
		return ActionZoom, nil
	case "none", "":
		return ActionNone, nil
	}
	return ActionNone, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Config maps each gesture topology to an action.
type Config struct {
	Swipe  Action
	Pinch  Action
	Circle Action
}

// DefaultConfig is swipe to seek, pinch to volume, circle unused.
func DefaultConfig() Config {
	return Config{Swipe: ActionSeek, Pinch: ActionVolume, Circle: ActionNone}
}

// Action returns the action configured for k.
func (c Config) Action(k Kind) Action {
	switch k {
	case Swipe:
		return c.Swipe
	case Pinch:
		return c.Pinch
	case Circle:
		return c.Circle
	}
	return ActionNone
}

// Map renders the config in its external string form.
func (c Config) Map() map[string]string {
	return map[string]string{
		"swipe":  c.Swipe.String(),
		"pinch":  c.Pinch.String(),
		"circle": c.Circle.String(),
	}
}

// ParseConfig applies string settings such as {"swipe": "seek"} on top of
// base. Nothing is applied if any key or value is invalid.
func ParseConfig(base Config, m map[string]string) (Config, error) {
	out := base
	for k, v := range m {
		a, err := ParseAction(v)
		if err != nil {
			return base, err
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "swipe":
			out.Swipe = a
		case "pinch":
			out.Pinch = a
		case "circle":
			out.Circle = a
		default:
			return base, fmt.Errorf("%w: %q", ErrUnknownGesture, k)
		}
	}
	return out, nil
}
