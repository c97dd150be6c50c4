package audioengine

import (
	"encoding/json"
	"fmt"
)

const eventBuffer = 32

// EventKind identifies a transport event.
type EventKind int

const (
	// EventState is a play/stop transition requested through the Player.
	EventState EventKind = iota
	// EventLoaded follows a Load.
	EventLoaded
	// EventSeek follows a Seek.
	EventSeek
	// EventEnded is sent when playback stopped at the end of the tracks.
	EventEnded
	// EventDegraded is sent when the device underran and the session was
	// aborted.
	EventDegraded
)

var eventNames = map[EventKind]string{
	EventState:    "state",
	EventLoaded:   "loaded",
	EventSeek:     "seek",
	EventEnded:    "ended",
	EventDegraded: "degraded",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for kind, n := range eventNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", name)
}

func (s TransportState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TransportState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, st := range []TransportState{StateIdle, StateStopped, StatePlaying} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transport state %q", name)
}

// Event reports a transport change.
type Event struct {
	Kind     EventKind      `json:"kind"`
	State    TransportState `json:"state"`
	Position float64        `json:"position"`
	Duration float64        `json:"duration"`
}

// emit never blocks; events are dropped when the channel is full.
func (p *Player) emit(e Event) {
	select {
	case p.events <- e:
	default:
		p.log.Debugf("Dropped %v event", e.Kind)
	}
}

// emitState sends the current transport state. Called with p.mu held.
func (p *Player) emitState(kind EventKind) {
	pos := p.clock.Position()
	if f, ok := p.ctl.pendingSeek(); ok {
		pos = p.clock.secondsAt(f)
	}
	p.emit(Event{
		Kind:     kind,
		State:    p.clock.State(),
		Position: pos,
		Duration: p.clock.Duration(),
	})
}
