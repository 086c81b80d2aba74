package tensorsink

// State is a lifecycle state of the element.
type State int

// Lifecycle states.
const (
	// StateStart means that element is created but not prepared by host.
	StateStart State = iota
	// StateInitialized means that element is ready to receive stream.
	StateInitialized
	// StateStreaming means that stream started.
	StateStreaming
	// StateEOS means that stream ended. Terminal.
	StateEOS
	// StateErrorOrWarning means that pipeline reported a fault. Terminal.
	StateErrorOrWarning
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateInitialized:
		return "initialized"
	case StateStreaming:
		return "streaming"
	case StateEOS:
		return "eos"
	case StateErrorOrWarning:
		return "error-or-warning"
	}
	return "unknown"
}

// Terminal returns true if no more buffers are accepted in this state.
func (s State) Terminal() bool {
	return s == StateEOS || s == StateErrorOrWarning
}

// event identifies the type of lifecycle event.
type event int

// types of events.
const (
	initialize event = iota
	start
	end
	fault
)

func (e event) String() string {
	switch e {
	case initialize:
		return "initialize"
	case start:
		return "stream-start"
	case end:
		return "eos"
	case fault:
		return "fault"
	}
	return "unknown"
}

// transition returns the state after event. ErrInvalidState is returned
// if event is not allowed in current state.
func (s State) transition(e event) (State, error) {
	if e == fault {
		if s.Terminal() {
			return s, ErrInvalidState
		}
		return StateErrorOrWarning, nil
	}
	switch s {
	case StateStart:
		switch e {
		case initialize:
			return StateInitialized, nil
		case start:
			return StateStreaming, nil
		case end:
			return StateEOS, nil
		}
	case StateInitialized:
		switch e {
		case start:
			return StateStreaming, nil
		case end:
			return StateEOS, nil
		}
	case StateStreaming:
		switch e {
		case end:
			return StateEOS, nil
		}
	}
	return s, ErrInvalidState
}
