// ABOUTME: Connection state machine for a Sendspin session
// ABOUTME: Pure transition function over (state, event) pairs; no I/O
package protocol

// State is a connection lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateHelloSent
	StateReady
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHelloSent:
		return "hello-sent"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// EventKind identifies an inbound event driving the state machine.
type EventKind int

const (
	EvTransportOpen EventKind = iota
	EvServerHello
	EvServerTime
	EvStreamStart
	EvStreamClear
	EvStreamEnd
	EvServerState
	EvGroupUpdate
	EvServerCommand
	EvServerGoodbye
	EvAudioChunk       // binary frame, tag 0x04
	EvAuxFrame         // binary frame, artwork or visualizer tag
	EvDrained          // scheduler fully drained
	EvHandshakeTimeout // no server/hello within the handshake window
	EvIdleTimeout      // no message within the idle window
)

// Event is an inbound occurrence: a decoded message, a binary frame, or a
// locally generated timer/lifecycle signal.
type Event struct {
	Kind EventKind
	Msg  Message // set for message events
}

// EventForMessage maps a decoded control message to its event kind.
// Unrecognized types map to no event and ok=false.
func EventForMessage(msg Message) (Event, bool) {
	var kind EventKind
	switch msg.Type {
	case TypeServerHello:
		kind = EvServerHello
	case TypeServerTime:
		kind = EvServerTime
	case TypeStreamStart:
		kind = EvStreamStart
	case TypeStreamClear:
		kind = EvStreamClear
	case TypeStreamEnd:
		kind = EvStreamEnd
	case TypeServerState:
		kind = EvServerState
	case TypeGroupUpdate:
		kind = EvGroupUpdate
	case TypeServerCommand:
		kind = EvServerCommand
	case TypeServerGoodbye:
		kind = EvServerGoodbye
	default:
		return Event{}, false
	}
	return Event{Kind: kind, Msg: msg}, true
}

// Action is an output the session layer must perform after a transition.
type Action int

const (
	ActSendHello       Action = iota // send client/hello
	ActUpdateClock                   // feed server/time into the estimator
	ActConfigureStream               // (re)configure decoder and sink from stream/start
	ActResetScheduler                // drop all queued audio
	ActEnqueueChunk                  // decode and enqueue the audio chunk
	ActDeliverAux                    // route artwork/visualizer frame to its buffer
	ActDeliver                       // surface server/state, group/update or server/command
	ActDrain                         // stop accepting audio, play out the queue
	ActClose                         // tear the connection down
)

// Transition applies an event to a state, returning the next state, the
// actions to perform in order, and a non-nil error when the edge is illegal.
// Illegal edges transition to Closed.
func Transition(state State, ev Event) (State, []Action, *Error) {
	switch state {
	case StateConnecting:
		if ev.Kind == EvTransportOpen {
			return StateHelloSent, []Action{ActSendHello}, nil
		}

	case StateHelloSent:
		switch ev.Kind {
		case EvServerHello:
			return StateReady, nil, nil
		case EvHandshakeTimeout:
			return StateClosed, []Action{ActClose}, HandshakeErrorf("handshake timeout")
		default:
			return StateClosed, []Action{ActClose},
				HandshakeErrorf("expected server/hello, got %s", eventName(ev))
		}

	case StateReady:
		switch ev.Kind {
		case EvStreamStart:
			return StateStreaming, []Action{ActResetScheduler, ActConfigureStream}, nil
		case EvServerTime:
			return StateReady, []Action{ActUpdateClock}, nil
		case EvServerState, EvGroupUpdate, EvServerCommand:
			return StateReady, []Action{ActDeliver}, nil
		case EvAuxFrame:
			return StateReady, []Action{ActDeliverAux}, nil
		case EvServerGoodbye:
			return StateClosed, []Action{ActClose}, nil
		case EvIdleTimeout:
			return StateClosed, []Action{ActClose}, TimeoutErrorf("idle timeout")
		case EvAudioChunk:
			// Audio before stream/start has no format to decode against.
			return StateClosed, []Action{ActClose},
				ProtocolErrorf("audio chunk before stream/start")
		}

	case StateStreaming:
		switch ev.Kind {
		case EvAudioChunk:
			return StateStreaming, []Action{ActEnqueueChunk}, nil
		case EvStreamClear:
			return StateStreaming, []Action{ActResetScheduler}, nil
		case EvStreamEnd:
			return StateDraining, []Action{ActDrain}, nil
		case EvStreamStart:
			// Format change: drop queued audio, reconfigure.
			return StateStreaming, []Action{ActResetScheduler, ActConfigureStream}, nil
		case EvServerTime:
			return StateStreaming, []Action{ActUpdateClock}, nil
		case EvServerState, EvGroupUpdate, EvServerCommand:
			return StateStreaming, []Action{ActDeliver}, nil
		case EvAuxFrame:
			return StateStreaming, []Action{ActDeliverAux}, nil
		case EvServerGoodbye:
			return StateClosed, []Action{ActClose}, nil
		case EvIdleTimeout:
			return StateClosed, []Action{ActClose}, TimeoutErrorf("idle timeout")
		}

	case StateDraining:
		switch ev.Kind {
		case EvDrained, EvServerGoodbye:
			return StateClosed, []Action{ActClose}, nil
		case EvAuxFrame:
			// Late aux frames during drain are dropped without protest.
			return StateDraining, nil, nil
		case EvIdleTimeout:
			return StateClosed, []Action{ActClose}, TimeoutErrorf("idle timeout")
		}

	case StateClosed:
		return StateClosed, nil, ProtocolErrorf("event %s on closed connection", eventName(ev))
	}

	return StateClosed, []Action{ActClose},
		ProtocolErrorf("%s not allowed in state %s", eventName(ev), state)
}

// CanSend reports whether the client may emit msgType in the given state.
// client/goodbye is permitted in every state except Closed so teardown can
// announce itself.
func CanSend(state State, msgType string) bool {
	if msgType == TypeClientGoodbye {
		return state != StateClosed
	}
	switch msgType {
	case TypeClientHello:
		return state == StateConnecting
	case TypeClientTime, TypeClientState, TypeClientCommand, TypeStreamRequestFormat:
		return state == StateReady || state == StateStreaming
	}
	return false
}

func eventName(ev Event) string {
	switch ev.Kind {
	case EvTransportOpen:
		return "transport-open"
	case EvAudioChunk:
		return "binary audio frame"
	case EvAuxFrame:
		return "binary aux frame"
	case EvDrained:
		return "drain complete"
	case EvHandshakeTimeout:
		return "handshake timeout"
	case EvIdleTimeout:
		return "idle timeout"
	default:
		if ev.Msg.Type != "" {
			return ev.Msg.Type
		}
		return "unknown event"
	}
}
