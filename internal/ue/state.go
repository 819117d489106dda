package ue

type State uint8

const (
	STATE_START State = iota
	STATE_CELL_SEARCH
	STATE_WAIT_MIB_SIB1
	STATE_WAIT_MIB
	STATE_WAIT_SIB1
	STATE_CAMPED_NORMALLY
	STATE_WAIT_SIB2
	STATE_RANDOM_ACCESS
	STATE_CONNECTING
	STATE_CONNECTED_NORMALLY
	STATE_CONNECTED_HANDOVER
	STATE_CONNECTED_PHY_PROBLEM
	STATE_CONNECTED_REESTABLISHING
)

func stateToString(s State) string {
	switch s {
	case STATE_START:
		return "IDLE_START"
	case STATE_CELL_SEARCH:
		return "IDLE_CELL_SEARCH"
	case STATE_WAIT_MIB_SIB1:
		return "IDLE_WAIT_MIB_SIB1"
	case STATE_WAIT_MIB:
		return "IDLE_WAIT_MIB"
	case STATE_WAIT_SIB1:
		return "IDLE_WAIT_SIB1"
	case STATE_CAMPED_NORMALLY:
		return "IDLE_CAMPED_NORMALLY"
	case STATE_WAIT_SIB2:
		return "IDLE_WAIT_SIB2"
	case STATE_RANDOM_ACCESS:
		return "IDLE_RANDOM_ACCESS"
	case STATE_CONNECTING:
		return "IDLE_CONNECTING"
	case STATE_CONNECTED_NORMALLY:
		return "CONNECTED_NORMALLY"
	case STATE_CONNECTED_HANDOVER:
		return "CONNECTED_HANDOVER"
	case STATE_CONNECTED_PHY_PROBLEM:
		return "CONNECTED_PHY_PROBLEM"
	case STATE_CONNECTED_REESTABLISHING:
		return "CONNECTED_REESTABLISHING"
	default:
		return "UNKNOWN"
	}
}

func (s State) String() string {
	return stateToString(s)
}

// IsConnected reports whether s is one of the RRC connected states.
func (s State) IsConnected() bool {
	return s >= STATE_CONNECTED_NORMALLY
}

type EventKind int

const (
	EVENT_STATE_TRANSITION EventKind = iota
	EVENT_CONNECTION_ESTABLISHED
	EVENT_CONNECTION_RECONFIGURATION
	EVENT_HANDOVER_START
	EVENT_HANDOVER_END_OK
	EVENT_HANDOVER_END_ERROR
	EVENT_RANDOM_ACCESS_ERROR
	EVENT_CONNECTION_TIMEOUT
	EVENT_RADIO_LINK_FAILURE
)

func eventToString(k EventKind) string {
	switch k {
	case EVENT_STATE_TRANSITION:
		return "STATE_TRANSITION"
	case EVENT_CONNECTION_ESTABLISHED:
		return "CONNECTION_ESTABLISHED"
	case EVENT_CONNECTION_RECONFIGURATION:
		return "CONNECTION_RECONFIGURATION"
	case EVENT_HANDOVER_START:
		return "HANDOVER_START"
	case EVENT_HANDOVER_END_OK:
		return "HANDOVER_END_OK"
	case EVENT_HANDOVER_END_ERROR:
		return "HANDOVER_END_ERROR"
	case EVENT_RANDOM_ACCESS_ERROR:
		return "RANDOM_ACCESS_ERROR"
	case EVENT_CONNECTION_TIMEOUT:
		return "CONNECTION_TIMEOUT"
	case EVENT_RADIO_LINK_FAILURE:
		return "RADIO_LINK_FAILURE"
	default:
		return "UNKNOWN"
	}
}

func (k EventKind) String() string {
	return eventToString(k)
}

// Event is published to subscribers of a connection manager.
type Event struct {
	Kind         EventKind
	Imsi         uint64
	CellId       uint16
	Rnti         uint16
	TargetCellId uint16
	OldState     State
	NewState     State
}
