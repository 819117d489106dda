package enb

type UeStateKind int

const (
	UE_STATE_INITIAL_RANDOM_ACCESS UeStateKind = iota
	UE_STATE_CONNECTION_SETUP
	UE_STATE_CONNECTION_REJECTED
	UE_STATE_CONNECTED_NORMALLY
	UE_STATE_CONNECTION_RECONFIGURATION
	UE_STATE_CONNECTION_REESTABLISHMENT
	UE_STATE_HANDOVER_PREPARATION
	UE_STATE_HANDOVER_JOINING
	UE_STATE_HANDOVER_PATH_SWITCH
	UE_STATE_HANDOVER_LEAVING
)

func ueStateToString(k UeStateKind) string {
	switch k {
	case UE_STATE_INITIAL_RANDOM_ACCESS:
		return "INITIAL_RANDOM_ACCESS"
	case UE_STATE_CONNECTION_SETUP:
		return "CONNECTION_SETUP"
	case UE_STATE_CONNECTION_REJECTED:
		return "CONNECTION_REJECTED"
	case UE_STATE_CONNECTED_NORMALLY:
		return "CONNECTED_NORMALLY"
	case UE_STATE_CONNECTION_RECONFIGURATION:
		return "CONNECTION_RECONFIGURATION"
	case UE_STATE_CONNECTION_REESTABLISHMENT:
		return "CONNECTION_REESTABLISHMENT"
	case UE_STATE_HANDOVER_PREPARATION:
		return "HANDOVER_PREPARATION"
	case UE_STATE_HANDOVER_JOINING:
		return "HANDOVER_JOINING"
	case UE_STATE_HANDOVER_PATH_SWITCH:
		return "HANDOVER_PATH_SWITCH"
	case UE_STATE_HANDOVER_LEAVING:
		return "HANDOVER_LEAVING"
	default:
		return "UNKNOWN"
	}
}

func (k UeStateKind) String() string {
	return ueStateToString(k)
}

// UeState is the state of a UE context on the eNodeB. Handover states carry
// the peer identifiers that are only meaningful while they last.
type UeState interface {
	Kind() UeStateKind
	String() string
}

type InitialRandomAccess struct{}

type ConnectionSetup struct{}

type ConnectionRejected struct{}

type ConnectedNormally struct{}

type ConnectionReconfiguration struct{}

type ConnectionReestablishment struct{}

type HandoverPreparation struct {
	TargetCellId uint16
}

type HandoverJoining struct {
	SourceCellId uint16
	SourceX2apId uint16
}

type HandoverPathSwitch struct {
	SourceCellId uint16
	SourceX2apId uint16
}

type HandoverLeaving struct {
	TargetCellId uint16
	TargetX2apId uint16
}

func (InitialRandomAccess) Kind() UeStateKind       { return UE_STATE_INITIAL_RANDOM_ACCESS }
func (ConnectionSetup) Kind() UeStateKind           { return UE_STATE_CONNECTION_SETUP }
func (ConnectionRejected) Kind() UeStateKind        { return UE_STATE_CONNECTION_REJECTED }
func (ConnectedNormally) Kind() UeStateKind         { return UE_STATE_CONNECTED_NORMALLY }
func (ConnectionReconfiguration) Kind() UeStateKind { return UE_STATE_CONNECTION_RECONFIGURATION }
func (ConnectionReestablishment) Kind() UeStateKind { return UE_STATE_CONNECTION_REESTABLISHMENT }
func (HandoverPreparation) Kind() UeStateKind       { return UE_STATE_HANDOVER_PREPARATION }
func (HandoverJoining) Kind() UeStateKind           { return UE_STATE_HANDOVER_JOINING }
func (HandoverPathSwitch) Kind() UeStateKind        { return UE_STATE_HANDOVER_PATH_SWITCH }
func (HandoverLeaving) Kind() UeStateKind           { return UE_STATE_HANDOVER_LEAVING }

func (s InitialRandomAccess) String() string       { return s.Kind().String() }
func (s ConnectionSetup) String() string           { return s.Kind().String() }
func (s ConnectionRejected) String() string        { return s.Kind().String() }
func (s ConnectedNormally) String() string         { return s.Kind().String() }
func (s ConnectionReconfiguration) String() string { return s.Kind().String() }
func (s ConnectionReestablishment) String() string { return s.Kind().String() }
func (s HandoverPreparation) String() string       { return s.Kind().String() }
func (s HandoverJoining) String() string           { return s.Kind().String() }
func (s HandoverPathSwitch) String() string        { return s.Kind().String() }
func (s HandoverLeaving) String() string           { return s.Kind().String() }
