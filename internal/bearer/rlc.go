package bearer

type RlcMode int

const (
	RLC_SM RlcMode = iota
	RLC_UM
	RLC_AM
	RLC_TM
)

func (m RlcMode) String() string {
	switch m {
	case RLC_SM:
		return "SM"
	case RLC_UM:
		return "UM"
	case RLC_AM:
		return "AM"
	case RLC_TM:
		return "TM"
	default:
		return "UNKNOWN"
	}
}

type RlcPolicy int

const (
	RLC_POLICY_SM_ALWAYS RlcPolicy = iota
	RLC_POLICY_UM_ALWAYS
	RLC_POLICY_AM_ALWAYS
	RLC_POLICY_PER_BASED
)

// perThreshold separates loss-tolerant bearers (UM) from reliable ones (AM).
const perThreshold = 1.0e-5

func ModeFor(policy RlcPolicy, b EpsBearer) RlcMode {
	switch policy {
	case RLC_POLICY_SM_ALWAYS:
		return RLC_SM
	case RLC_POLICY_UM_ALWAYS:
		return RLC_UM
	case RLC_POLICY_AM_ALWAYS:
		return RLC_AM
	case RLC_POLICY_PER_BASED:
		if b.PacketErrorLossRate() > perThreshold {
			return RLC_UM
		}
		return RLC_AM
	default:
		return RLC_AM
	}
}

// Rlc is the control-plane view of an RLC entity.
type Rlc struct {
	Mode    RlcMode
	Started bool
}

func NewRlc(mode RlcMode) *Rlc {
	return &Rlc{Mode: mode}
}

func (r *Rlc) Start() {
	r.Started = true
}

// Pdcp keeps the sequence numbers needed for lossless handover.
type Pdcp struct {
	TxSn    uint16
	RxSn    uint16
	Started bool
}

type PdcpStatus struct {
	TxSn uint16
	RxSn uint16
}

func (p *Pdcp) Start() {
	p.Started = true
}

func (p *Pdcp) Status() PdcpStatus {
	return PdcpStatus{TxSn: p.TxSn, RxSn: p.RxSn}
}

func (p *Pdcp) SetStatus(s PdcpStatus) {
	p.TxSn = s.TxSn
	p.RxSn = s.RxSn
}

// NeedsPdcp is false for the saturation mode, which carries no real traffic.
func NeedsPdcp(mode RlcMode) bool {
	return mode != RLC_SM
}
