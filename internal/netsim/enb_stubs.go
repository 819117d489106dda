package netsim

import (
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/ue"
)

const (
	// Preambles below NUMBER_OF_RA_PREAMBLES are contention based, the rest
	// are handed out for handovers.
	NUMBER_OF_RA_PREAMBLES = 52
	MAX_PREAMBLE_ID        = 64
	PREAMBLE_TRANS_MAX     = 50
	RA_RESPONSE_WINDOW     = 3
)

// cellMac is the stub eNodeB MAC. It only keeps the per UE bookkeeping and
// the dedicated preamble pool.
type cellMac struct {
	net       *Network
	cellId    uint16
	ues       map[uint16]bool
	lcs       map[uint16]map[uint8]sap.LcInfo
	txModes   map[uint16]uint8
	preambles map[uint8]uint16
}

func newCellMac(n *Network, cellId uint16) *cellMac {
	return &cellMac{
		net:       n,
		cellId:    cellId,
		ues:       make(map[uint16]bool),
		lcs:       make(map[uint16]map[uint8]sap.LcInfo),
		txModes:   make(map[uint16]uint8),
		preambles: make(map[uint8]uint16),
	}
}

func (m *cellMac) AddUe(rnti uint16) {
	m.ues[rnti] = true
	m.lcs[rnti] = make(map[uint8]sap.LcInfo)
}

func (m *cellMac) RemoveUe(rnti uint16) {
	delete(m.ues, rnti)
	delete(m.lcs, rnti)
	delete(m.txModes, rnti)
	m.releasePreamble(rnti)
	m.net.unbind(m.cellId, rnti)
}

func (m *cellMac) AddLc(lc sap.LcInfo) {
	if m.lcs[lc.Rnti] == nil {
		m.lcs[lc.Rnti] = make(map[uint8]sap.LcInfo)
	}
	m.lcs[lc.Rnti][lc.Lcid] = lc
}

func (m *cellMac) ReleaseLc(rnti uint16, lcid uint8) {
	delete(m.lcs[rnti], lcid)
}

func (m *cellMac) UeUpdateConfig(rnti uint16, transmissionMode uint8) {
	m.txModes[rnti] = transmissionMode
}

func (m *cellMac) AllocateNcRaPreamble(rnti uint16) (sap.NcRaPreamble, bool) {
	for id := uint8(NUMBER_OF_RA_PREAMBLES); id < MAX_PREAMBLE_ID; id++ {
		if _, used := m.preambles[id]; !used {
			m.preambles[id] = rnti
			return sap.NcRaPreamble{PreambleId: id, PrachMaskIndex: 0}, true
		}
	}
	return sap.NcRaPreamble{}, false
}

func (m *cellMac) releasePreamble(rnti uint16) {
	for id, owner := range m.preambles {
		if owner == rnti {
			delete(m.preambles, id)
		}
	}
}

func (m *cellMac) RachConfig() rrcmsg.RachConfigCommon {
	return rrcmsg.RachConfigCommon{
		NumberOfRaPreambles: NUMBER_OF_RA_PREAMBLES,
		PreambleTransMax:    PREAMBLE_TRANS_MAX,
		RaResponseWindow:    RA_RESPONSE_WINDOW,
		ConnEstFailCount:    1,
	}
}

// LogicalChannels returns the channels configured for rnti.
func (m *cellMac) LogicalChannels(rnti uint16) map[uint8]sap.LcInfo {
	return m.lcs[rnti]
}

func (m *cellMac) PreamblesInUse() int {
	return len(m.preambles)
}

type phyUe struct {
	txMode uint8
	srsCi  uint16
	pa     uint8
}

// cellPhy records what the RRC hands to the eNodeB PHY. The stored MIB and
// SIB1 are what terminals read when they synchronize.
type cellPhy struct {
	cellId uint16
	mib    *rrcmsg.MasterInformationBlock
	sib1   *rrcmsg.SystemInformationBlockType1
	ues    map[uint16]*phyUe
}

func newCellPhy(cellId uint16) *cellPhy {
	return &cellPhy{cellId: cellId, ues: make(map[uint16]*phyUe)}
}

func (p *cellPhy) AddUe(rnti uint16)    { p.ues[rnti] = &phyUe{} }
func (p *cellPhy) RemoveUe(rnti uint16) { delete(p.ues, rnti) }

func (p *cellPhy) ue(rnti uint16) *phyUe {
	u, ok := p.ues[rnti]
	if !ok {
		u = &phyUe{}
		p.ues[rnti] = u
	}
	return u
}

func (p *cellPhy) SetTransmissionMode(rnti uint16, txMode uint8)     { p.ue(rnti).txMode = txMode }
func (p *cellPhy) SetSrsConfigurationIndex(rnti uint16, srsCi uint16) { p.ue(rnti).srsCi = srsCi }
func (p *cellPhy) SetPa(rnti uint16, pa uint8)                        { p.ue(rnti).pa = pa }

func (p *cellPhy) SetMasterInformationBlock(mib rrcmsg.MasterInformationBlock) {
	p.mib = &mib
}

func (p *cellPhy) SetSystemInformationBlockType1(sib1 rrcmsg.SystemInformationBlockType1) {
	p.sib1 = &sib1
}

// cellRrc delivers downlink RRC messages to the terminal bound to an RNTI
// of its cell after the configured air delay.
type cellRrc struct {
	net    *Network
	cellId uint16
}

func (r *cellRrc) deliver(rnti uint16, name string, fn func(cm *ue.ConnectionManager)) {
	r.net.sched.Schedule(r.net.cfg.Rrc.Delay, func() {
		t, ok := r.net.terminalAt(r.cellId, rnti)
		if !ok {
			r.net.Debug("%s from cell %d dropped: rnti %d not bound", name, r.cellId, rnti)
			return
		}
		fn(t.ue)
	})
}

// SendSystemInformation reaches every terminal synchronized to the cell.
func (r *cellRrc) SendSystemInformation(cellId uint16, msg rrcmsg.SystemInformation) {
	for _, imsi := range r.net.Imsis() {
		t := r.net.terminals[imsi]
		if t.phy.cellId != cellId {
			continue
		}
		r.net.sched.Schedule(r.net.cfg.Rrc.Delay, func() {
			if t.phy.cellId == cellId {
				t.ue.RecvSystemInformation(msg)
			}
		})
	}
}

func (r *cellRrc) SendRrcConnectionSetup(rnti uint16, msg rrcmsg.RrcConnectionSetup) {
	r.deliver(rnti, "RrcConnectionSetup", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionSetup(msg)
	})
}

func (r *cellRrc) SendRrcConnectionReconfiguration(rnti uint16, msg rrcmsg.RrcConnectionReconfiguration) {
	r.deliver(rnti, "RrcConnectionReconfiguration", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionReconfiguration(msg)
	})
}

func (r *cellRrc) SendRrcConnectionReestablishment(rnti uint16, msg rrcmsg.RrcConnectionReestablishment) {
	r.deliver(rnti, "RrcConnectionReestablishment", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionReestablishment(msg)
	})
}

func (r *cellRrc) SendRrcConnectionReestablishmentReject(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentReject) {
	r.deliver(rnti, "RrcConnectionReestablishmentReject", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionReestablishmentReject(msg)
	})
}

func (r *cellRrc) SendRrcConnectionRelease(rnti uint16, msg rrcmsg.RrcConnectionRelease) {
	r.deliver(rnti, "RrcConnectionRelease", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionRelease(msg)
	})
}

func (r *cellRrc) SendRrcConnectionReject(rnti uint16, msg rrcmsg.RrcConnectionReject) {
	r.deliver(rnti, "RrcConnectionReject", func(cm *ue.ConnectionManager) {
		cm.RecvRrcConnectionReject(msg)
	})
}
