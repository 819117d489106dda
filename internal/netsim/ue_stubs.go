package netsim

import (
	"sort"
	"time"

	"lte_rrc/internal/enb"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/internal/ue"
	"lte_rrc/pkg/config"
)

const (
	MIB_DELAY             = 10 * time.Millisecond
	SIB1_DELAY            = 20 * time.Millisecond
	UE_MEASUREMENT_PERIOD = 200 * time.Millisecond
	UE_MEASUREMENT_RSRQ   = -10.0
)

// Terminal is one UE: its connection manager, measurement engine and stub
// lower layers.
type Terminal struct {
	cfg  config.UeConfig
	ue   *ue.ConnectionManager
	meas *ue.MeasurementEngine
	mac  *terminalMac
	phy  *terminalPhy
	nas  *terminalNas
}

func (t *Terminal) Imsi() uint64 {
	return t.cfg.Imsi
}

func (t *Terminal) Rrc() *ue.ConnectionManager {
	return t.ue
}

func (t *Terminal) Measurements() *ue.MeasurementEngine {
	return t.meas
}

// NasCounters reports how many establishments succeeded, failed and were
// released.
func (t *Terminal) NasCounters() (successful, failed, released int) {
	return t.nas.successful, t.nas.failed, t.nas.released
}

// terminalMac performs random access against the cells of the network. An
// access completes after the configured delay; Reset aborts it.
type terminalMac struct {
	net     *Network
	term    *Terminal
	rach    *rrcmsg.RachConfigCommon
	lcs     map[uint8]sap.UeLcConfig
	pending sim.EventId
}

func (m *terminalMac) ConfigureRach(cfg rrcmsg.RachConfigCommon) {
	m.rach = &cfg
}

func (m *terminalMac) StartContentionBasedRandomAccess() {
	if m.rach == nil {
		m.term.ue.Panic("Random access without a RACH configuration")
	}
	cellId := m.term.ue.CellId()
	m.pending = m.net.sched.Schedule(m.net.cfg.Rrc.RaDelay, func() {
		if m.term.ue.State() != ue.STATE_RANDOM_ACCESS {
			return
		}
		cell, ok := m.net.cells[cellId]
		if !ok {
			m.term.ue.NotifyRandomAccessFailed()
			return
		}
		rnti := cell.AllocateTemporaryCellRnti()
		m.net.bind(cellId, rnti, m.term)
		m.term.ue.SetTemporaryCellRnti(rnti)
		m.term.ue.NotifyRandomAccessSuccessful()
	})
}

// StartNonContentionBasedRandomAccess succeeds only if the target cell
// still holds a joining context for rnti.
func (m *terminalMac) StartNonContentionBasedRandomAccess(rnti uint16, preambleId uint8, prachMask uint8) {
	cellId := m.term.ue.CellId()
	m.pending = m.net.sched.Schedule(m.net.cfg.Rrc.RaDelay, func() {
		if m.term.ue.State() != ue.STATE_CONNECTED_HANDOVER {
			return
		}
		if cell, ok := m.net.cells[cellId]; ok {
			ctx, found := cell.Ue(rnti)
			if found && ctx.State().Kind() == enb.UE_STATE_HANDOVER_JOINING {
				cell.mac.releasePreamble(rnti)
				m.net.bind(cellId, rnti, m.term)
				m.term.ue.NotifyRandomAccessSuccessful()
				return
			}
		}
		m.net.Warn("Dedicated preamble %d of rnti %d not answered by cell %d", preambleId, rnti, cellId)
		m.term.ue.NotifyRandomAccessFailed()
	})
}

func (m *terminalMac) AddLc(lc sap.UeLcConfig) {
	if m.lcs == nil {
		m.lcs = make(map[uint8]sap.UeLcConfig)
	}
	m.lcs[lc.Lcid] = lc
}

func (m *terminalMac) RemoveLc(lcid uint8) {
	delete(m.lcs, lcid)
}

func (m *terminalMac) Reset() {
	m.net.sched.Cancel(m.pending)
	m.lcs = nil
}

// terminalPhy tracks the carrier and cell the terminal listens to and
// produces its periodic measurements.
type terminalPhy struct {
	net         *Network
	term        *Terminal
	dlEarfcn    uint32
	cellId      uint16
	dlBandwidth uint8
	ulEarfcn    uint32
	ulBandwidth uint8
	rnti        uint16
	txMode      uint8
	srsCi       uint16
	pa          uint8
	measEvent   sim.EventId
}

func (p *terminalPhy) Reset() {
	p.cellId = 0
	p.rnti = 0
}

func (p *terminalPhy) StartCellSearch(dlEarfcn uint32) {
	p.dlEarfcn = dlEarfcn
	p.cellId = 0
}

// SynchronizeWithEnb schedules the MIB and SIB1 of the cell, read from
// its PHY at the time they are received.
func (p *terminalPhy) SynchronizeWithEnb(cellId uint16, dlEarfcn uint32) {
	p.dlEarfcn = dlEarfcn
	p.cellId = cellId
	cell, ok := p.net.cells[cellId]
	if !ok {
		p.net.Warn("Terminal %d synchronizing to unknown cell %d", p.term.Imsi(), cellId)
		return
	}
	p.net.sched.Schedule(MIB_DELAY, func() {
		if p.cellId == cellId && cell.phy.mib != nil {
			p.term.ue.RecvMasterInformationBlock(cellId, *cell.phy.mib)
		}
	})
	p.net.sched.Schedule(SIB1_DELAY, func() {
		if p.cellId == cellId && cell.phy.sib1 != nil {
			p.term.ue.RecvSystemInformationBlockType1(cellId, *cell.phy.sib1)
		}
	})
}

func (p *terminalPhy) SetDlBandwidth(dlBandwidth uint8) { p.dlBandwidth = dlBandwidth }
func (p *terminalPhy) SetRnti(rnti uint16)              { p.rnti = rnti }
func (p *terminalPhy) SetTransmissionMode(txMode uint8) { p.txMode = txMode }
func (p *terminalPhy) SetPa(pa uint8)                   { p.pa = pa }

func (p *terminalPhy) SetSrsConfigurationIndex(srsCi uint16) {
	p.srsCi = srsCi
}

func (p *terminalPhy) ConfigureUplink(ulEarfcn uint32, ulBandwidth uint8) {
	p.ulEarfcn = ulEarfcn
	p.ulBandwidth = ulBandwidth
}

func (p *terminalPhy) startMeasurements() {
	p.measEvent = p.net.sched.Schedule(UE_MEASUREMENT_PERIOD, p.measure)
}

func (p *terminalPhy) stopMeasurements() {
	p.net.sched.Cancel(p.measEvent)
}

// measure reports every cell on the current carrier.
func (p *terminalPhy) measure() {
	var samples []sap.CellMeasurement
	for _, id := range p.net.CellIds() {
		if p.net.cells[id].Config().DlEarfcn != p.dlEarfcn {
			continue
		}
		samples = append(samples, sap.CellMeasurement{
			CellId: id,
			Rsrp:   p.net.rsrpOf(p.term.Imsi(), id),
			Rsrq:   UE_MEASUREMENT_RSRQ,
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].CellId < samples[j].CellId })
	if len(samples) > 0 {
		p.term.ue.ReportUeMeasurements(samples)
	}
	p.measEvent = p.net.sched.Schedule(UE_MEASUREMENT_PERIOD, p.measure)
}

// terminalRrc delivers uplink RRC messages to the serving cell after the
// configured air delay, as long as the cell still knows the RNTI.
type terminalRrc struct {
	net  *Network
	term *Terminal
}

func (r *terminalRrc) deliver(rnti uint16, name string, fn func(cell *Cell)) {
	cellId := r.term.ue.CellId()
	r.net.sched.Schedule(r.net.cfg.Rrc.Delay, func() {
		cell, ok := r.net.cells[cellId]
		if !ok {
			r.net.Warn("%s to unknown cell %d dropped", name, cellId)
			return
		}
		if _, ok := cell.Ue(rnti); !ok {
			r.net.Debug("%s to cell %d dropped: no context for rnti %d", name, cellId, rnti)
			return
		}
		fn(cell)
	})
}

func (r *terminalRrc) SendRrcConnectionRequest(rnti uint16, msg rrcmsg.RrcConnectionRequest) {
	r.deliver(rnti, "RrcConnectionRequest", func(c *Cell) {
		c.RecvRrcConnectionRequest(rnti, msg)
	})
}

func (r *terminalRrc) SendRrcConnectionSetupCompleted(rnti uint16, msg rrcmsg.RrcConnectionSetupCompleted) {
	r.deliver(rnti, "RrcConnectionSetupCompleted", func(c *Cell) {
		c.RecvRrcConnectionSetupCompleted(rnti, msg)
	})
}

func (r *terminalRrc) SendRrcConnectionReconfigurationCompleted(rnti uint16, msg rrcmsg.RrcConnectionReconfigurationCompleted) {
	r.deliver(rnti, "RrcConnectionReconfigurationCompleted", func(c *Cell) {
		c.RecvRrcConnectionReconfigurationCompleted(rnti, msg)
	})
}

func (r *terminalRrc) SendRrcConnectionReestablishmentRequest(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentRequest) {
	r.deliver(rnti, "RrcConnectionReestablishmentRequest", func(c *Cell) {
		c.RecvRrcConnectionReestablishmentRequest(rnti, msg)
	})
}

func (r *terminalRrc) SendRrcConnectionReestablishmentComplete(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentComplete) {
	r.deliver(rnti, "RrcConnectionReestablishmentComplete", func(c *Cell) {
		c.RecvRrcConnectionReestablishmentComplete(rnti, msg)
	})
}

func (r *terminalRrc) SendMeasurementReport(rnti uint16, msg rrcmsg.MeasurementReport) {
	r.deliver(rnti, "MeasurementReport", func(c *Cell) {
		c.RecvMeasurementReport(rnti, msg)
	})
}

type terminalNas struct {
	successful int
	failed     int
	released   int
}

func (n *terminalNas) NotifyConnectionSuccessful() { n.successful++ }
func (n *terminalNas) NotifyConnectionFailed()     { n.failed++ }
func (n *terminalNas) NotifyConnectionReleased()   { n.released++ }
