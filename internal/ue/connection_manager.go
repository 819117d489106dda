package ue

import (
	"fmt"
	"sort"
	"time"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/pkg/config"
)

const TIMER_T300 = "t300"

// Params wires a connection manager to its lower and upper layers.
type Params struct {
	Sched  *sim.Scheduler
	Timers config.TimersConfig
	Mac    sap.UeMac
	Phy    sap.UePhy
	Rrc    sap.UeRrcTransport
	Nas    sap.UeNas
	// Meas builds the measurement engine reporting to the new manager.
	// A MeasurementEngine is used when nil.
	Meas   func(target ReportTarget) sap.UeMeasurement
	Logger *logger.Logger
}

// ConnectionManager is the RRC of one UE: cell selection, connection
// establishment, reconfiguration and handover execution.
type ConnectionManager struct {
	*logger.Logger

	imsi         uint64
	csgWhiteList uint32
	t300         time.Duration
	timers       *sim.TimerSet

	mac  sap.UeMac
	phy  sap.UePhy
	rrc  sap.UeRrcTransport
	nas  sap.UeNas
	meas sap.UeMeasurement

	state       State
	cellId      uint16
	rnti        uint16
	dlEarfcn    uint32
	ulEarfcn    uint32
	dlBandwidth uint8
	ulBandwidth uint8

	connectionPending bool
	hasReceivedMib    bool
	hasReceivedSib1   bool
	hasReceivedSib2   bool
	lastSib1          rrcmsg.SystemInformationBlockType1

	lastRrcTransactionIdentifier uint8
	bearers                      *bearer.Store

	// strongest cell search state
	rsrp     map[uint16]float64
	excluded map[uint16]bool

	subscribers []func(Event)
}

func NewConnectionManager(cfg config.UeConfig, p Params) *ConnectionManager {
	log := p.Logger
	if log == nil {
		log = logger.InitLogger("info", nil)
	}
	ue := &ConnectionManager{
		Logger: log.With(map[string]string{
			"mod":  "UE",
			"imsi": fmt.Sprintf("%d", cfg.Imsi),
		}),
		imsi:         cfg.Imsi,
		csgWhiteList: cfg.CsgWhiteList,
		t300:         p.Timers.T300,
		timers:       sim.NewTimerSet(p.Sched),
		mac:          p.Mac,
		phy:          p.Phy,
		rrc:          p.Rrc,
		nas:          p.Nas,
		state:        STATE_START,
		bearers:      bearer.NewStore(),
		rsrp:         make(map[uint16]float64),
		excluded:     make(map[uint16]bool),
	}
	if p.Meas != nil {
		ue.meas = p.Meas(ue)
	} else {
		ue.meas = NewMeasurementEngine(p.Sched, ue, log)
	}
	return ue
}

func (ue *ConnectionManager) Imsi() uint64 {
	return ue.imsi
}

func (ue *ConnectionManager) CellId() uint16 {
	return ue.cellId
}

func (ue *ConnectionManager) Rnti() uint16 {
	return ue.rnti
}

func (ue *ConnectionManager) State() State {
	return ue.state
}

func (ue *ConnectionManager) Bearers() *bearer.Store {
	return ue.bearers
}

func (ue *ConnectionManager) Timers() *sim.TimerSet {
	return ue.timers
}

func (ue *ConnectionManager) ConnectionPending() bool {
	return ue.connectionPending
}

// ExcludedCells returns the acceptable cells skipped by cell search.
func (ue *ConnectionManager) ExcludedCells() []uint16 {
	out := make([]uint16, 0, len(ue.excluded))
	for c := range ue.excluded {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (ue *ConnectionManager) Subscribe(fn func(Event)) {
	ue.subscribers = append(ue.subscribers, fn)
}

func (ue *ConnectionManager) publish(kind EventKind, targetCellId uint16) {
	ev := Event{
		Kind:         kind,
		Imsi:         ue.imsi,
		CellId:       ue.cellId,
		Rnti:         ue.rnti,
		TargetCellId: targetCellId,
		NewState:     ue.state,
	}
	for _, fn := range ue.subscribers {
		fn(ev)
	}
}

func (ue *ConnectionManager) switchToState(next State) {
	prev := ue.state
	ue.state = next
	ue.Info("State transition: %s -> %s", prev, next)
	ev := Event{
		Kind:     EVENT_STATE_TRANSITION,
		Imsi:     ue.imsi,
		CellId:   ue.cellId,
		Rnti:     ue.rnti,
		OldState: prev,
		NewState: next,
	}
	for _, fn := range ue.subscribers {
		fn(ev)
	}

	switch next {
	case STATE_START:
		ue.Panic("Cannot switch to the initial state")
	case STATE_CAMPED_NORMALLY:
		if ue.connectionPending {
			ue.switchToState(STATE_WAIT_SIB2)
		}
	case STATE_WAIT_SIB2:
		if ue.hasReceivedSib2 {
			ue.startConnection()
		}
	}
}

func (ue *ConnectionManager) unexpected(op string) {
	ue.Panic("%s: unexpected in state %s", op, ue.state)
}

// StartCellSelection begins an automatic search on dlEarfcn.
func (ue *ConnectionManager) StartCellSelection(dlEarfcn uint32) {
	if ue.state != STATE_START {
		ue.Panic("StartCellSelection: cannot start cell selection from state %s", ue.state)
	}
	ue.dlEarfcn = dlEarfcn
	ue.phy.StartCellSearch(dlEarfcn)
	ue.switchToState(STATE_CELL_SEARCH)
}

// ForceCampedOnEnb skips cell search and attaches to a given cell.
func (ue *ConnectionManager) ForceCampedOnEnb(cellId uint16, dlEarfcn uint32) {
	switch ue.state {
	case STATE_START:
		ue.cellId = cellId
		ue.dlEarfcn = dlEarfcn
		ue.phy.SynchronizeWithEnb(cellId, dlEarfcn)
		ue.switchToState(STATE_WAIT_MIB)
	case STATE_CELL_SEARCH, STATE_WAIT_MIB_SIB1, STATE_WAIT_SIB1:
		ue.Panic("ForceCampedOnEnb: cannot abort cell selection in state %s", ue.state)
	default:
		ue.Warn("ForceCampedOnEnb ignored in state %s", ue.state)
	}
}

// Connect requests an RRC connection as soon as the UE is camped and
// has the uplink configuration.
func (ue *ConnectionManager) Connect() {
	switch ue.state {
	case STATE_START, STATE_CELL_SEARCH, STATE_WAIT_MIB_SIB1, STATE_WAIT_MIB, STATE_WAIT_SIB1:
		ue.connectionPending = true
	case STATE_CAMPED_NORMALLY:
		ue.connectionPending = true
		ue.switchToState(STATE_WAIT_SIB2)
	case STATE_WAIT_SIB2, STATE_RANDOM_ACCESS, STATE_CONNECTING:
		ue.Info("Connection request already ongoing")
	default:
		ue.Info("Already connected")
	}
}

func (ue *ConnectionManager) Disconnect() {
	switch ue.state {
	case STATE_START, STATE_CELL_SEARCH, STATE_WAIT_MIB_SIB1, STATE_WAIT_MIB, STATE_WAIT_SIB1, STATE_CAMPED_NORMALLY:
		ue.Info("Disconnect ignored: already idle")
	case STATE_WAIT_SIB2, STATE_RANDOM_ACCESS, STATE_CONNECTING:
		ue.Panic("Disconnect: cannot abort connection setup in state %s", ue.state)
	default:
		ue.leaveConnectedMode()
	}
}

func (ue *ConnectionManager) startConnection() {
	ue.connectionPending = false
	ue.switchToState(STATE_RANDOM_ACCESS)
	ue.mac.StartContentionBasedRandomAccess()
}

// leaveConnectedMode drops every dedicated resource and returns to idle
// on the current cell. The SIB2 of that cell has to be read again before
// the next connection.
func (ue *ConnectionManager) leaveConnectedMode() {
	ue.nas.NotifyConnectionReleased()
	ue.timers.CancelAll()
	ue.meas.ResetReports()
	for _, drb := range ue.bearers.Drbs() {
		ue.mac.RemoveLc(drb.Lcid)
	}
	ue.bearers.ClearDrbs()
	ue.bearers.ResetSrb1()
	ue.mac.Reset()
	ue.hasReceivedSib2 = false
	ue.rnti = 0
	ue.switchToState(STATE_CAMPED_NORMALLY)
}

// ReportUeMeasurements takes the periodic PHY measurements. During cell
// search they drive the choice of the strongest cell.
func (ue *ConnectionManager) ReportUeMeasurements(samples []sap.CellMeasurement) {
	for _, s := range samples {
		ue.rsrp[s.CellId] = s.Rsrp
	}
	if ue.state == STATE_CELL_SEARCH {
		ue.synchronizeToStrongestCell()
		return
	}
	ue.meas.Evaluate(samples)
}

// strongestCell picks the best measured cell not excluded from the search.
// Ties go to the lower cell id.
func (ue *ConnectionManager) strongestCell() (uint16, float64, bool) {
	var best uint16
	var bestRsrp float64
	found := false
	for cellId, rsrp := range ue.rsrp {
		if ue.excluded[cellId] {
			continue
		}
		if !found || rsrp > bestRsrp || (rsrp == bestRsrp && cellId < best) {
			best, bestRsrp, found = cellId, rsrp, true
		}
	}
	return best, bestRsrp, found
}

func (ue *ConnectionManager) synchronizeToStrongestCell() {
	best, bestRsrp, ok := ue.strongestCell()
	if !ok {
		ue.Debug("No candidate cell found yet")
		return
	}
	ue.Info("Synchronizing to cell %d, RSRP %.1f dBm", best, bestRsrp)
	ue.cellId = best
	ue.phy.SynchronizeWithEnb(best, ue.dlEarfcn)
	ue.switchToState(STATE_WAIT_MIB_SIB1)
}

func (ue *ConnectionManager) RecvMasterInformationBlock(cellId uint16, mib rrcmsg.MasterInformationBlock) {
	ue.dlBandwidth = mib.DlBandwidth
	ue.phy.SetDlBandwidth(mib.DlBandwidth)
	ue.hasReceivedMib = true
	switch ue.state {
	case STATE_WAIT_MIB:
		ue.switchToState(STATE_CAMPED_NORMALLY)
	case STATE_WAIT_MIB_SIB1:
		ue.switchToState(STATE_WAIT_SIB1)
	}
}

func (ue *ConnectionManager) RecvSystemInformationBlockType1(cellId uint16, sib1 rrcmsg.SystemInformationBlockType1) {
	if cellId != sib1.CellAccessRelatedInfo.CellIdentity {
		ue.Warn("SIB1 from cell %d carries identity %d", cellId, sib1.CellAccessRelatedInfo.CellIdentity)
		return
	}
	switch ue.state {
	case STATE_WAIT_SIB1:
		ue.hasReceivedSib1 = true
		ue.lastSib1 = sib1
		ue.evaluateCellForSelection()
	case STATE_CAMPED_NORMALLY, STATE_RANDOM_ACCESS, STATE_CONNECTING, STATE_CONNECTED_NORMALLY,
		STATE_CONNECTED_HANDOVER, STATE_CONNECTED_PHY_PROBLEM, STATE_CONNECTED_REESTABLISHING:
		ue.hasReceivedSib1 = true
		ue.lastSib1 = sib1
	}
}

// evaluateCellForSelection applies the S criterion and the CSG check to
// the cell whose SIB1 was just read.
func (ue *ConnectionManager) evaluateCellForSelection() {
	cellId := ue.lastSib1.CellAccessRelatedInfo.CellIdentity
	qRxLevMeas, measured := ue.rsrp[cellId]
	qRxLevMin := float64(ue.lastSib1.CellSelectionInfo.QRxLevMin) * 2

	acceptable := measured && qRxLevMeas-qRxLevMin > 0
	suitable := false
	if acceptable {
		info := ue.lastSib1.CellAccessRelatedInfo
		suitable = !info.CsgIndication || info.CsgIdentity == ue.csgWhiteList
	}
	ue.Debug("Cell %d: qrxlevmeas %.1f dBm, qrxlevmin %.1f dBm, acceptable %t, suitable %t",
		cellId, qRxLevMeas, qRxLevMin, acceptable, suitable)

	if suitable {
		ue.cellId = cellId
		ue.phy.SynchronizeWithEnb(cellId, ue.dlEarfcn)
		ue.phy.SetDlBandwidth(ue.dlBandwidth)
		ue.switchToState(STATE_CAMPED_NORMALLY)
		return
	}
	ue.hasReceivedMib = false
	ue.hasReceivedSib1 = false
	if acceptable {
		ue.Info("Cell %d excluded from cell search: csg %d not allowed", cellId, ue.lastSib1.CellAccessRelatedInfo.CsgIdentity)
		ue.excluded[cellId] = true
	}
	ue.switchToState(STATE_CELL_SEARCH)
	ue.synchronizeToStrongestCell()
}

func (ue *ConnectionManager) RecvSystemInformation(msg rrcmsg.SystemInformation) {
	if !msg.HaveSib2 {
		return
	}
	switch ue.state {
	case STATE_CAMPED_NORMALLY, STATE_WAIT_SIB2, STATE_RANDOM_ACCESS, STATE_CONNECTING, STATE_CONNECTED_NORMALLY,
		STATE_CONNECTED_HANDOVER, STATE_CONNECTED_PHY_PROBLEM, STATE_CONNECTED_REESTABLISHING:
	default:
		return
	}
	ue.hasReceivedSib2 = true
	ue.ulBandwidth = msg.Sib2.FreqInfo.UlBandwidth
	ue.ulEarfcn = msg.Sib2.FreqInfo.UlCarrierFreq
	ue.mac.ConfigureRach(msg.Sib2.RadioResourceConfigCommon.RachConfigCommon)
	ue.phy.ConfigureUplink(ue.ulEarfcn, ue.ulBandwidth)
	if ue.state == STATE_WAIT_SIB2 {
		ue.startConnection()
	}
}

// SetTemporaryCellRnti is called by the MAC when the random access
// response assigns a C-RNTI.
func (ue *ConnectionManager) SetTemporaryCellRnti(rnti uint16) {
	ue.rnti = rnti
	ue.phy.SetRnti(rnti)
}

func (ue *ConnectionManager) NotifyRandomAccessSuccessful() {
	switch ue.state {
	case STATE_RANDOM_ACCESS:
		ue.switchToState(STATE_CONNECTING)
		ue.rrc.SendRrcConnectionRequest(ue.rnti, rrcmsg.RrcConnectionRequest{UeIdentity: ue.imsi})
		ue.timers.Arm(TIMER_T300, ue.t300, ue.connectionTimeout)
	case STATE_CONNECTED_HANDOVER:
		ue.rrc.SendRrcConnectionReconfigurationCompleted(ue.rnti, rrcmsg.RrcConnectionReconfigurationCompleted{
			RrcTransactionIdentifier: ue.lastRrcTransactionIdentifier,
		})
		ue.meas.ResetReports()
		ue.switchToState(STATE_CONNECTED_NORMALLY)
		ue.publish(EVENT_HANDOVER_END_OK, 0)
	default:
		ue.unexpected("NotifyRandomAccessSuccessful")
	}
}

func (ue *ConnectionManager) NotifyRandomAccessFailed() {
	switch ue.state {
	case STATE_RANDOM_ACCESS:
		ue.publish(EVENT_RANDOM_ACCESS_ERROR, 0)
		ue.switchToState(STATE_CAMPED_NORMALLY)
		ue.nas.NotifyConnectionFailed()
	case STATE_CONNECTED_HANDOVER:
		ue.publish(EVENT_HANDOVER_END_ERROR, 0)
		ue.leaveConnectedMode()
	default:
		ue.unexpected("NotifyRandomAccessFailed")
	}
}

func (ue *ConnectionManager) connectionTimeout() {
	if ue.state != STATE_CONNECTING {
		ue.unexpected("connectionTimeout")
	}
	ue.Warn("T300 expired")
	ue.publish(EVENT_CONNECTION_TIMEOUT, 0)
	ue.mac.Reset()
	ue.hasReceivedSib2 = false
	ue.switchToState(STATE_CAMPED_NORMALLY)
	ue.nas.NotifyConnectionFailed()
}

// ReportTriggered sends a measurement report built by the measurement
// engine to the serving cell.
func (ue *ConnectionManager) ReportTriggered(measId uint8, results rrcmsg.MeasResults) {
	switch ue.state {
	case STATE_CONNECTED_NORMALLY, STATE_CONNECTED_PHY_PROBLEM, STATE_CONNECTED_REESTABLISHING:
		results.MeasId = measId
		ue.rrc.SendMeasurementReport(ue.rnti, rrcmsg.MeasurementReport{MeasResults: results})
	default:
		ue.Debug("Measurement report for meas id %d dropped in state %s", measId, ue.state)
	}
}

// NotifyOutOfSync and NotifyInSync report the radio link quality of the
// serving cell.
func (ue *ConnectionManager) NotifyOutOfSync() {
	if ue.state == STATE_CONNECTED_NORMALLY {
		ue.switchToState(STATE_CONNECTED_PHY_PROBLEM)
	}
}

func (ue *ConnectionManager) NotifyInSync() {
	if ue.state == STATE_CONNECTED_PHY_PROBLEM {
		ue.switchToState(STATE_CONNECTED_NORMALLY)
	}
}

// NotifyRadioLinkFailure starts a connection reestablishment with the
// serving cell.
func (ue *ConnectionManager) NotifyRadioLinkFailure() {
	switch ue.state {
	case STATE_CONNECTED_NORMALLY, STATE_CONNECTED_PHY_PROBLEM:
	default:
		ue.Warn("Radio link failure ignored in state %s", ue.state)
		return
	}
	ue.publish(EVENT_RADIO_LINK_FAILURE, 0)
	ue.meas.ResetReports()
	ue.switchToState(STATE_CONNECTED_REESTABLISHING)
	ue.rrc.SendRrcConnectionReestablishmentRequest(ue.rnti, rrcmsg.RrcConnectionReestablishmentRequest{
		UeIdentity:           rrcmsg.ReestabUeIdentity{CRnti: ue.rnti, PhysCellId: ue.cellId},
		ReestablishmentCause: rrcmsg.REESTABLISHMENT_CAUSE_OTHER_FAILURE,
	})
}
