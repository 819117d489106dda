package enb

import (
	"fmt"
	"net/netip"
	"time"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
)

// Supervision timers of a UE context.
const (
	TIMER_CONNECTION_REQUEST  = "connection_request"
	TIMER_CONNECTION_SETUP    = "connection_setup"
	TIMER_CONNECTION_REJECTED = "connection_rejected"
	TIMER_HANDOVER_JOINING    = "handover_joining"
	TIMER_HANDOVER_LEAVING    = "handover_leaving"
)

// timerState is the only state in which each timer may expire.
var timerState = map[string]UeStateKind{
	TIMER_CONNECTION_REQUEST:  UE_STATE_INITIAL_RANDOM_ACCESS,
	TIMER_CONNECTION_SETUP:    UE_STATE_CONNECTION_SETUP,
	TIMER_CONNECTION_REJECTED: UE_STATE_CONNECTION_REJECTED,
	TIMER_HANDOVER_JOINING:    UE_STATE_HANDOVER_JOINING,
	TIMER_HANDOVER_LEAVING:    UE_STATE_HANDOVER_LEAVING,
}

const rrcTransactionIdentifierSpace = 4

// UeContext is the per-UE RRC state machine on the eNodeB. It never changes
// the cell directly: everything it needs from the cell goes through owner.
type UeContext struct {
	*logger.Logger

	owner  ueOwner
	links  *cellLinks
	rnti   uint16
	imsi   uint64
	state  UeState
	timers *sim.TimerSet

	bearers                      *bearer.Store
	lastRrcTransactionIdentifier uint8
	pendingReconfiguration       bool
	needPhyMacConfiguration      bool
	drbsToBeStarted              []uint8
	drbsToRelease                []uint8

	transmissionMode      uint8
	srsConfigurationIndex uint16
	pa                    uint8
}

func newUeContext(owner ueOwner, links *cellLinks, sched *sim.Scheduler, log *logger.Logger,
	rnti uint16, srsCi uint16, state UeState) *UeContext {
	ctx := &UeContext{
		Logger:                log.With(map[string]string{"rnti": fmt.Sprintf("%d", rnti)}),
		owner:                 owner,
		links:                 links,
		rnti:                  rnti,
		state:                 state,
		timers:                sim.NewTimerSet(sched),
		bearers:               bearer.NewStore(),
		transmissionMode:      owner.cellConfig().DefaultTransmissionMode,
		srsConfigurationIndex: srsCi,
		pa:                    rrcmsg.PA_DB_0,
	}
	switch state.(type) {
	case InitialRandomAccess, HandoverJoining:
	default:
		ctx.Panic("Cannot create UE context in state %s", state)
	}

	links.mac.AddUe(rnti)
	links.phy.AddUe(rnti)

	srb0 := ctx.bearers.Srb0()
	srb0.Rlc.Start()
	links.mac.AddLc(sap.LcInfo{Rnti: rnti, Lcid: srb0.Lcid})

	srb1, err := ctx.bearers.SetupSrb1(bearer.Srb1LogicalChannelConfig())
	if err != nil {
		ctx.Panic("Setup SRB1: %v", err)
	}
	srb1.Rlc.Start()
	srb1.Pdcp.Start()
	links.mac.AddLc(sap.LcInfo{
		Rnti:                 rnti,
		Lcid:                 srb1.Lcid,
		Bearer:               bearer.EpsBearer{Qci: bearer.QCI_GBR_CONV_VOICE},
		IsGbr:                true,
		LogicalChannelConfig: srb1.LogicalChannelConfig,
	})

	links.mac.UeUpdateConfig(rnti, ctx.transmissionMode)
	links.phy.SetTransmissionMode(rnti, ctx.transmissionMode)
	links.phy.SetSrsConfigurationIndex(rnti, ctx.srsConfigurationIndex)

	timers := owner.timersConfig()
	switch state.(type) {
	case InitialRandomAccess:
		ctx.armTimer(TIMER_CONNECTION_REQUEST, timers.ConnectionRequestTimeout)
	case HandoverJoining:
		ctx.armTimer(TIMER_HANDOVER_JOINING, timers.HandoverJoiningTimeout)
	}
	ctx.Info("UE context created in state %s, srs index %d", state, srsCi)
	return ctx
}

func (ctx *UeContext) Rnti() uint16 {
	return ctx.rnti
}

func (ctx *UeContext) Imsi() uint64 {
	return ctx.imsi
}

func (ctx *UeContext) State() UeState {
	return ctx.state
}

func (ctx *UeContext) Bearers() *bearer.Store {
	return ctx.bearers
}

func (ctx *UeContext) Timers() *sim.TimerSet {
	return ctx.timers
}

func (ctx *UeContext) SrsConfigurationIndex() uint16 {
	return ctx.srsConfigurationIndex
}

func (ctx *UeContext) PendingReconfiguration() bool {
	return ctx.pendingReconfiguration
}

func (ctx *UeContext) setImsi(imsi uint64) {
	ctx.imsi = imsi
	ctx.Logger = ctx.Logger.With(map[string]string{"imsi": fmt.Sprintf("%d", imsi)})
}

func (ctx *UeContext) switchToState(next UeState) {
	prev := ctx.state
	ctx.state = next
	ctx.Info("State transition: %s -> %s", prev, next)
	ctx.owner.ueStateChanged(ctx, prev, next)

	switch next.(type) {
	case InitialRandomAccess, HandoverJoining:
		ctx.Panic("Cannot switch to state %s", next)
	case ConnectedNormally:
		if ctx.pendingReconfiguration {
			ctx.ScheduleReconfiguration()
		}
	}
}

func (ctx *UeContext) armTimer(name string, d time.Duration) {
	ctx.timers.Arm(name, d, func() {
		ctx.timerExpired(name)
	})
}

func (ctx *UeContext) timerExpired(name string) {
	if want := timerState[name]; ctx.state.Kind() != want {
		ctx.Panic("Timer %s expired in state %s", name, ctx.state)
	}
	ctx.Warn("Timer %s expired in state %s", name, ctx.state)
	ctx.owner.ueTimedOut(ctx, name)
}

func (ctx *UeContext) nextRrcTransactionIdentifier() uint8 {
	ctx.lastRrcTransactionIdentifier = (ctx.lastRrcTransactionIdentifier + 1) % rrcTransactionIdentifierSpace
	return ctx.lastRrcTransactionIdentifier
}

func (ctx *UeContext) physicalConfigDedicated() *rrcmsg.PhysicalConfigDedicated {
	txMode, srsCi, pa := ctx.transmissionMode, ctx.srsConfigurationIndex, ctx.pa
	return &rrcmsg.PhysicalConfigDedicated{
		TransmissionMode: &txMode,
		SrsConfigIndex:   &srsCi,
		Pa:               &pa,
	}
}

// BuildRadioResourceConfigDedicated describes SRB1, every DRB and the
// dedicated physical configuration as currently held.
func (ctx *UeContext) BuildRadioResourceConfigDedicated() rrcmsg.RadioResourceConfigDedicated {
	rrcd := rrcmsg.RadioResourceConfigDedicated{
		PhysicalConfigDedicated: ctx.physicalConfigDedicated(),
	}
	if srb1 := ctx.bearers.Srb1(); srb1 != nil {
		rrcd.SrbToAddModList = append(rrcd.SrbToAddModList, rrcmsg.SrbToAddMod{
			SrbIdentity:          srb1.SrbIdentity,
			LogicalChannelConfig: srb1.LogicalChannelConfig,
		})
	}
	for _, drb := range ctx.bearers.Drbs() {
		rrcd.DrbToAddModList = append(rrcd.DrbToAddModList, rrcmsg.DrbToAddModFor(drb))
	}
	return rrcd
}

func (ctx *UeContext) buildReconfiguration() rrcmsg.RrcConnectionReconfiguration {
	rrcd := ctx.BuildRadioResourceConfigDedicated()
	if len(ctx.drbsToRelease) > 0 {
		rrcd.DrbToReleaseList = append([]uint8(nil), ctx.drbsToRelease...)
	}
	return rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier:     ctx.nextRrcTransactionIdentifier(),
		MeasConfig:                   ctx.owner.ueMeasConfig(),
		RadioResourceConfigDedicated: &rrcd,
	}
}

// SetupDataRadioBearer creates a DRB for an EPS bearer and returns its
// identity. A non-zero bearerId pins the DRB identity.
func (ctx *UeContext) SetupDataRadioBearer(b bearer.EpsBearer, bearerId uint8, gtpTeid uint32, addr netip.Addr) uint8 {
	var drbid uint8
	if bearerId != 0 {
		drbid = bearer.DrbForBearerId(bearerId)
	} else {
		id, err := ctx.bearers.AllocateDrbId()
		if err != nil {
			ctx.Panic("SetupDataRadioBearer: %v", err)
		}
		drbid = id
	}

	drb := bearer.NewDataRadioBearer(drbid, bearer.BearerIdForDrb(drbid), b, bearer.ModeFor(ctx.owner.rlcPolicy(), b))
	drb.GtpTeid = gtpTeid
	drb.TransportLayerAddress = addr
	if err := ctx.bearers.AddDrb(drb); err != nil {
		ctx.Panic("SetupDataRadioBearer: %v", err)
	}
	ctx.links.mac.AddLc(sap.LcInfo{
		Rnti:                 ctx.rnti,
		Lcid:                 drb.Lcid,
		Bearer:               b,
		IsGbr:                b.IsGbr(),
		LogicalChannelConfig: drb.LogicalChannelConfig,
	})
	ctx.Info("Data radio bearer %d set up: qci %d, lcid %d, rlc %s", drbid, b.Qci, drb.Lcid, drb.RlcMode())

	ctx.ScheduleReconfiguration()
	return drbid
}

// ReleaseDataRadioBearer removes the DRB and queues it for the release list
// of the next reconfiguration.
func (ctx *UeContext) ReleaseDataRadioBearer(drbid uint8) error {
	drb, err := ctx.bearers.RemoveDrb(drbid)
	if err != nil {
		return fmt.Errorf("release data radio bearer: %w", err)
	}
	ctx.links.mac.ReleaseLc(ctx.rnti, drb.Lcid)
	ctx.drbsToRelease = append(ctx.drbsToRelease, drbid)
	ctx.Info("Data radio bearer %d released", drbid)
	ctx.ScheduleReconfiguration()
	return nil
}

func (ctx *UeContext) recordDataRadioBearersToBeStarted() {
	ctx.drbsToBeStarted = append(ctx.drbsToBeStarted[:0], ctx.bearers.DrbIds()...)
}

func (ctx *UeContext) startDataRadioBearers() {
	for _, id := range ctx.drbsToBeStarted {
		drb, ok := ctx.bearers.Drb(id)
		if !ok {
			continue
		}
		drb.Rlc.Start()
		if drb.Pdcp != nil {
			drb.Pdcp.Start()
		}
	}
	ctx.drbsToBeStarted = ctx.drbsToBeStarted[:0]
}

// ScheduleReconfiguration sends a reconfiguration right away when the UE is
// connected and idle, otherwise remembers that one is owed.
func (ctx *UeContext) ScheduleReconfiguration() {
	switch ctx.state.(type) {
	case InitialRandomAccess, ConnectionSetup, ConnectionReconfiguration, ConnectionReestablishment,
		HandoverPreparation, HandoverJoining, HandoverLeaving:
		ctx.pendingReconfiguration = true
	case ConnectedNormally:
		ctx.pendingReconfiguration = false
		msg := ctx.buildReconfiguration()
		ctx.drbsToRelease = nil
		ctx.links.rrc.SendRrcConnectionReconfiguration(ctx.rnti, msg)
		ctx.recordDataRadioBearersToBeStarted()
		ctx.switchToState(ConnectionReconfiguration{})
	default:
		ctx.Panic("ScheduleReconfiguration: unexpected state %s", ctx.state)
	}
}

func (ctx *UeContext) RecvRrcConnectionRequest(msg rrcmsg.RrcConnectionRequest) {
	if _, ok := ctx.state.(InitialRandomAccess); !ok {
		ctx.Panic("RecvRrcConnectionRequest: unexpected state %s", ctx.state)
	}
	ctx.timers.Cancel(TIMER_CONNECTION_REQUEST)
	timers := ctx.owner.timersConfig()

	if !ctx.owner.cellConfig().AdmitsConnections() {
		ctx.Info("Connection request from %d not admitted", msg.UeIdentity)
		ctx.links.rrc.SendRrcConnectionReject(ctx.rnti, rrcmsg.RrcConnectionReject{WaitTime: 3})
		ctx.armTimer(TIMER_CONNECTION_REJECTED, timers.ConnectionRejectedTimeout)
		ctx.switchToState(ConnectionRejected{})
		return
	}

	ctx.setImsi(msg.UeIdentity)
	ctx.links.s1.InitialUeMessage(ctx.imsi, ctx.rnti)
	ctx.links.rrc.SendRrcConnectionSetup(ctx.rnti, rrcmsg.RrcConnectionSetup{
		RrcTransactionIdentifier:     ctx.nextRrcTransactionIdentifier(),
		RadioResourceConfigDedicated: ctx.BuildRadioResourceConfigDedicated(),
	})
	ctx.recordDataRadioBearersToBeStarted()
	ctx.armTimer(TIMER_CONNECTION_SETUP, timers.ConnectionSetupTimeout)
	ctx.switchToState(ConnectionSetup{})
}

func (ctx *UeContext) RecvRrcConnectionSetupCompleted(msg rrcmsg.RrcConnectionSetupCompleted) {
	if _, ok := ctx.state.(ConnectionSetup); !ok {
		ctx.Panic("RecvRrcConnectionSetupCompleted: unexpected state %s", ctx.state)
	}
	ctx.timers.Cancel(TIMER_CONNECTION_SETUP)
	ctx.startDataRadioBearers()
	ctx.switchToState(ConnectedNormally{})
	ctx.owner.ueEvent(ctx, UE_EVENT_CONNECTION_ESTABLISHED, 0)
}

func (ctx *UeContext) RecvRrcConnectionReconfigurationCompleted(msg rrcmsg.RrcConnectionReconfigurationCompleted) {
	switch s := ctx.state.(type) {
	case ConnectionReconfiguration:
		if msg.RrcTransactionIdentifier != ctx.lastRrcTransactionIdentifier {
			ctx.Warn("Reconfiguration complete %d ignored, awaiting transaction %d",
				msg.RrcTransactionIdentifier, ctx.lastRrcTransactionIdentifier)
			return
		}
		ctx.startDataRadioBearers()
		if ctx.needPhyMacConfiguration {
			ctx.links.mac.UeUpdateConfig(ctx.rnti, ctx.transmissionMode)
			ctx.links.phy.SetTransmissionMode(ctx.rnti, ctx.transmissionMode)
			ctx.links.phy.SetPa(ctx.rnti, ctx.pa)
			ctx.needPhyMacConfiguration = false
		}
		ctx.switchToState(ConnectedNormally{})
		ctx.owner.ueEvent(ctx, UE_EVENT_CONNECTION_RECONFIGURATION, 0)
	case ConnectedNormally, HandoverLeaving:
		ctx.Debug("Reconfiguration complete %d ignored in state %s", msg.RrcTransactionIdentifier, ctx.state)
	case HandoverJoining:
		ctx.timers.Cancel(TIMER_HANDOVER_JOINING)
		ctx.switchToState(HandoverPathSwitch(s))
		req := sap.PathSwitchRequest{
			EnbUeS1Id:    ctx.rnti,
			MmeUeS1Id:    ctx.imsi,
			SourceCellId: s.SourceCellId,
			TargetCellId: ctx.owner.CellId(),
		}
		for _, drb := range ctx.bearers.Drbs() {
			req.ErabsToBeSwitchedInDl = append(req.ErabsToBeSwitchedInDl, sap.ErabToBeSwitched{
				ErabId:                drb.EpsBearerIdentity,
				TransportLayerAddress: drb.TransportLayerAddress,
				GtpTeid:               drb.GtpTeid,
			})
		}
		ctx.links.s1.PathSwitchRequest(req)
	default:
		ctx.Panic("RecvRrcConnectionReconfigurationCompleted: unexpected state %s", ctx.state)
	}
}

func (ctx *UeContext) RecvRrcConnectionReestablishmentRequest(msg rrcmsg.RrcConnectionReestablishmentRequest) {
	switch ctx.state.(type) {
	case ConnectedNormally:
	case HandoverLeaving:
		ctx.timers.Cancel(TIMER_HANDOVER_LEAVING)
	default:
		ctx.Panic("RecvRrcConnectionReestablishmentRequest: unexpected state %s", ctx.state)
	}
	ctx.Info("Reestablishment requested, cause %d", msg.ReestablishmentCause)
	ctx.links.rrc.SendRrcConnectionReestablishment(ctx.rnti, rrcmsg.RrcConnectionReestablishment{
		RrcTransactionIdentifier:     ctx.nextRrcTransactionIdentifier(),
		RadioResourceConfigDedicated: ctx.BuildRadioResourceConfigDedicated(),
	})
	ctx.switchToState(ConnectionReestablishment{})
}

func (ctx *UeContext) RecvRrcConnectionReestablishmentComplete(msg rrcmsg.RrcConnectionReestablishmentComplete) {
	if _, ok := ctx.state.(ConnectionReestablishment); !ok {
		ctx.Panic("RecvRrcConnectionReestablishmentComplete: unexpected state %s", ctx.state)
	}
	ctx.switchToState(ConnectedNormally{})
}

// CmacUeConfigUpdateInd applies a transmission mode chosen by the MAC
// scheduler. The PHY and MAC follow once the UE has the new configuration.
func (ctx *UeContext) CmacUeConfigUpdateInd(transmissionMode uint8) {
	ctx.transmissionMode = transmissionMode
	ctx.needPhyMacConfiguration = true
	ctx.ScheduleReconfiguration()
}

func (ctx *UeContext) SetPdschConfigDedicated(pa uint8) {
	ctx.pa = pa
	ctx.needPhyMacConfiguration = true
	ctx.ScheduleReconfiguration()
}

func (ctx *UeContext) SetSrsConfigurationIndex(srsCi uint16) {
	ctx.srsConfigurationIndex = srsCi
	ctx.links.phy.SetSrsConfigurationIndex(ctx.rnti, srsCi)
	if _, ok := ctx.state.(InitialRandomAccess); ok {
		return
	}
	ctx.ScheduleReconfiguration()
}
