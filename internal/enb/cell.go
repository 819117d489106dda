package enb

import (
	"errors"
	"fmt"
	"sort"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/metrics"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/internal/x2"
	"lte_rrc/pkg/config"
)

var (
	ErrUnknownRnti         = errors.New("unknown rnti")
	ErrUeNotConnected      = errors.New("ue is not connected normally")
	ErrNoX2Peer            = errors.New("target cell is not an x2 peer")
	ErrNoNeighbourRelation = errors.New("target cell is not in the neighbour relation table")
	ErrHandoverNotAllowed  = errors.New("neighbour relation forbids handover")
	ErrMeasConfigFrozen    = errors.New("measurement configuration can only change before the cell starts")
)

type UeEventKind int

const (
	UE_EVENT_STATE_TRANSITION UeEventKind = iota
	UE_EVENT_CONNECTION_ESTABLISHED
	UE_EVENT_CONNECTION_RECONFIGURATION
	UE_EVENT_HANDOVER_START
	UE_EVENT_HANDOVER_END_OK
)

func ueEventToString(k UeEventKind) string {
	switch k {
	case UE_EVENT_STATE_TRANSITION:
		return "STATE_TRANSITION"
	case UE_EVENT_CONNECTION_ESTABLISHED:
		return "CONNECTION_ESTABLISHED"
	case UE_EVENT_CONNECTION_RECONFIGURATION:
		return "CONNECTION_RECONFIGURATION"
	case UE_EVENT_HANDOVER_START:
		return "HANDOVER_START"
	case UE_EVENT_HANDOVER_END_OK:
		return "HANDOVER_END_OK"
	default:
		return "UNKNOWN"
	}
}

func (k UeEventKind) String() string {
	return ueEventToString(k)
}

// UeEvent is published to the cell subscribers for every notable UE step.
type UeEvent struct {
	Kind         UeEventKind
	Imsi         uint64
	CellId       uint16
	Rnti         uint16
	TargetCellId uint16
	OldState     UeStateKind
	NewState     UeStateKind
}

// ueOwner is everything a UE context may ask of, or report to, its cell.
type ueOwner interface {
	CellId() uint16
	cellConfig() *config.EnbConfig
	timersConfig() config.TimersConfig
	rlcPolicy() bearer.RlcPolicy
	ueMeasConfig() *rrcmsg.MeasConfig
	sourceAsConfig() rrcmsg.AsConfig
	ueStateChanged(ctx *UeContext, prev, next UeState)
	ueTimedOut(ctx *UeContext, timer string)
	ueEvent(ctx *UeContext, kind UeEventKind, targetCellId uint16)
	handoverFailed(ctx *UeContext, reason string)
}

// cellLinks are the collaborators shared by a cell and its UE contexts.
type cellLinks struct {
	mac   sap.EnbMac
	phy   sap.EnbPhy
	s1    sap.S1
	rrc   sap.EnbRrcTransport
	x2    x2.Sender
	codec rrcmsg.Codec
}

// CellParams wires a cell controller to the rest of the run.
type CellParams struct {
	Sched   *sim.Scheduler
	Timers  config.TimersConfig
	Mac     sap.EnbMac
	Phy     sap.EnbPhy
	S1      sap.S1
	Rrc     sap.EnbRrcTransport
	X2      x2.Sender
	Codec   rrcmsg.Codec
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// CellController is the RRC of one eNodeB cell. It owns the UE contexts,
// the RNTI and SRS allocators and the measurement configuration.
type CellController struct {
	*logger.Logger

	cfg     config.EnbConfig
	timers  config.TimersConfig
	sched   *sim.Scheduler
	links   *cellLinks
	metrics *metrics.Metrics
	policy  bearer.RlcPolicy

	ues   map[uint16]*UeContext
	rntis RntiAllocator
	srs   *SrsAllocator

	measConfig    rrcmsg.MeasConfig
	measConsumers map[uint8]measConsumer
	anr           *Anr
	handover      *A3RsrpHandoverAlgorithm

	mib        rrcmsg.MasterInformationBlock
	sib1       rrcmsg.SystemInformationBlockType1
	sib2       rrcmsg.SystemInformationBlockType2
	configured bool
	siEvent    sim.EventId

	subscribers []func(UeEvent)
}

func parseRlcPolicy(s string) (bearer.RlcPolicy, error) {
	switch s {
	case config.RLC_POLICY_SM_ALWAYS:
		return bearer.RLC_POLICY_SM_ALWAYS, nil
	case config.RLC_POLICY_UM_ALWAYS:
		return bearer.RLC_POLICY_UM_ALWAYS, nil
	case config.RLC_POLICY_AM_ALWAYS, "":
		return bearer.RLC_POLICY_AM_ALWAYS, nil
	case config.RLC_POLICY_PER_BASED:
		return bearer.RLC_POLICY_PER_BASED, nil
	default:
		return 0, fmt.Errorf("unsupported rlc policy %q", s)
	}
}

func NewCellController(cfg config.EnbConfig, p CellParams) (*CellController, error) {
	policy, err := parseRlcPolicy(cfg.RlcPolicy)
	if err != nil {
		return nil, err
	}
	srs, err := NewSrsAllocator(cfg.SrsPeriodicity)
	if err != nil {
		return nil, fmt.Errorf("cell %d: %w", cfg.CellId, err)
	}
	m := p.Metrics
	if m == nil {
		m = metrics.New("lte_rrc")
	}
	log := p.Logger
	if log == nil {
		log = logger.InitLogger("info", nil)
	}

	c := &CellController{
		Logger: log.With(map[string]string{
			"mod":     "ENB",
			"cell_id": fmt.Sprintf("%d", cfg.CellId),
		}),
		cfg:    cfg,
		timers: p.Timers,
		sched:  p.Sched,
		links: &cellLinks{
			mac:   p.Mac,
			phy:   p.Phy,
			s1:    p.S1,
			rrc:   p.Rrc,
			x2:    p.X2,
			codec: p.Codec,
		},
		metrics:       m,
		policy:        policy,
		ues:           make(map[uint16]*UeContext),
		srs:           srs,
		measConsumers: make(map[uint8]measConsumer),
	}
	c.measConfig.MeasObjectToAddModList = []rrcmsg.MeasObjectToAddMod{{
		MeasObjectId: INTRA_FREQUENCY_MEAS_OBJECT_ID,
		MeasObjectEutra: rrcmsg.MeasObjectEutra{
			CarrierFreq:          cfg.DlEarfcn,
			AllowedMeasBandwidth: cfg.DlBandwidth,
		},
	}}
	c.measConfig.QuantityConfig = &rrcmsg.QuantityConfig{
		FilterCoefficientRsrp: DEFAULT_FILTER_COEFFICIENT,
		FilterCoefficientRsrq: DEFAULT_FILTER_COEFFICIENT,
	}

	c.anr, err = NewAnr(c, DEFAULT_ANR_THRESHOLD)
	if err != nil {
		return nil, fmt.Errorf("cell %d: %w", cfg.CellId, err)
	}
	for _, n := range cfg.X2Neighbours {
		c.anr.AddNeighbourRelation(n)
	}
	if cfg.HandoverAlgorithm == config.HANDOVER_ALGORITHM_A3_RSRP {
		c.handover, err = NewA3RsrpHandoverAlgorithm(c, cfg.A3Hysteresis, cfg.A3TimeToTrigger)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", cfg.CellId, err)
		}
	}
	return c, nil
}

func (c *CellController) CellId() uint16 {
	return c.cfg.CellId
}

func (c *CellController) Config() config.EnbConfig {
	return c.cfg
}

func (c *CellController) Anr() *Anr {
	return c.anr
}

// Subscribe registers fn for every UE event of this cell.
func (c *CellController) Subscribe(fn func(UeEvent)) {
	c.subscribers = append(c.subscribers, fn)
}

func (c *CellController) publish(ev UeEvent) {
	for _, fn := range c.subscribers {
		fn(ev)
	}
}

func (c *CellController) cellConfig() *config.EnbConfig {
	return &c.cfg
}

func (c *CellController) timersConfig() config.TimersConfig {
	return c.timers
}

func (c *CellController) rlcPolicy() bearer.RlcPolicy {
	return c.policy
}

func (c *CellController) ueStateChanged(ctx *UeContext, prev, next UeState) {
	c.publish(UeEvent{
		Kind:     UE_EVENT_STATE_TRANSITION,
		Imsi:     ctx.imsi,
		CellId:   c.CellId(),
		Rnti:     ctx.rnti,
		OldState: prev.Kind(),
		NewState: next.Kind(),
	})
}

func (c *CellController) ueEvent(ctx *UeContext, kind UeEventKind, targetCellId uint16) {
	switch kind {
	case UE_EVENT_CONNECTION_ESTABLISHED:
		c.metrics.ConnectionEstablished(c.CellId())
	case UE_EVENT_HANDOVER_START:
		c.metrics.HandoverStarted(c.CellId())
	case UE_EVENT_HANDOVER_END_OK:
		c.metrics.HandoverCompleted(c.CellId())
	}
	c.Info("%s: imsi %d rnti %d", kind, ctx.imsi, ctx.rnti)
	c.publish(UeEvent{
		Kind:         kind,
		Imsi:         ctx.imsi,
		CellId:       c.CellId(),
		Rnti:         ctx.rnti,
		TargetCellId: targetCellId,
		NewState:     ctx.state.Kind(),
	})
}

func (c *CellController) handoverFailed(ctx *UeContext, reason string) {
	c.metrics.HandoverFailed(reason)
}

func (c *CellController) ueTimedOut(ctx *UeContext, timer string) {
	c.metrics.TimerExpired(timer)
	switch timer {
	case TIMER_HANDOVER_JOINING, TIMER_HANDOVER_LEAVING:
		c.metrics.HandoverFailed(timer + "_timeout")
	case TIMER_CONNECTION_REQUEST, TIMER_CONNECTION_SETUP:
		c.metrics.ConnectionFailed(timer + "_timeout")
	}
	c.RemoveUe(ctx.rnti)
}

// Ue returns the context of a live RNTI.
func (c *CellController) Ue(rnti uint16) (*UeContext, bool) {
	ctx, ok := c.ues[rnti]
	return ctx, ok
}

// UeByImsi looks a context up by subscriber identity.
func (c *CellController) UeByImsi(imsi uint64) (*UeContext, bool) {
	for _, ctx := range c.ues {
		if ctx.imsi == imsi {
			return ctx, true
		}
	}
	return nil, false
}

// Rntis returns the live RNTIs, sorted.
func (c *CellController) Rntis() []uint16 {
	out := make([]uint16, 0, len(c.ues))
	for rnti := range c.ues {
		out = append(out, rnti)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// mustUe resolves the RNTI of an inbound message. Messages for an unknown
// RNTI are a protocol error.
func (c *CellController) mustUe(rnti uint16, op string) *UeContext {
	ctx, ok := c.ues[rnti]
	if !ok {
		c.Panic("%s: %v %d", op, ErrUnknownRnti, rnti)
	}
	return ctx
}

// AddUe creates a UE context in InitialRandomAccess or HandoverJoining and
// returns its new RNTI.
func (c *CellController) AddUe(state UeState) uint16 {
	rnti, err := c.rntis.Allocate(func(r uint16) bool {
		_, used := c.ues[r]
		return used
	})
	if err != nil {
		c.Panic("AddUe: %v", err)
	}
	srsCi, err := c.srs.Allocate()
	if err != nil {
		c.Panic("AddUe: %v", err)
	}
	c.ues[rnti] = newUeContext(c, c.links, c.sched, c.Logger, rnti, srsCi, state)
	c.metrics.SetUeContexts(c.CellId(), len(c.ues))
	return rnti
}

// RemoveUe destroys a UE context and frees its lower layer resources.
func (c *CellController) RemoveUe(rnti uint16) {
	ctx := c.mustUe(rnti, "RemoveUe")
	ctx.timers.CancelAll()
	delete(c.ues, rnti)
	c.links.mac.RemoveUe(rnti)
	c.links.phy.RemoveUe(rnti)
	c.links.s1.UeContextRelease(rnti)
	if err := c.srs.Release(ctx.srsConfigurationIndex); err != nil {
		c.Panic("RemoveUe: %v", err)
	}
	c.metrics.SetUeContexts(c.CellId(), len(c.ues))
	c.Info("UE context %d removed", rnti)
}

// SetSrsPeriodicity changes the SRS periodicity; only possible while no UE
// holds an index.
func (c *CellController) SetSrsPeriodicity(p uint16) error {
	return c.srs.SetPeriodicity(p)
}

func (c *CellController) SrsPeriodicity() uint16 {
	return c.srs.Periodicity()
}

// ReassignSrsConfigurationIndex moves a UE to a fresh SRS index.
func (c *CellController) ReassignSrsConfigurationIndex(rnti uint16) uint16 {
	ctx := c.mustUe(rnti, "ReassignSrsConfigurationIndex")
	srsCi, err := c.srs.Allocate()
	if err != nil {
		c.Panic("ReassignSrsConfigurationIndex: %v", err)
	}
	old := ctx.srsConfigurationIndex
	ctx.SetSrsConfigurationIndex(srsCi)
	if err := c.srs.Release(old); err != nil {
		c.Panic("ReassignSrsConfigurationIndex: %v", err)
	}
	return srsCi
}

// AllocateTemporaryCellRnti is called by the MAC when a contention based
// random access needs a C-RNTI.
func (c *CellController) AllocateTemporaryCellRnti() uint16 {
	return c.AddUe(InitialRandomAccess{})
}

func (c *CellController) CmacUeConfigUpdateInd(rnti uint16, transmissionMode uint8) {
	c.mustUe(rnti, "CmacUeConfigUpdateInd").CmacUeConfigUpdateInd(transmissionMode)
}

func (c *CellController) SetPdschConfigDedicated(rnti uint16, pa uint8) {
	c.mustUe(rnti, "SetPdschConfigDedicated").SetPdschConfigDedicated(pa)
}

func (c *CellController) RecvRrcConnectionRequest(rnti uint16, msg rrcmsg.RrcConnectionRequest) {
	c.mustUe(rnti, "RecvRrcConnectionRequest").RecvRrcConnectionRequest(msg)
	if ctx, ok := c.ues[rnti]; ok && ctx.state.Kind() == UE_STATE_CONNECTION_REJECTED {
		c.metrics.ConnectionFailed("rejected")
	}
}

func (c *CellController) RecvRrcConnectionSetupCompleted(rnti uint16, msg rrcmsg.RrcConnectionSetupCompleted) {
	c.mustUe(rnti, "RecvRrcConnectionSetupCompleted").RecvRrcConnectionSetupCompleted(msg)
}

func (c *CellController) RecvRrcConnectionReconfigurationCompleted(rnti uint16, msg rrcmsg.RrcConnectionReconfigurationCompleted) {
	c.mustUe(rnti, "RecvRrcConnectionReconfigurationCompleted").RecvRrcConnectionReconfigurationCompleted(msg)
}

func (c *CellController) RecvRrcConnectionReestablishmentRequest(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentRequest) {
	c.mustUe(rnti, "RecvRrcConnectionReestablishmentRequest").RecvRrcConnectionReestablishmentRequest(msg)
}

func (c *CellController) RecvRrcConnectionReestablishmentComplete(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentComplete) {
	c.mustUe(rnti, "RecvRrcConnectionReestablishmentComplete").RecvRrcConnectionReestablishmentComplete(msg)
}

// DataRadioBearerSetupRequest is the core asking for a new E-RAB.
func (c *CellController) DataRadioBearerSetupRequest(req sap.DataRadioBearerSetupRequest) {
	ctx := c.mustUe(req.Rnti, "DataRadioBearerSetupRequest")
	ctx.SetupDataRadioBearer(req.Bearer, req.BearerId, req.GtpTeid, req.TransportLayerAddress)
}

func (c *CellController) PathSwitchRequestAcknowledge(ack sap.PathSwitchRequestAcknowledge) {
	c.mustUe(ack.Rnti, "PathSwitchRequestAcknowledge").pathSwitched()
}

// ReleaseDataRadioBearer releases an E-RAB and tells the core.
func (c *CellController) ReleaseDataRadioBearer(imsi uint64, rnti uint16, bearerId uint8) error {
	ctx, ok := c.ues[rnti]
	if !ok {
		return fmt.Errorf("release bearer %d: %w %d", bearerId, ErrUnknownRnti, rnti)
	}
	if err := ctx.ReleaseDataRadioBearer(bearer.DrbForBearerId(bearerId)); err != nil {
		return err
	}
	c.links.s1.ReleaseIndication(imsi, rnti, bearerId)
	return nil
}
