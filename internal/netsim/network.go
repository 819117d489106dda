package netsim

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/enb"
	"lte_rrc/internal/metrics"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/internal/ue"
	"lte_rrc/internal/x2"
	"lte_rrc/pkg/config"

	"github.com/google/uuid"
)

const (
	NETWORK_INACTIVE = "NETWORK_INACTIVE"
	NETWORK_ACTIVE   = "NETWORK_ACTIVE"
)

var (
	ErrUnknownImsi = errors.New("unknown imsi")
	ErrUnknownCell = errors.New("unknown cell")
	ErrNotActive   = errors.New("network is not active")
)

// Network runs a set of cells and terminals on one scheduler. Every
// lower layer is a stub; only the RRC, X2 and bearer logic is real.
type Network struct {
	*logger.Logger

	Id      uuid.UUID
	State   string
	cfg     *config.Config
	sched   *sim.Scheduler
	codec   rrcmsg.Codec
	x2      *x2.Network
	metrics *metrics.Metrics
	epc     *Epc

	cells     map[uint16]*Cell
	terminals map[uint64]*Terminal
	// bound maps the RNTIs a cell handed out to the terminal holding them.
	bound map[uint16]map[uint16]*Terminal
	rsrp  map[uint64]map[uint16]float64
}

// Cell is a cell controller with its stub lower layers.
type Cell struct {
	*enb.CellController
	mac *cellMac
	phy *cellPhy
}

// NewNetwork builds the cells, the X2 links and the terminals described
// by cfg. Nothing runs until Start.
func NewNetwork(cfg *config.Config, log *logger.Logger) (*Network, error) {
	id := uuid.New()
	if log == nil {
		log = logger.InitLogger(cfg.Log.Level, nil)
	}
	codec, err := rrcmsg.NewCodec(cfg.Rrc.Codec)
	if err != nil {
		return nil, fmt.Errorf("create codec: %w", err)
	}

	sched := sim.NewScheduler()
	n := &Network{
		Logger: log.With(map[string]string{
			"mod": "NETSIM",
			"run": id.String(),
		}),
		Id:        id,
		State:     NETWORK_INACTIVE,
		cfg:       cfg,
		sched:     sched,
		codec:     codec,
		x2:        x2.NewNetwork(sched, cfg.X2.Delay, log),
		metrics:   metrics.New(cfg.Metrics.Namespace),
		cells:     make(map[uint16]*Cell),
		terminals: make(map[uint64]*Terminal),
		bound:     make(map[uint16]map[uint16]*Terminal),
		rsrp:      make(map[uint64]map[uint16]float64),
	}
	n.epc = newEpc(n, log)

	for _, ecfg := range cfg.Enb {
		if err := n.addCell(ecfg, log); err != nil {
			return nil, err
		}
	}
	for _, ecfg := range cfg.Enb {
		for _, peer := range ecfg.X2Neighbours {
			if err := n.x2.Connect(ecfg.CellId, peer); err != nil {
				return nil, fmt.Errorf("connect x2 %d-%d: %w", ecfg.CellId, peer, err)
			}
		}
	}
	for _, ucfg := range cfg.Ue {
		if _, ok := n.terminals[ucfg.Imsi]; ok {
			return nil, fmt.Errorf("imsi %d is duplicated", ucfg.Imsi)
		}
		n.addTerminal(ucfg, log)
	}
	n.Info("Network created with %d cells and %d terminals", len(n.cells), len(n.terminals))
	return n, nil
}

func (n *Network) addCell(ecfg config.EnbConfig, log *logger.Logger) error {
	mac := newCellMac(n, ecfg.CellId)
	phy := newCellPhy(ecfg.CellId)
	ctrl, err := enb.NewCellController(ecfg, enb.CellParams{
		Sched:   n.sched,
		Timers:  n.cfg.Timers,
		Mac:     mac,
		Phy:     phy,
		S1:      n.epc.link(ecfg.CellId),
		Rrc:     &cellRrc{net: n, cellId: ecfg.CellId},
		X2:      n.x2,
		Codec:   n.codec,
		Metrics: n.metrics,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("create cell %d: %w", ecfg.CellId, err)
	}
	if err := n.x2.Attach(ecfg.CellId, ctrl); err != nil {
		return err
	}
	n.cells[ecfg.CellId] = &Cell{CellController: ctrl, mac: mac, phy: phy}
	n.bound[ecfg.CellId] = make(map[uint16]*Terminal)
	return nil
}

func (n *Network) addTerminal(ucfg config.UeConfig, log *logger.Logger) {
	if ucfg.DlEarfcn == 0 && len(n.cfg.Enb) > 0 {
		ucfg.DlEarfcn = n.cfg.Enb[0].DlEarfcn
	}
	t := &Terminal{cfg: ucfg, nas: &terminalNas{}}
	t.mac = &terminalMac{net: n, term: t}
	t.phy = &terminalPhy{net: n, term: t}
	t.ue = ue.NewConnectionManager(ucfg, ue.Params{
		Sched:  n.sched,
		Timers: n.cfg.Timers,
		Mac:    t.mac,
		Phy:    t.phy,
		Rrc:    &terminalRrc{net: n, term: t},
		Nas:    t.nas,
		Meas: func(target ue.ReportTarget) sap.UeMeasurement {
			t.meas = ue.NewMeasurementEngine(n.sched, target, log)
			return t.meas
		},
		Logger: log,
	})
	t.ue.Subscribe(n.terminalEvent)
	n.terminals[ucfg.Imsi] = t
}

// terminalEvent feeds the UE side failures into the metrics.
func (n *Network) terminalEvent(ev ue.Event) {
	switch ev.Kind {
	case ue.EVENT_CONNECTION_TIMEOUT:
		n.metrics.TimerExpired(ue.TIMER_T300)
		n.metrics.ConnectionFailed("t300_timeout")
	case ue.EVENT_RANDOM_ACCESS_ERROR:
		n.metrics.ConnectionFailed("random_access")
	case ue.EVENT_HANDOVER_END_ERROR:
		n.metrics.HandoverFailed("random_access")
	}
}

func (n *Network) Scheduler() *sim.Scheduler {
	return n.sched
}

func (n *Network) Metrics() *metrics.Metrics {
	return n.metrics
}

func (n *Network) Epc() *Epc {
	return n.epc
}

func (n *Network) Cell(cellId uint16) (*Cell, bool) {
	c, ok := n.cells[cellId]
	return c, ok
}

func (n *Network) Terminal(imsi uint64) (*Terminal, bool) {
	t, ok := n.terminals[imsi]
	return t, ok
}

func (n *Network) CellIds() []uint16 {
	out := make([]uint16, 0, len(n.cells))
	for id := range n.cells {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (n *Network) Imsis() []uint64 {
	out := make([]uint64, 0, len(n.terminals))
	for imsi := range n.terminals {
		out = append(out, imsi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start configures every cell, powers every terminal on with a pending
// connection and schedules the configured handovers.
func (n *Network) Start() error {
	if n.State != NETWORK_INACTIVE {
		return fmt.Errorf("start: network is in state %s", n.State)
	}
	for _, id := range n.CellIds() {
		n.cells[id].ConfigureCell()
	}
	for _, imsi := range n.Imsis() {
		t := n.terminals[imsi]
		if t.cfg.ForceCellId != 0 {
			t.ue.ForceCampedOnEnb(t.cfg.ForceCellId, n.cells[t.cfg.ForceCellId].Config().DlEarfcn)
		} else {
			t.ue.StartCellSelection(t.cfg.DlEarfcn)
		}
		t.ue.Connect()
		t.phy.startMeasurements()
	}
	for _, h := range n.cfg.Run.Handover {
		h := h
		n.sched.Schedule(h.At, func() {
			if err := n.TriggerHandover(h.Imsi, h.TargetCellId); err != nil {
				n.Warn("Scheduled handover of imsi %d to cell %d: %v", h.Imsi, h.TargetCellId, err)
			}
		})
	}
	n.State = NETWORK_ACTIVE
	n.Info("Network started")
	return nil
}

// RunFor advances the simulated time by d.
func (n *Network) RunFor(d time.Duration) error {
	if n.State != NETWORK_ACTIVE {
		return ErrNotActive
	}
	n.sched.RunFor(d)
	return nil
}

// Stop ends the broadcasts and the terminal measurements. Pending
// protocol events are left in the scheduler.
func (n *Network) Stop() {
	for _, id := range n.CellIds() {
		n.cells[id].Stop()
	}
	for _, imsi := range n.Imsis() {
		n.terminals[imsi].phy.stopMeasurements()
	}
	n.State = NETWORK_INACTIVE
	n.Info("Network stopped at %v", n.sched.Now())
}

// SetRsrp overrides the level imsi measures from cellId.
func (n *Network) SetRsrp(imsi uint64, cellId uint16, dbm float64) error {
	if _, ok := n.terminals[imsi]; !ok {
		return fmt.Errorf("set rsrp: %w %d", ErrUnknownImsi, imsi)
	}
	if _, ok := n.cells[cellId]; !ok {
		return fmt.Errorf("set rsrp: %w %d", ErrUnknownCell, cellId)
	}
	if n.rsrp[imsi] == nil {
		n.rsrp[imsi] = make(map[uint16]float64)
	}
	n.rsrp[imsi][cellId] = dbm
	return nil
}

func (n *Network) rsrpOf(imsi uint64, cellId uint16) float64 {
	if v, ok := n.rsrp[imsi][cellId]; ok {
		return v
	}
	return n.cells[cellId].Config().Rsrp
}

// TriggerHandover asks the serving cell of imsi to hand it over.
func (n *Network) TriggerHandover(imsi uint64, targetCellId uint16) error {
	t, ok := n.terminals[imsi]
	if !ok {
		return fmt.Errorf("trigger handover: %w %d", ErrUnknownImsi, imsi)
	}
	cell, ok := n.cells[t.ue.CellId()]
	if !ok {
		return fmt.Errorf("trigger handover of imsi %d: %w %d", imsi, ErrUnknownCell, t.ue.CellId())
	}
	return cell.TriggerHandover(t.ue.Rnti(), targetCellId)
}

func (n *Network) bind(cellId, rnti uint16, t *Terminal) {
	n.bound[cellId][rnti] = t
}

func (n *Network) unbind(cellId, rnti uint16) {
	delete(n.bound[cellId], rnti)
}

func (n *Network) terminalAt(cellId, rnti uint16) (*Terminal, bool) {
	t, ok := n.bound[cellId][rnti]
	return t, ok
}

// TerminalSummary is the end of run view of one terminal.
type TerminalSummary struct {
	Imsi   uint64
	State  ue.State
	CellId uint16
	Rnti   uint16
	Drbs   []uint8
}

func (n *Network) Summary() []TerminalSummary {
	out := make([]TerminalSummary, 0, len(n.terminals))
	for _, imsi := range n.Imsis() {
		t := n.terminals[imsi]
		out = append(out, TerminalSummary{
			Imsi:   imsi,
			State:  t.ue.State(),
			CellId: t.ue.CellId(),
			Rnti:   t.ue.Rnti(),
			Drbs:   t.ue.Bearers().DrbIds(),
		})
	}
	return out
}
