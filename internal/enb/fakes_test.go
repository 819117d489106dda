package enb

import (
	"testing"
	"time"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/metrics"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/internal/x2"
	"lte_rrc/pkg/config"

	"github.com/stretchr/testify/require"
)

type fakeMac struct {
	ues        map[uint16]bool
	lcs        map[uint16][]sap.LcInfo
	releasedLc []uint8
	txModes    map[uint16]uint8
	preambles  int
	next       uint8
}

func newFakeMac() *fakeMac {
	return &fakeMac{
		ues:       make(map[uint16]bool),
		lcs:       make(map[uint16][]sap.LcInfo),
		txModes:   make(map[uint16]uint8),
		preambles: 4,
		next:      52,
	}
}

func (m *fakeMac) AddUe(rnti uint16)    { m.ues[rnti] = true }
func (m *fakeMac) RemoveUe(rnti uint16) { delete(m.ues, rnti); delete(m.lcs, rnti) }
func (m *fakeMac) AddLc(lc sap.LcInfo)  { m.lcs[lc.Rnti] = append(m.lcs[lc.Rnti], lc) }

func (m *fakeMac) ReleaseLc(rnti uint16, lcid uint8) {
	m.releasedLc = append(m.releasedLc, lcid)
}

func (m *fakeMac) UeUpdateConfig(rnti uint16, txMode uint8) { m.txModes[rnti] = txMode }

func (m *fakeMac) AllocateNcRaPreamble(rnti uint16) (sap.NcRaPreamble, bool) {
	if m.preambles == 0 {
		return sap.NcRaPreamble{}, false
	}
	m.preambles--
	m.next++
	return sap.NcRaPreamble{PreambleId: m.next}, true
}

func (m *fakeMac) RachConfig() rrcmsg.RachConfigCommon {
	return rrcmsg.RachConfigCommon{NumberOfRaPreambles: 52, PreambleTransMax: 50, RaResponseWindow: 3}
}

type fakePhy struct {
	ues     map[uint16]bool
	srs     map[uint16]uint16
	txModes map[uint16]uint8
	pa      map[uint16]uint8
	mib     *rrcmsg.MasterInformationBlock
	sib1    *rrcmsg.SystemInformationBlockType1
}

func newFakePhy() *fakePhy {
	return &fakePhy{
		ues:     make(map[uint16]bool),
		srs:     make(map[uint16]uint16),
		txModes: make(map[uint16]uint8),
		pa:      make(map[uint16]uint8),
	}
}

func (p *fakePhy) AddUe(rnti uint16)                           { p.ues[rnti] = true }
func (p *fakePhy) RemoveUe(rnti uint16)                        { delete(p.ues, rnti) }
func (p *fakePhy) SetTransmissionMode(rnti uint16, tm uint8)   { p.txModes[rnti] = tm }
func (p *fakePhy) SetSrsConfigurationIndex(rnti, srsCi uint16) { p.srs[rnti] = srsCi }
func (p *fakePhy) SetPa(rnti uint16, pa uint8)                 { p.pa[rnti] = pa }

func (p *fakePhy) SetMasterInformationBlock(mib rrcmsg.MasterInformationBlock) { p.mib = &mib }

func (p *fakePhy) SetSystemInformationBlockType1(sib1 rrcmsg.SystemInformationBlockType1) {
	p.sib1 = &sib1
}

type fakeS1 struct {
	initial    []uint64
	pathSwitch []sap.PathSwitchRequest
	released   []uint16
	releaseInd []uint8
}

func (s *fakeS1) InitialUeMessage(imsi uint64, rnti uint16)  { s.initial = append(s.initial, imsi) }
func (s *fakeS1) PathSwitchRequest(req sap.PathSwitchRequest) { s.pathSwitch = append(s.pathSwitch, req) }
func (s *fakeS1) UeContextRelease(rnti uint16)                { s.released = append(s.released, rnti) }

func (s *fakeS1) ReleaseIndication(imsi uint64, rnti uint16, bearerId uint8) {
	s.releaseInd = append(s.releaseInd, bearerId)
}

type fakeRrc struct {
	si        int
	setups    []rrcmsg.RrcConnectionSetup
	reconfigs []rrcmsg.RrcConnectionReconfiguration
	reestabs  []rrcmsg.RrcConnectionReestablishment
	rejects   []rrcmsg.RrcConnectionReject
}

func (r *fakeRrc) SendSystemInformation(cellId uint16, msg rrcmsg.SystemInformation) { r.si++ }

func (r *fakeRrc) SendRrcConnectionSetup(rnti uint16, msg rrcmsg.RrcConnectionSetup) {
	r.setups = append(r.setups, msg)
}

func (r *fakeRrc) SendRrcConnectionReconfiguration(rnti uint16, msg rrcmsg.RrcConnectionReconfiguration) {
	r.reconfigs = append(r.reconfigs, msg)
}

func (r *fakeRrc) SendRrcConnectionReestablishment(rnti uint16, msg rrcmsg.RrcConnectionReestablishment) {
	r.reestabs = append(r.reestabs, msg)
}

func (r *fakeRrc) SendRrcConnectionReestablishmentReject(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentReject) {
}

func (r *fakeRrc) SendRrcConnectionRelease(rnti uint16, msg rrcmsg.RrcConnectionRelease) {}

func (r *fakeRrc) SendRrcConnectionReject(rnti uint16, msg rrcmsg.RrcConnectionReject) {
	r.rejects = append(r.rejects, msg)
}

type testCell struct {
	cell    *CellController
	mac     *fakeMac
	phy     *fakePhy
	s1      *fakeS1
	rrc     *fakeRrc
	metrics *metrics.Metrics
	events  []UeEvent
}

type testNetwork struct {
	sched   *sim.Scheduler
	x2      *x2.Network
	codec   rrcmsg.Codec
	metrics *metrics.Metrics
	log     *logger.Logger
}

func createTestNetwork(t *testing.T) *testNetwork {
	sched := sim.NewScheduler()
	log := logger.InitLogger("error", nil)
	codec, err := rrcmsg.NewCodec(config.RRC_CODEC_IDEAL)
	require.NoError(t, err)
	return &testNetwork{
		sched:   sched,
		x2:      x2.NewNetwork(sched, time.Millisecond, log),
		codec:   codec,
		metrics: metrics.New("lte_rrc"),
		log:     log,
	}
}

func (n *testNetwork) addCell(t *testing.T, cellId uint16, mutate func(cfg *config.EnbConfig)) *testCell {
	cfg := config.DefaultEnb(cellId)
	cfg.HandoverAlgorithm = config.HANDOVER_ALGORITHM_NONE
	if mutate != nil {
		mutate(&cfg)
	}
	tc := &testCell{
		mac:     newFakeMac(),
		phy:     newFakePhy(),
		s1:      &fakeS1{},
		rrc:     &fakeRrc{},
		metrics: n.metrics,
	}
	cell, err := NewCellController(cfg, CellParams{
		Sched:   n.sched,
		Timers:  config.DefaultTimers(),
		Mac:     tc.mac,
		Phy:     tc.phy,
		S1:      tc.s1,
		Rrc:     tc.rrc,
		X2:      n.x2,
		Codec:   n.codec,
		Metrics: n.metrics,
		Logger:  n.log,
	})
	require.NoError(t, err)
	require.NoError(t, n.x2.Attach(cellId, cell))
	cell.Subscribe(func(ev UeEvent) { tc.events = append(tc.events, ev) })
	tc.cell = cell
	return tc
}

func createTestCell(t *testing.T, mutate func(cfg *config.EnbConfig)) (*testNetwork, *testCell) {
	n := createTestNetwork(t)
	return n, n.addCell(t, 1, mutate)
}

// connect drives a fresh UE through connection establishment and returns
// its RNTI.
func (tc *testCell) connect(t *testing.T, imsi uint64) uint16 {
	rnti := tc.cell.AllocateTemporaryCellRnti()
	tc.cell.RecvRrcConnectionRequest(rnti, rrcmsg.RrcConnectionRequest{UeIdentity: imsi})
	tc.cell.RecvRrcConnectionSetupCompleted(rnti, rrcmsg.RrcConnectionSetupCompleted{})
	ctx, ok := tc.cell.Ue(rnti)
	require.True(t, ok)
	require.Equal(t, UE_STATE_CONNECTED_NORMALLY, ctx.State().Kind())
	return rnti
}

// completeReconfiguration answers the last reconfiguration sent to the UE.
func (tc *testCell) completeReconfiguration(t *testing.T, rnti uint16) {
	t.Helper()
	require.NotEmpty(t, tc.rrc.reconfigs)
	last := tc.rrc.reconfigs[len(tc.rrc.reconfigs)-1]
	tc.cell.RecvRrcConnectionReconfigurationCompleted(rnti, rrcmsg.RrcConnectionReconfigurationCompleted{
		RrcTransactionIdentifier: last.RrcTransactionIdentifier,
	})
}

func (tc *testCell) eventKinds(kind UeEventKind) []UeEvent {
	var out []UeEvent
	for _, ev := range tc.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
