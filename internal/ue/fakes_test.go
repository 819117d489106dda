package ue

import (
	"testing"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
	"lte_rrc/pkg/config"

	"github.com/stretchr/testify/require"
)

type ncRa struct {
	rnti      uint16
	preamble  uint8
	prachMask uint8
}

type fakeUeMac struct {
	rach       *rrcmsg.RachConfigCommon
	cbRa       int
	ncRa       []ncRa
	lcs        map[uint8]sap.UeLcConfig
	removedLcs []uint8
	resets     int
}

func newFakeUeMac() *fakeUeMac {
	return &fakeUeMac{lcs: make(map[uint8]sap.UeLcConfig)}
}

func (m *fakeUeMac) ConfigureRach(cfg rrcmsg.RachConfigCommon) { m.rach = &cfg }
func (m *fakeUeMac) StartContentionBasedRandomAccess()         { m.cbRa++ }
func (m *fakeUeMac) AddLc(lc sap.UeLcConfig)                   { m.lcs[lc.Lcid] = lc }
func (m *fakeUeMac) Reset()                                    { m.resets++ }

func (m *fakeUeMac) StartNonContentionBasedRandomAccess(rnti uint16, preambleId uint8, prachMask uint8) {
	m.ncRa = append(m.ncRa, ncRa{rnti: rnti, preamble: preambleId, prachMask: prachMask})
}

func (m *fakeUeMac) RemoveLc(lcid uint8) {
	delete(m.lcs, lcid)
	m.removedLcs = append(m.removedLcs, lcid)
}

type fakeUePhy struct {
	searching uint32
	synced    []uint16
	earfcn    uint32
	dlBw      uint8
	ulEarfcn  uint32
	ulBw      uint8
	rnti      uint16
	txMode    uint8
	srsCi     uint16
	pa        uint8
	resets    int
}

func (p *fakeUePhy) Reset()                                { p.resets++ }
func (p *fakeUePhy) StartCellSearch(dlEarfcn uint32)       { p.searching = dlEarfcn }
func (p *fakeUePhy) SetDlBandwidth(dlBandwidth uint8)      { p.dlBw = dlBandwidth }
func (p *fakeUePhy) SetRnti(rnti uint16)                   { p.rnti = rnti }
func (p *fakeUePhy) SetTransmissionMode(txMode uint8)      { p.txMode = txMode }
func (p *fakeUePhy) SetSrsConfigurationIndex(srsCi uint16) { p.srsCi = srsCi }
func (p *fakeUePhy) SetPa(pa uint8)                        { p.pa = pa }

func (p *fakeUePhy) SynchronizeWithEnb(cellId uint16, dlEarfcn uint32) {
	p.synced = append(p.synced, cellId)
	p.earfcn = dlEarfcn
}

func (p *fakeUePhy) ConfigureUplink(ulEarfcn uint32, ulBandwidth uint8) {
	p.ulEarfcn = ulEarfcn
	p.ulBw = ulBandwidth
}

type fakeUeRrc struct {
	requests    []rrcmsg.RrcConnectionRequest
	setupDone   []rrcmsg.RrcConnectionSetupCompleted
	reconfDone  []rrcmsg.RrcConnectionReconfigurationCompleted
	reestabReqs []rrcmsg.RrcConnectionReestablishmentRequest
	reestabDone []rrcmsg.RrcConnectionReestablishmentComplete
	reports     []rrcmsg.MeasurementReport
}

func (r *fakeUeRrc) SendRrcConnectionRequest(rnti uint16, msg rrcmsg.RrcConnectionRequest) {
	r.requests = append(r.requests, msg)
}

func (r *fakeUeRrc) SendRrcConnectionSetupCompleted(rnti uint16, msg rrcmsg.RrcConnectionSetupCompleted) {
	r.setupDone = append(r.setupDone, msg)
}

func (r *fakeUeRrc) SendRrcConnectionReconfigurationCompleted(rnti uint16, msg rrcmsg.RrcConnectionReconfigurationCompleted) {
	r.reconfDone = append(r.reconfDone, msg)
}

func (r *fakeUeRrc) SendRrcConnectionReestablishmentRequest(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentRequest) {
	r.reestabReqs = append(r.reestabReqs, msg)
}

func (r *fakeUeRrc) SendRrcConnectionReestablishmentComplete(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentComplete) {
	r.reestabDone = append(r.reestabDone, msg)
}

func (r *fakeUeRrc) SendMeasurementReport(rnti uint16, msg rrcmsg.MeasurementReport) {
	r.reports = append(r.reports, msg)
}

type fakeNas struct {
	successful int
	failed     int
	released   int
}

func (n *fakeNas) NotifyConnectionSuccessful() { n.successful++ }
func (n *fakeNas) NotifyConnectionFailed()     { n.failed++ }
func (n *fakeNas) NotifyConnectionReleased()   { n.released++ }

type testUe struct {
	ue     *ConnectionManager
	meas   *MeasurementEngine
	sched  *sim.Scheduler
	mac    *fakeUeMac
	phy    *fakeUePhy
	rrc    *fakeUeRrc
	nas    *fakeNas
	events []Event
}

func createTestUe(t *testing.T, mutate func(cfg *config.UeConfig)) *testUe {
	t.Helper()
	cfg := config.UeConfig{Imsi: 1001, DlEarfcn: 100}
	if mutate != nil {
		mutate(&cfg)
	}
	log := logger.InitLogger("error", nil)
	sched := sim.NewScheduler()
	tu := &testUe{
		sched: sched,
		mac:   newFakeUeMac(),
		phy:   &fakeUePhy{},
		rrc:   &fakeUeRrc{},
		nas:   &fakeNas{},
	}
	tu.ue = NewConnectionManager(cfg, Params{
		Sched:  sched,
		Timers: config.DefaultTimers(),
		Mac:    tu.mac,
		Phy:    tu.phy,
		Rrc:    tu.rrc,
		Nas:    tu.nas,
		Meas: func(target ReportTarget) sap.UeMeasurement {
			tu.meas = NewMeasurementEngine(sched, target, log)
			return tu.meas
		},
		Logger: log,
	})
	require.Same(t, tu.ue, tu.meas.target, "engine reports to the connection manager")
	tu.ue.Subscribe(func(ev Event) { tu.events = append(tu.events, ev) })
	return tu
}

func (tu *testUe) eventKinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range tu.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func testSib1(cellId uint16) rrcmsg.SystemInformationBlockType1 {
	return rrcmsg.SystemInformationBlockType1{
		CellAccessRelatedInfo: rrcmsg.CellAccessRelatedInfo{PlmnIdentity: 1, CellIdentity: cellId},
		CellSelectionInfo:     rrcmsg.CellSelectionInfo{QRxLevMin: -70},
	}
}

func testSib2() rrcmsg.SystemInformation {
	return rrcmsg.SystemInformation{
		HaveSib2: true,
		Sib2: rrcmsg.SystemInformationBlockType2{
			RadioResourceConfigCommon: rrcmsg.RadioResourceConfigCommonSib{
				RachConfigCommon: rrcmsg.RachConfigCommon{NumberOfRaPreambles: 52, PreambleTransMax: 50, RaResponseWindow: 3},
			},
			FreqInfo: rrcmsg.FreqInfo{UlCarrierFreq: 18100, UlBandwidth: 25},
		},
	}
}

func testSetupRrcd() rrcmsg.RadioResourceConfigDedicated {
	tm := uint8(1)
	srsCi := uint16(17)
	pa := rrcmsg.PA_DB_0
	return rrcmsg.RadioResourceConfigDedicated{
		SrbToAddModList: []rrcmsg.SrbToAddMod{rrcmsg.Srb1ToAddMod()},
		PhysicalConfigDedicated: &rrcmsg.PhysicalConfigDedicated{
			TransmissionMode: &tm,
			SrsConfigIndex:   &srsCi,
			Pa:               &pa,
		},
	}
}

func testDrb(drbid uint8) rrcmsg.DrbToAddMod {
	return rrcmsg.DrbToAddMod{
		EpsBearerIdentity:      drbid + 4,
		DrbIdentity:            drbid,
		RlcMode:                bearer.RLC_UM,
		LogicalChannelIdentity: bearer.LcidForDrb(drbid),
		LogicalChannelConfig:   bearer.LogicalChannelConfig{Priority: 9, LogicalChannelGroup: 3},
	}
}

// campOn forces the UE onto cellId and delivers the MIB.
func (tu *testUe) campOn(t *testing.T, cellId uint16) {
	t.Helper()
	tu.ue.ForceCampedOnEnb(cellId, 100)
	tu.ue.RecvMasterInformationBlock(cellId, rrcmsg.MasterInformationBlock{DlBandwidth: 25})
	require.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
}

// connect runs a full connection establishment on cellId with rnti.
func (tu *testUe) connect(t *testing.T, cellId, rnti uint16) {
	t.Helper()
	tu.campOn(t, cellId)
	tu.ue.Connect()
	tu.ue.RecvSystemInformation(testSib2())
	require.Equal(t, STATE_RANDOM_ACCESS, tu.ue.State())
	tu.ue.SetTemporaryCellRnti(rnti)
	tu.ue.NotifyRandomAccessSuccessful()
	require.Equal(t, STATE_CONNECTING, tu.ue.State())
	tu.ue.RecvRrcConnectionSetup(rrcmsg.RrcConnectionSetup{
		RrcTransactionIdentifier:     1,
		RadioResourceConfigDedicated: testSetupRrcd(),
	})
	require.Equal(t, STATE_CONNECTED_NORMALLY, tu.ue.State())
}
