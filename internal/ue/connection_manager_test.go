package ue

import (
	"testing"
	"time"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test 1: cell search camps on the strongest suitable cell
func TestCellSelection(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.ue.Connect()
	assert.True(t, tu.ue.ConnectionPending())

	tu.ue.StartCellSelection(100)
	assert.Equal(t, uint32(100), tu.phy.searching)
	assert.Equal(t, STATE_CELL_SEARCH, tu.ue.State())

	tu.ue.ReportUeMeasurements([]sap.CellMeasurement{{CellId: 1, Rsrp: -90}, {CellId: 2, Rsrp: -80}})
	assert.Equal(t, STATE_WAIT_MIB_SIB1, tu.ue.State())
	assert.Equal(t, uint16(2), tu.ue.CellId())

	tu.ue.RecvMasterInformationBlock(2, rrcmsg.MasterInformationBlock{DlBandwidth: 50})
	assert.Equal(t, STATE_WAIT_SIB1, tu.ue.State())
	assert.Equal(t, uint8(50), tu.phy.dlBw)

	tu.ue.RecvSystemInformationBlockType1(2, testSib1(2))
	assert.Equal(t, STATE_WAIT_SIB2, tu.ue.State(), "pending connection moves on after camping")
	assert.Equal(t, []uint16{2, 2}, tu.phy.synced)

	tu.ue.RecvSystemInformation(testSib2())
	assert.Equal(t, STATE_RANDOM_ACCESS, tu.ue.State())
	assert.False(t, tu.ue.ConnectionPending())
	assert.Equal(t, 1, tu.mac.cbRa)
	require.NotNil(t, tu.mac.rach)
	assert.Equal(t, uint8(52), tu.mac.rach.NumberOfRaPreambles)
	assert.Equal(t, uint32(18100), tu.phy.ulEarfcn)
}

// Test 2: a CSG cell outside the white list is excluded from cell search
func TestCellSelectionCsgExclusion(t *testing.T) {
	tu := createTestUe(t, func(cfg *config.UeConfig) {
		cfg.CsgWhiteList = 5
	})
	tu.ue.StartCellSelection(100)
	tu.ue.ReportUeMeasurements([]sap.CellMeasurement{{CellId: 1, Rsrp: -90}, {CellId: 2, Rsrp: -80}})
	tu.ue.RecvMasterInformationBlock(2, rrcmsg.MasterInformationBlock{DlBandwidth: 25})

	sib1 := testSib1(2)
	sib1.CellAccessRelatedInfo.CsgIndication = true
	sib1.CellAccessRelatedInfo.CsgIdentity = 7
	tu.ue.RecvSystemInformationBlockType1(2, sib1)
	assert.Equal(t, []uint16{2}, tu.ue.ExcludedCells())
	assert.Equal(t, STATE_WAIT_MIB_SIB1, tu.ue.State())
	assert.Equal(t, uint16(1), tu.ue.CellId())

	tu.ue.RecvMasterInformationBlock(1, rrcmsg.MasterInformationBlock{DlBandwidth: 25})
	allowed := testSib1(1)
	allowed.CellAccessRelatedInfo.CsgIndication = true
	allowed.CellAccessRelatedInfo.CsgIdentity = 5
	tu.ue.RecvSystemInformationBlockType1(1, allowed)
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
}

// Test 3: a cell below the minimum receive level is retried, not excluded
func TestCellSelectionUnacceptable(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.ue.StartCellSelection(100)
	tu.ue.ReportUeMeasurements([]sap.CellMeasurement{{CellId: 3, Rsrp: -150}})
	tu.ue.RecvMasterInformationBlock(3, rrcmsg.MasterInformationBlock{DlBandwidth: 25})
	tu.ue.RecvSystemInformationBlockType1(3, testSib1(3))

	assert.Empty(t, tu.ue.ExcludedCells())
	assert.Equal(t, STATE_WAIT_MIB_SIB1, tu.ue.State())

	// SIB1 of another cell is ignored
	tu.ue.RecvSystemInformationBlockType1(3, testSib1(4))
	assert.Equal(t, STATE_WAIT_MIB_SIB1, tu.ue.State())
}

// Test 4: connection establishment configures SRB1 and the dedicated PHY
func TestConnectionEstablishment(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.connect(t, 1, 11)

	require.Len(t, tu.rrc.requests, 1)
	assert.Equal(t, uint64(1001), tu.rrc.requests[0].UeIdentity)
	require.Len(t, tu.rrc.setupDone, 1)
	assert.Equal(t, uint8(1), tu.rrc.setupDone[0].RrcTransactionIdentifier)
	assert.Equal(t, 1, tu.nas.successful)
	assert.False(t, tu.ue.Timers().IsArmed(TIMER_T300))

	assert.Equal(t, uint16(11), tu.ue.Rnti())
	assert.Equal(t, uint16(11), tu.phy.rnti)
	assert.Equal(t, uint8(1), tu.phy.txMode)
	assert.Equal(t, uint16(17), tu.phy.srsCi)
	assert.Equal(t, rrcmsg.PA_DB_0, tu.phy.pa)

	srb1 := tu.ue.Bearers().Srb1()
	require.NotNil(t, srb1)
	assert.True(t, srb1.Rlc.Started)
	assert.True(t, srb1.Pdcp.Started)
	assert.Contains(t, tu.mac.lcs, bearer.SRB1_LCID)
	assert.Len(t, tu.eventKinds(EVENT_CONNECTION_ESTABLISHED), 1)

	tu.ue.Connect()
	assert.Equal(t, STATE_CONNECTED_NORMALLY, tu.ue.State())
}

// Test 5: T300 expiry returns to idle and a new attempt waits for SIB2
func TestConnectionTimeout(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.campOn(t, 1)
	tu.ue.Connect()
	tu.ue.RecvSystemInformation(testSib2())
	tu.ue.SetTemporaryCellRnti(11)
	tu.ue.NotifyRandomAccessSuccessful()
	assert.Equal(t, []string{TIMER_T300}, tu.ue.Timers().Armed())

	tu.sched.RunFor(99 * time.Millisecond)
	assert.Equal(t, STATE_CONNECTING, tu.ue.State())
	tu.sched.RunFor(time.Millisecond)
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, 1, tu.ue.Timers().Fired(TIMER_T300))
	assert.Equal(t, 1, tu.nas.failed)
	assert.Equal(t, 1, tu.mac.resets)
	assert.Len(t, tu.eventKinds(EVENT_CONNECTION_TIMEOUT), 1)

	tu.ue.Connect()
	assert.Equal(t, STATE_WAIT_SIB2, tu.ue.State())
	assert.Equal(t, 1, tu.mac.cbRa)
	tu.ue.RecvSystemInformation(testSib2())
	assert.Equal(t, STATE_RANDOM_ACCESS, tu.ue.State())
	assert.Equal(t, 2, tu.mac.cbRa)
}

// Test 6: reject and random access failure both notify the NAS
func TestConnectionRejected(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.campOn(t, 1)
	tu.ue.Connect()
	tu.ue.RecvSystemInformation(testSib2())
	tu.ue.NotifyRandomAccessFailed()
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, 1, tu.nas.failed)
	assert.Len(t, tu.eventKinds(EVENT_RANDOM_ACCESS_ERROR), 1)

	tu.ue.Connect()
	assert.Equal(t, STATE_RANDOM_ACCESS, tu.ue.State(), "SIB2 still valid after a random access failure")
	tu.ue.SetTemporaryCellRnti(12)
	tu.ue.NotifyRandomAccessSuccessful()
	tu.ue.RecvRrcConnectionReject(rrcmsg.RrcConnectionReject{WaitTime: 1})
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, 2, tu.nas.failed)
	assert.Empty(t, tu.ue.Timers().Armed())

	tu.sched.RunFor(time.Second)
	assert.Equal(t, 0, tu.ue.Timers().Fired(TIMER_T300))
}

// Test 7: reconfiguration without mobility adds and releases data bearers
func TestReconfiguration(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.connect(t, 1, 11)

	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier: 3,
		RadioResourceConfigDedicated: &rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList: []rrcmsg.DrbToAddMod{testDrb(1), testDrb(2)},
		},
		MeasConfig: &rrcmsg.MeasConfig{
			MeasObjectToAddModList:   []rrcmsg.MeasObjectToAddMod{{MeasObjectId: 1}},
			ReportConfigToAddModList: []rrcmsg.ReportConfigToAddMod{{ReportConfigId: 1, ReportConfigEutra: a3Config()}},
			MeasIdToAddModList:       []rrcmsg.MeasIdToAddMod{{MeasId: 1, MeasObjectId: 1, ReportConfigId: 1}},
		},
	})
	require.Len(t, tu.rrc.reconfDone, 1)
	assert.Equal(t, uint8(3), tu.rrc.reconfDone[0].RrcTransactionIdentifier)
	assert.Equal(t, []uint8{1, 2}, tu.ue.Bearers().DrbIds())
	assert.Contains(t, tu.mac.lcs, uint8(3))
	assert.Contains(t, tu.mac.lcs, uint8(4))
	drb, _ := tu.ue.Bearers().Drb(1)
	assert.Equal(t, uint8(5), drb.EpsBearerIdentity)
	assert.True(t, drb.Pdcp.Started)
	assert.Equal(t, []uint8{1}, tu.meas.MeasIds())
	assert.Len(t, tu.eventKinds(EVENT_CONNECTION_RECONFIGURATION), 1)

	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier: 4,
		RadioResourceConfigDedicated: &rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList:  []rrcmsg.DrbToAddMod{testDrb(2)},
			DrbToReleaseList: []uint8{1},
		},
	})
	assert.Equal(t, []uint8{2}, tu.ue.Bearers().DrbIds())
	assert.Equal(t, []uint8{3}, tu.mac.removedLcs)

	readd := testDrb(2)
	readd.EpsBearerIdentity = 9
	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier: 5,
		RadioResourceConfigDedicated: &rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList:  []rrcmsg.DrbToAddMod{readd},
			DrbToReleaseList: []uint8{2},
		},
	})
	assert.Equal(t, []uint8{2}, tu.ue.Bearers().DrbIds(), "released and added again in one message")
	drb, _ = tu.ue.Bearers().Drb(2)
	assert.Equal(t, uint8(9), drb.EpsBearerIdentity)
	assert.Equal(t, []uint8{3, 4}, tu.mac.removedLcs)
	assert.Contains(t, tu.mac.lcs, uint8(4))

	bad := testDrb(3)
	bad.LogicalChannelIdentity = 2
	assert.Panics(t, func() {
		tu.ue.ApplyRadioResourceConfigDedicated(rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList: []rrcmsg.DrbToAddMod{bad},
		})
	})
}

func handoverCommand(txid uint8) rrcmsg.RrcConnectionReconfiguration {
	rrcd := rrcmsg.RadioResourceConfigDedicated{
		SrbToAddModList: []rrcmsg.SrbToAddMod{rrcmsg.Srb1ToAddMod()},
		DrbToAddModList: []rrcmsg.DrbToAddMod{testDrb(1)},
	}
	return rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier: txid,
		MobilityControlInfo: &rrcmsg.MobilityControlInfo{
			TargetPhysCellId:    2,
			DlCarrierFreq:       100,
			UlCarrierFreq:       18100,
			DlBandwidth:         50,
			UlBandwidth:         50,
			NewUeIdentity:       7,
			RachConfigDedicated: &rrcmsg.RachConfigDedicated{RaPreambleIndex: 53},
		},
		RadioResourceConfigDedicated: &rrcd,
	}
}

// Test 8: a handover command retunes to the target and completes after random access
func TestHandoverExecution(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.connect(t, 1, 11)
	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		RrcTransactionIdentifier: 2,
		RadioResourceConfigDedicated: &rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList: []rrcmsg.DrbToAddMod{testDrb(1)},
		},
	})

	tu.ue.RecvRrcConnectionReconfiguration(handoverCommand(4))
	assert.Equal(t, STATE_CONNECTED_HANDOVER, tu.ue.State())
	assert.Equal(t, uint16(2), tu.ue.CellId())
	assert.Equal(t, uint16(7), tu.ue.Rnti())
	assert.Equal(t, uint16(7), tu.phy.rnti)
	assert.Equal(t, 1, tu.mac.resets)
	assert.Equal(t, 1, tu.phy.resets)
	assert.Equal(t, uint16(2), tu.phy.synced[len(tu.phy.synced)-1])
	assert.Equal(t, uint8(50), tu.phy.dlBw)
	assert.Equal(t, uint8(50), tu.phy.ulBw)
	assert.Equal(t, []ncRa{{rnti: 7, preamble: 53}}, tu.mac.ncRa)
	assert.Equal(t, []uint8{1}, tu.ue.Bearers().DrbIds())
	assert.NotNil(t, tu.ue.Bearers().Srb1())
	require.Len(t, tu.rrc.reconfDone, 1, "completion waits for the random access")

	start := tu.eventKinds(EVENT_HANDOVER_START)
	require.Len(t, start, 1)
	assert.Equal(t, uint16(2), start[0].TargetCellId)

	tu.ue.NotifyRandomAccessSuccessful()
	assert.Equal(t, STATE_CONNECTED_NORMALLY, tu.ue.State())
	require.Len(t, tu.rrc.reconfDone, 2)
	assert.Equal(t, uint8(4), tu.rrc.reconfDone[1].RrcTransactionIdentifier)
	assert.Len(t, tu.eventKinds(EVENT_HANDOVER_END_OK), 1)
}

// Test 9: a failed random access towards the target leaves connected mode
func TestHandoverFailure(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.connect(t, 1, 11)
	tu.ue.RecvRrcConnectionReconfiguration(handoverCommand(4))

	tu.ue.NotifyRandomAccessFailed()
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, 1, tu.nas.released)
	assert.Empty(t, tu.ue.Bearers().DrbIds())
	assert.Nil(t, tu.ue.Bearers().Srb1())
	assert.Equal(t, uint16(0), tu.ue.Rnti())
	assert.Len(t, tu.eventKinds(EVENT_HANDOVER_END_ERROR), 1)

	cmd := handoverCommand(5)
	cmd.MobilityControlInfo.RachConfigDedicated = nil
	tu2 := createTestUe(t, nil)
	tu2.connect(t, 1, 11)
	assert.Panics(t, func() { tu2.ue.RecvRrcConnectionReconfiguration(cmd) })
}

// Test 10: disconnect depends on the current state
func TestDisconnect(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.ue.Disconnect()
	assert.Equal(t, STATE_START, tu.ue.State())

	tu.campOn(t, 1)
	tu.ue.Connect()
	tu.ue.RecvSystemInformation(testSib2())
	assert.Panics(t, func() { tu.ue.Disconnect() })

	tu = createTestUe(t, nil)
	tu.connect(t, 1, 11)
	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		RadioResourceConfigDedicated: &rrcmsg.RadioResourceConfigDedicated{
			DrbToAddModList: []rrcmsg.DrbToAddMod{testDrb(1)},
		},
	})
	tu.ue.Disconnect()
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, []uint8{3}, tu.mac.removedLcs)
	assert.Equal(t, 1, tu.nas.released)
	assert.Equal(t, 0, tu.ue.Bearers().Len())
}

// Test 11: radio link failure triggers a reestablishment with the serving cell
func TestRadioLinkFailure(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.connect(t, 1, 11)

	tu.ue.NotifyOutOfSync()
	assert.Equal(t, STATE_CONNECTED_PHY_PROBLEM, tu.ue.State())
	tu.ue.NotifyInSync()
	assert.Equal(t, STATE_CONNECTED_NORMALLY, tu.ue.State())

	tu.ue.NotifyRadioLinkFailure()
	assert.Equal(t, STATE_CONNECTED_REESTABLISHING, tu.ue.State())
	require.Len(t, tu.rrc.reestabReqs, 1)
	req := tu.rrc.reestabReqs[0]
	assert.Equal(t, rrcmsg.ReestabUeIdentity{CRnti: 11, PhysCellId: 1}, req.UeIdentity)
	assert.Equal(t, rrcmsg.REESTABLISHMENT_CAUSE_OTHER_FAILURE, req.ReestablishmentCause)
	assert.Len(t, tu.eventKinds(EVENT_RADIO_LINK_FAILURE), 1)

	tu.ue.RecvRrcConnectionReestablishment(rrcmsg.RrcConnectionReestablishment{
		RrcTransactionIdentifier:     5,
		RadioResourceConfigDedicated: testSetupRrcd(),
	})
	assert.Equal(t, STATE_CONNECTED_NORMALLY, tu.ue.State())
	require.Len(t, tu.rrc.reestabDone, 1)
	assert.Equal(t, uint8(5), tu.rrc.reestabDone[0].RrcTransactionIdentifier)

	tu.ue.NotifyRadioLinkFailure()
	tu.ue.RecvRrcConnectionReestablishmentReject(rrcmsg.RrcConnectionReestablishmentReject{})
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
	assert.Equal(t, 1, tu.nas.released)

	tu.ue.NotifyRadioLinkFailure()
	assert.Equal(t, STATE_CAMPED_NORMALLY, tu.ue.State())
}

// Test 12: measurement reports are only sent while connected
func TestMeasurementReportForwarding(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.campOn(t, 1)
	tu.ue.ReportTriggered(1, rrcmsg.MeasResults{})
	assert.Empty(t, tu.rrc.reports)

	tu = createTestUe(t, nil)
	tu.connect(t, 1, 11)
	tu.ue.RecvRrcConnectionReconfiguration(rrcmsg.RrcConnectionReconfiguration{
		MeasConfig: &rrcmsg.MeasConfig{
			MeasObjectToAddModList:   []rrcmsg.MeasObjectToAddMod{{MeasObjectId: 1}},
			ReportConfigToAddModList: []rrcmsg.ReportConfigToAddMod{{ReportConfigId: 1, ReportConfigEutra: a3Config()}},
			MeasIdToAddModList:       []rrcmsg.MeasIdToAddMod{{MeasId: 4, MeasObjectId: 1, ReportConfigId: 1}},
		},
	})
	tu.ue.ReportUeMeasurements(samples(map[uint16]float64{1: -90, 2: -80}))
	tu.sched.RunFor(50 * time.Millisecond)
	require.Len(t, tu.rrc.reports, 1)
	assert.Equal(t, uint8(4), tu.rrc.reports[0].MeasResults.MeasId)
	require.Len(t, tu.rrc.reports[0].MeasResults.MeasResultListEutra, 1)
	assert.Equal(t, uint16(2), tu.rrc.reports[0].MeasResults.MeasResultListEutra[0].PhysCellId)
}

// Test 13: messages in the wrong state are fatal
func TestUnexpectedMessages(t *testing.T) {
	tu := createTestUe(t, nil)
	assert.Panics(t, func() { tu.ue.NotifyRandomAccessSuccessful() })

	tu.ue.StartCellSelection(100)
	assert.Panics(t, func() { tu.ue.StartCellSelection(100) })
	assert.Panics(t, func() { tu.ue.ForceCampedOnEnb(1, 100) })

	tu = createTestUe(t, nil)
	tu.campOn(t, 1)
	assert.Panics(t, func() {
		tu.ue.RecvRrcConnectionSetup(rrcmsg.RrcConnectionSetup{RadioResourceConfigDedicated: testSetupRrcd()})
	})
	assert.Panics(t, func() { tu.ue.RecvRrcConnectionReject(rrcmsg.RrcConnectionReject{}) })
}

// Test 14: physical cell id 0 is a regular candidate of the cell search
func TestCellSelectionCellZero(t *testing.T) {
	tu := createTestUe(t, nil)
	tu.ue.StartCellSelection(100)
	tu.ue.ReportUeMeasurements([]sap.CellMeasurement{{CellId: 0, Rsrp: -70}, {CellId: 1, Rsrp: -90}})
	assert.Equal(t, STATE_WAIT_MIB_SIB1, tu.ue.State())
	assert.Equal(t, uint16(0), tu.ue.CellId())
	assert.Equal(t, []uint16{0}, tu.phy.synced)

	tu = createTestUe(t, nil)
	tu.ue.StartCellSelection(100)
	tu.ue.ReportUeMeasurements(nil)
	assert.Equal(t, STATE_CELL_SEARCH, tu.ue.State())
	assert.Empty(t, tu.phy.synced)
}
