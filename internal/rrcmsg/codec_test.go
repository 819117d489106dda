package rrcmsg

import (
	"testing"

	"lte_rrc/internal/bearer"
	"lte_rrc/pkg/config"

	"github.com/lvdund/rrc"
	rrcies "github.com/lvdund/rrc/ies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestHandoverCommand(txid uint8) RrcConnectionReconfiguration {
	srs := uint16(17)
	return RrcConnectionReconfiguration{
		RrcTransactionIdentifier: txid,
		MobilityControlInfo: &MobilityControlInfo{
			TargetPhysCellId: 2,
			DlCarrierFreq:    100,
			UlCarrierFreq:    18100,
			DlBandwidth:      25,
			UlBandwidth:      25,
			NewUeIdentity:    7,
			RachConfigCommon: RachConfigCommon{NumberOfRaPreambles: 52, PreambleTransMax: 50, RaResponseWindow: 3},
			RachConfigDedicated: &RachConfigDedicated{
				RaPreambleIndex:  60,
				RaPrachMaskIndex: 0,
			},
		},
		RadioResourceConfigDedicated: &RadioResourceConfigDedicated{
			SrbToAddModList: []SrbToAddMod{Srb1ToAddMod()},
			DrbToAddModList: []DrbToAddMod{{
				EpsBearerIdentity:      1,
				DrbIdentity:            1,
				RlcMode:                bearer.RLC_AM,
				LogicalChannelIdentity: 3,
				LogicalChannelConfig:   bearer.LogicalChannelConfigFor(bearer.EpsBearer{Qci: 9}),
			}},
			PhysicalConfigDedicated: &PhysicalConfigDedicated{SrsConfigIndex: &srs},
		},
	}
}

func createTestPreparationInfo() HandoverPreparationInfo {
	return HandoverPreparationInfo{
		AsConfig: AsConfig{
			SourceUeIdentity:    5,
			SourceDlCarrierFreq: 100,
			SourceMasterInformationBlock: MasterInformationBlock{
				DlBandwidth: 25,
			},
			SourceSystemInformationBlockType1: SystemInformationBlockType1{
				CellAccessRelatedInfo: CellAccessRelatedInfo{CellIdentity: 1},
				CellSelectionInfo:     CellSelectionInfo{QRxLevMin: -70},
			},
			SourceMeasConfig: MeasConfig{
				MeasIdToAddModList: []MeasIdToAddMod{{MeasId: 1, MeasObjectId: 1, ReportConfigId: 1}},
			},
		},
	}
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec(config.RRC_CODEC_IDEAL)
	require.NoError(t, err)
	assert.IsType(t, &IdealCodec{}, c)

	c, err = NewCodec(config.RRC_CODEC_ASN)
	require.NoError(t, err)
	assert.IsType(t, &AsnCodec{}, c)

	_, err = NewCodec("uper")
	assert.Error(t, err)
}

// Test 1: both backends return what was encoded
func TestCodecHandoverCommand(t *testing.T) {
	for name, codec := range map[string]Codec{"ideal": NewIdealCodec(), "asn": NewAsnCodec()} {
		t.Run(name, func(t *testing.T) {
			cmd := createTestHandoverCommand(2)
			b, err := codec.EncodeHandoverCommand(cmd)
			require.NoError(t, err)

			got, err := codec.DecodeHandoverCommand(b)
			require.NoError(t, err)
			assert.Equal(t, cmd.RrcTransactionIdentifier, got.RrcTransactionIdentifier)
			require.True(t, got.HaveMobilityControlInfo())
			assert.Equal(t, uint16(7), got.MobilityControlInfo.NewUeIdentity)
			assert.Equal(t, uint8(60), got.MobilityControlInfo.RachConfigDedicated.RaPreambleIndex)
			require.NotNil(t, got.RadioResourceConfigDedicated)
			assert.Equal(t, cmd.RadioResourceConfigDedicated.DrbToAddModList, got.RadioResourceConfigDedicated.DrbToAddModList)
			assert.Equal(t, uint16(17), *got.RadioResourceConfigDedicated.PhysicalConfigDedicated.SrsConfigIndex)
		})
	}
}

func TestCodecHandoverPreparationInfo(t *testing.T) {
	for name, codec := range map[string]Codec{"ideal": NewIdealCodec(), "asn": NewAsnCodec()} {
		t.Run(name, func(t *testing.T) {
			info := createTestPreparationInfo()
			b, err := codec.EncodeHandoverPreparationInfo(info)
			require.NoError(t, err)

			got, err := codec.DecodeHandoverPreparationInfo(b)
			require.NoError(t, err)
			assert.Equal(t, info.AsConfig.SourceUeIdentity, got.AsConfig.SourceUeIdentity)
			assert.Equal(t, int8(-70), got.AsConfig.SourceSystemInformationBlockType1.CellSelectionInfo.QRxLevMin)
			assert.Equal(t, info.AsConfig.SourceMeasConfig.MeasIdToAddModList, got.AsConfig.SourceMeasConfig.MeasIdToAddModList)
		})
	}
}

// Test 2: the ideal codec consumes handles
func TestIdealCodecHandles(t *testing.T) {
	codec := NewIdealCodec()
	b, err := codec.EncodeHandoverCommand(createTestHandoverCommand(1))
	require.NoError(t, err)
	assert.Len(t, b, 4)
	assert.Equal(t, 1, codec.Outstanding())

	_, err = codec.DecodeHandoverCommand(b)
	require.NoError(t, err)
	assert.Zero(t, codec.Outstanding())

	_, err = codec.DecodeHandoverCommand(b)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	_, err = codec.DecodeHandoverCommand([]byte{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)

	b, err = codec.EncodeHandoverPreparationInfo(createTestPreparationInfo())
	require.NoError(t, err)
	_, err = codec.DecodeHandoverCommand(b)
	assert.ErrorIs(t, err, ErrUnexpectedKind)
}

// Test 3: serialized containers are checked
func TestAsnCodecRejectsBadContainers(t *testing.T) {
	codec := NewAsnCodec()

	b, err := codec.EncodeHandoverPreparationInfo(createTestPreparationInfo())
	require.NoError(t, err)
	_, err = codec.DecodeHandoverCommand(b)
	assert.ErrorIs(t, err, ErrUnexpectedKind)

	_, err = codec.DecodeHandoverPreparationInfo([]byte{1})
	assert.ErrorIs(t, err, ErrMalformed)

	b, err = codec.EncodeHandoverCommand(createTestHandoverCommand(3))
	require.NoError(t, err)
	_, err = codec.DecodeHandoverCommand(b[:containerHeaderSize])
	assert.ErrorIs(t, err, ErrMalformed)
}

// Test 4: bearer and measurement identities travel in the UPER envelope
func TestAsnCodecEnvelopeFields(t *testing.T) {
	codec := NewAsnCodec()
	cmd := createTestHandoverCommand(2)
	cmd.RadioResourceConfigDedicated.DrbToReleaseList = []uint8{4}
	cmd.MeasConfig = &MeasConfig{
		MeasObjectToAddModList: []MeasObjectToAddMod{{MeasObjectId: 1, MeasObjectEutra: MeasObjectEutra{CarrierFreq: 100}}},
		MeasIdToRemoveList:     []uint8{3},
		MeasIdToAddModList:     []MeasIdToAddMod{{MeasId: 1, MeasObjectId: 1, ReportConfigId: 2}},
	}
	b, err := codec.EncodeHandoverCommand(cmd)
	require.NoError(t, err)

	envelope, body, err := unpackContainer(b, CONTAINER_HANDOVER_COMMAND)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "drb_to_release_list")
	assert.NotContains(t, string(body), "meas_id_to_add_mod_list")

	dlDcchMsg := rrcies.DL_DCCH_Message{}
	require.NoError(t, rrc.Decode(envelope, &dlDcchMsg))
	ies := dlDcchMsg.Message.C1.RrcReconfiguration.CriticalExtensions.RrcReconfiguration
	require.NotNil(t, ies.RadioBearerConfig)
	require.NotNil(t, ies.RadioBearerConfig.Drb_ToAddModList)
	assert.Equal(t, uint64(1), ies.RadioBearerConfig.Drb_ToAddModList.Value[0].Drb_Identity.Value)
	assert.Equal(t, uint64(1), ies.RadioBearerConfig.Srb_ToAddModList.Value[0].Srb_Identity.Value)
	assert.Equal(t, uint64(4), ies.RadioBearerConfig.Drb_ToReleaseList.Value[0].Value)
	require.NotNil(t, ies.MeasConfig)
	assert.Equal(t, uint64(2), ies.MeasConfig.MeasIdToAddModList.Value[0].ReportConfigId.Value)

	got, err := codec.DecodeHandoverCommand(b)
	require.NoError(t, err)
	assert.Equal(t, cmd.RadioResourceConfigDedicated, got.RadioResourceConfigDedicated)
	assert.Equal(t, cmd.MeasConfig, got.MeasConfig)

	cmd.RadioResourceConfigDedicated.DrbToAddModList[0].EpsBearerIdentity = 16
	_, err = codec.EncodeHandoverCommand(cmd)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReportConfigValidate(t *testing.T) {
	a3 := ReportConfigEutra{
		TriggerType:     TRIGGER_EVENT,
		EventId:         EVENT_A3,
		TriggerQuantity: TRIGGER_QUANTITY_RSRP,
		Purpose:         REPORT_STRONGEST_CELLS,
	}
	assert.NoError(t, a3.Validate())

	a2 := a3
	a2.EventId = EVENT_A2
	a2.Threshold1 = ThresholdEutra{Choice: THRESHOLD_RSRQ, Range: 30}
	assert.Error(t, a2.Validate())

	a5 := a3
	a5.EventId = EVENT_A5
	a5.TriggerQuantity = TRIGGER_QUANTITY_RSRQ
	a5.Threshold1 = ThresholdEutra{Choice: THRESHOLD_RSRQ}
	a5.Threshold2 = ThresholdEutra{Choice: THRESHOLD_RSRP}
	assert.Error(t, a5.Validate())

	cgi := a3
	cgi.Purpose = REPORT_CGI
	assert.Error(t, cgi.Validate())
}

func TestMeasConfigClone(t *testing.T) {
	orig := &MeasConfig{MeasIdToAddModList: []MeasIdToAddMod{{MeasId: 1, MeasObjectId: 1, ReportConfigId: 1}}}
	clone := orig.Clone()
	orig.MeasIdToAddModList[0].MeasId = 9
	assert.Equal(t, uint8(1), clone.MeasIdToAddModList[0].MeasId)
	assert.False(t, clone.IsEmpty())
	assert.True(t, (&MeasConfig{}).IsEmpty())
}

func TestRsrpRange(t *testing.T) {
	assert.Equal(t, uint8(61), RsrpToRange(-80))
	assert.Equal(t, uint8(0), RsrpToRange(-150))
	assert.Equal(t, uint8(97), RsrpToRange(-20))
	assert.Equal(t, -80.0, RangeToRsrp(61))
}

func TestRsrqRange(t *testing.T) {
	assert.Equal(t, uint8(20), RsrqToRange(-10))
	assert.Equal(t, uint8(0), RsrqToRange(-25))
	assert.Equal(t, uint8(34), RsrqToRange(0))
	assert.Equal(t, -10.0, RangeToRsrq(20))
}
