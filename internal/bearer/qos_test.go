package bearer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogicalChannelConfigFor(t *testing.T) {
	testCases := []struct {
		name     string
		bearer   EpsBearer
		expected LogicalChannelConfig
	}{
		{
			name:   "GBR voice",
			bearer: EpsBearer{Qci: QCI_GBR_CONV_VOICE, Gbr: GbrQosInfo{GbrUl: 64}},
			expected: LogicalChannelConfig{
				Priority:               1,
				PrioritizedBitRateKbps: 64,
				BucketSizeDurationMs:   1000,
				LogicalChannelGroup:    1,
			},
		},
		{
			name:   "non-GBR default",
			bearer: EpsBearer{Qci: QCI_NGBR_VIDEO_TCP_DEFAULT, Gbr: GbrQosInfo{GbrUl: 64}},
			expected: LogicalChannelConfig{
				Priority:               9,
				PrioritizedBitRateKbps: 0,
				BucketSizeDurationMs:   1000,
				LogicalChannelGroup:    2,
			},
		},
		{
			name:   "mission critical push to talk",
			bearer: EpsBearer{Qci: QCI_GBR_MC_PUSH_TO_TALK, Gbr: GbrQosInfo{GbrUl: 1 << 20}},
			expected: LogicalChannelConfig{
				Priority:               65,
				PrioritizedBitRateKbps: 0xFFFF,
				BucketSizeDurationMs:   1000,
				LogicalChannelGroup:    1,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, LogicalChannelConfigFor(tc.bearer))
		})
	}
}

func TestModeFor(t *testing.T) {
	voice := EpsBearer{Qci: QCI_GBR_CONV_VOICE}
	web := EpsBearer{Qci: QCI_NGBR_VIDEO_TCP_DEFAULT}

	assert.Equal(t, RLC_SM, ModeFor(RLC_POLICY_SM_ALWAYS, web))
	assert.Equal(t, RLC_UM, ModeFor(RLC_POLICY_UM_ALWAYS, web))
	assert.Equal(t, RLC_AM, ModeFor(RLC_POLICY_AM_ALWAYS, voice))
	assert.Equal(t, RLC_UM, ModeFor(RLC_POLICY_PER_BASED, voice))
	assert.Equal(t, RLC_AM, ModeFor(RLC_POLICY_PER_BASED, web))
}

func TestPdcpOnlyAboveRealTransport(t *testing.T) {
	assert.Nil(t, NewDataRadioBearer(1, 1, EpsBearer{Qci: 9}, RLC_SM).Pdcp)
	assert.NotNil(t, NewDataRadioBearer(1, 1, EpsBearer{Qci: 9}, RLC_UM).Pdcp)

	drb := NewDataRadioBearer(2, 2, EpsBearer{Qci: 9}, RLC_AM)
	drb.Pdcp.SetStatus(PdcpStatus{TxSn: 7, RxSn: 3})
	assert.Equal(t, PdcpStatus{TxSn: 7, RxSn: 3}, drb.Pdcp.Status())
	assert.Equal(t, "AM", drb.RlcMode().String())
}
