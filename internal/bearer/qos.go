package bearer

// QCI values used by the QoS-derived channel configuration.
const (
	QCI_GBR_CONV_VOICE          uint8 = 1
	QCI_GBR_CONV_VIDEO          uint8 = 2
	QCI_GBR_GAMING              uint8 = 3
	QCI_GBR_NON_CONV_VIDEO      uint8 = 4
	QCI_NGBR_IMS                uint8 = 5
	QCI_NGBR_VIDEO_TCP_OPERATOR uint8 = 6
	QCI_NGBR_VOICE_VIDEO_GAMING uint8 = 7
	QCI_NGBR_VIDEO_TCP_PREMIUM  uint8 = 8
	QCI_NGBR_VIDEO_TCP_DEFAULT  uint8 = 9
	QCI_GBR_MC_PUSH_TO_TALK     uint8 = 65
	QCI_GBR_NMC_PUSH_TO_TALK    uint8 = 66
	QCI_GBR_MC_VIDEO            uint8 = 67
	QCI_NGBR_MC_DELAY_SIGNAL    uint8 = 69
	QCI_NGBR_MC_DATA            uint8 = 70
)

type GbrQosInfo struct {
	GbrDl uint64 `yaml:"gbr_dl"`
	GbrUl uint64 `yaml:"gbr_ul"`
	MbrDl uint64 `yaml:"mbr_dl"`
	MbrUl uint64 `yaml:"mbr_ul"`
}

// EpsBearer is the E-RAB level QoS of a data bearer.
type EpsBearer struct {
	Qci uint8      `yaml:"qci"`
	Gbr GbrQosInfo `yaml:"gbr"`
}

func (b EpsBearer) IsGbr() bool {
	switch b.Qci {
	case QCI_GBR_CONV_VOICE, QCI_GBR_CONV_VIDEO, QCI_GBR_GAMING, QCI_GBR_NON_CONV_VIDEO,
		QCI_GBR_MC_PUSH_TO_TALK, QCI_GBR_NMC_PUSH_TO_TALK, QCI_GBR_MC_VIDEO:
		return true
	default:
		return false
	}
}

func (b EpsBearer) Priority() uint8 {
	return b.Qci
}

// PacketErrorLossRate follows the standardized QCI characteristics table.
func (b EpsBearer) PacketErrorLossRate() float64 {
	switch b.Qci {
	case QCI_GBR_CONV_VOICE:
		return 1e-2
	case QCI_GBR_CONV_VIDEO, QCI_GBR_GAMING, QCI_NGBR_VOICE_VIDEO_GAMING:
		return 1e-3
	case QCI_GBR_MC_PUSH_TO_TALK, QCI_GBR_NMC_PUSH_TO_TALK:
		return 1e-2
	case QCI_GBR_MC_VIDEO:
		return 1e-3
	default:
		return 1e-6
	}
}

type LogicalChannelConfig struct {
	Priority               uint8  `yaml:"priority"`
	PrioritizedBitRateKbps uint16 `yaml:"prioritized_bit_rate_kbps"`
	BucketSizeDurationMs   uint16 `yaml:"bucket_size_duration_ms"`
	LogicalChannelGroup    uint8  `yaml:"logical_channel_group"`
}

// Srb1LogicalChannelConfig is the fixed configuration of signaling bearer 1.
func Srb1LogicalChannelConfig() LogicalChannelConfig {
	return LogicalChannelConfig{
		Priority:               0,
		PrioritizedBitRateKbps: 100,
		BucketSizeDurationMs:   100,
		LogicalChannelGroup:    0,
	}
}

func LogicalChannelGroupFor(b EpsBearer) uint8 {
	if b.IsGbr() {
		return 1
	}
	return 2
}

// LogicalChannelConfigFor derives the MAC channel configuration of a DRB
// from its QoS.
func LogicalChannelConfigFor(b EpsBearer) LogicalChannelConfig {
	cfg := LogicalChannelConfig{
		Priority:             b.Priority(),
		BucketSizeDurationMs: 1000,
		LogicalChannelGroup:  LogicalChannelGroupFor(b),
	}
	if b.IsGbr() {
		pbr := b.Gbr.GbrUl
		if pbr > 0xFFFF {
			pbr = 0xFFFF
		}
		cfg.PrioritizedBitRateKbps = uint16(pbr)
	}
	return cfg
}
