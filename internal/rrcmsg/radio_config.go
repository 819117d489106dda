package rrcmsg

import (
	"lte_rrc/internal/bearer"
)

// PDSCH power offset relative to the reference signal (p-a).
const (
	PA_DB_MINUS6 uint8 = iota
	PA_DB_MINUS4DOT77
	PA_DB_MINUS3
	PA_DB_MINUS1DOT77
	PA_DB_0
	PA_DB_1
	PA_DB_2
	PA_DB_3
)

type SrbToAddMod struct {
	SrbIdentity          uint8                       `yaml:"srb_identity"`
	LogicalChannelConfig bearer.LogicalChannelConfig `yaml:"logical_channel_config"`
}

type DrbToAddMod struct {
	EpsBearerIdentity      uint8                       `yaml:"eps_bearer_identity"`
	DrbIdentity            uint8                       `yaml:"drb_identity"`
	RlcMode                bearer.RlcMode              `yaml:"rlc_mode"`
	LogicalChannelIdentity uint8                       `yaml:"logical_channel_identity"`
	LogicalChannelConfig   bearer.LogicalChannelConfig `yaml:"logical_channel_config"`
}

// PhysicalConfigDedicated carries only the members that are present.
type PhysicalConfigDedicated struct {
	TransmissionMode *uint8  `yaml:"transmission_mode,omitempty"`
	SrsConfigIndex   *uint16 `yaml:"srs_config_index,omitempty"`
	Pa               *uint8  `yaml:"pa,omitempty"`
}

type RadioResourceConfigDedicated struct {
	SrbToAddModList         []SrbToAddMod            `yaml:"srb_to_add_mod_list,omitempty"`
	DrbToAddModList         []DrbToAddMod            `yaml:"drb_to_add_mod_list,omitempty"`
	DrbToReleaseList        []uint8                  `yaml:"drb_to_release_list,omitempty"`
	PhysicalConfigDedicated *PhysicalConfigDedicated `yaml:"physical_config_dedicated,omitempty"`
}

// Srb1ToAddMod is the signaling bearer 1 entry sent at connection setup.
func Srb1ToAddMod() SrbToAddMod {
	return SrbToAddMod{
		SrbIdentity:          1,
		LogicalChannelConfig: bearer.Srb1LogicalChannelConfig(),
	}
}

// DrbToAddModFor describes an existing bearer for a reconfiguration.
func DrbToAddModFor(drb *bearer.DataRadioBearer) DrbToAddMod {
	return DrbToAddMod{
		EpsBearerIdentity:      drb.EpsBearerIdentity,
		DrbIdentity:            drb.DrbIdentity,
		RlcMode:                drb.RlcMode(),
		LogicalChannelIdentity: drb.Lcid,
		LogicalChannelConfig:   drb.LogicalChannelConfig,
	}
}

type RachConfigCommon struct {
	NumberOfRaPreambles uint8 `yaml:"number_of_ra_preambles"`
	PreambleTransMax    uint8 `yaml:"preamble_trans_max"`
	RaResponseWindow    uint8 `yaml:"ra_response_window"`
	ConnEstFailCount    uint8 `yaml:"conn_est_fail_count"`
}

type RachConfigDedicated struct {
	RaPreambleIndex  uint8 `yaml:"ra_preamble_index"`
	RaPrachMaskIndex uint8 `yaml:"ra_prach_mask_index"`
}

type MobilityControlInfo struct {
	TargetPhysCellId    uint16               `yaml:"target_phys_cell_id"`
	DlCarrierFreq       uint32               `yaml:"dl_carrier_freq"`
	UlCarrierFreq       uint32               `yaml:"ul_carrier_freq"`
	DlBandwidth         uint8                `yaml:"dl_bandwidth"`
	UlBandwidth         uint8                `yaml:"ul_bandwidth"`
	NewUeIdentity       uint16               `yaml:"new_ue_identity"`
	RachConfigCommon    RachConfigCommon     `yaml:"rach_config_common"`
	RachConfigDedicated *RachConfigDedicated `yaml:"rach_config_dedicated,omitempty"`
}
