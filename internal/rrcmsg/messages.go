package rrcmsg

// Messages exchanged between a UE and its serving eNodeB. The records are
// flat; optional members are pointers.

type RrcConnectionRequest struct {
	UeIdentity uint64
}

type RrcConnectionSetup struct {
	RrcTransactionIdentifier     uint8
	RadioResourceConfigDedicated RadioResourceConfigDedicated
}

type RrcConnectionSetupCompleted struct {
	RrcTransactionIdentifier uint8
}

type RrcConnectionReconfiguration struct {
	RrcTransactionIdentifier     uint8                         `yaml:"rrc_transaction_identifier"`
	MeasConfig                   *MeasConfig                   `yaml:"meas_config,omitempty"`
	MobilityControlInfo          *MobilityControlInfo          `yaml:"mobility_control_info,omitempty"`
	RadioResourceConfigDedicated *RadioResourceConfigDedicated `yaml:"radio_resource_config_dedicated,omitempty"`
}

func (r *RrcConnectionReconfiguration) HaveMobilityControlInfo() bool {
	return r.MobilityControlInfo != nil
}

type RrcConnectionReconfigurationCompleted struct {
	RrcTransactionIdentifier uint8
}

type ReestablishmentCause int

const (
	REESTABLISHMENT_CAUSE_RECONFIGURATION_FAILURE ReestablishmentCause = iota
	REESTABLISHMENT_CAUSE_HANDOVER_FAILURE
	REESTABLISHMENT_CAUSE_OTHER_FAILURE
)

type ReestabUeIdentity struct {
	CRnti      uint16
	PhysCellId uint16
}

type RrcConnectionReestablishmentRequest struct {
	UeIdentity           ReestabUeIdentity
	ReestablishmentCause ReestablishmentCause
}

type RrcConnectionReestablishment struct {
	RrcTransactionIdentifier     uint8
	RadioResourceConfigDedicated RadioResourceConfigDedicated
}

type RrcConnectionReestablishmentComplete struct {
	RrcTransactionIdentifier uint8
}

type RrcConnectionReestablishmentReject struct{}

type RrcConnectionRelease struct {
	RrcTransactionIdentifier uint8
}

type RrcConnectionReject struct {
	WaitTime uint8
}

type MasterInformationBlock struct {
	DlBandwidth       uint8  `yaml:"dl_bandwidth"`
	SystemFrameNumber uint16 `yaml:"system_frame_number"`
}

type CellAccessRelatedInfo struct {
	PlmnIdentity  uint32 `yaml:"plmn_identity"`
	CellIdentity  uint16 `yaml:"cell_identity"`
	CsgIndication bool   `yaml:"csg_indication"`
	CsgIdentity   uint32 `yaml:"csg_identity"`
}

type CellSelectionInfo struct {
	QRxLevMin int8 `yaml:"q_rx_lev_min"`
	QQualMin  int8 `yaml:"q_qual_min"`
}

type SystemInformationBlockType1 struct {
	CellAccessRelatedInfo CellAccessRelatedInfo `yaml:"cell_access_related_info"`
	CellSelectionInfo     CellSelectionInfo     `yaml:"cell_selection_info"`
}

type FreqInfo struct {
	UlCarrierFreq uint32 `yaml:"ul_carrier_freq"`
	UlBandwidth   uint8  `yaml:"ul_bandwidth"`
}

type RadioResourceConfigCommonSib struct {
	RachConfigCommon RachConfigCommon `yaml:"rach_config_common"`
}

type SystemInformationBlockType2 struct {
	RadioResourceConfigCommon RadioResourceConfigCommonSib `yaml:"radio_resource_config_common"`
	FreqInfo                  FreqInfo                     `yaml:"freq_info"`
}

// SystemInformation carries SIB2 when HaveSib2 is set.
type SystemInformation struct {
	HaveSib2 bool
	Sib2     SystemInformationBlockType2
}

type MeasurementReport struct {
	MeasResults MeasResults
}

// AsConfig is the access stratum configuration relayed to the target cell
// during handover preparation.
type AsConfig struct {
	SourceMeasConfig                  MeasConfig                   `yaml:"source_meas_config"`
	SourceRadioResourceConfig         RadioResourceConfigDedicated `yaml:"source_radio_resource_config"`
	SourceUeIdentity                  uint16                       `yaml:"source_ue_identity"`
	SourceMasterInformationBlock      MasterInformationBlock       `yaml:"source_master_information_block"`
	SourceSystemInformationBlockType1 SystemInformationBlockType1  `yaml:"source_system_information_block_type1"`
	SourceSystemInformationBlockType2 SystemInformationBlockType2  `yaml:"source_system_information_block_type2"`
	SourceDlCarrierFreq               uint32                       `yaml:"source_dl_carrier_freq"`
}

type HandoverPreparationInfo struct {
	AsConfig AsConfig `yaml:"as_config"`
}
