package rrcmsg

import (
	"fmt"
)

type TriggerType int

const (
	TRIGGER_EVENT TriggerType = iota
	TRIGGER_PERIODICAL
)

type EventId int

const (
	EVENT_A1 EventId = iota
	EVENT_A2
	EVENT_A3
	EVENT_A4
	EVENT_A5
)

func eventIdToString(e EventId) string {
	switch e {
	case EVENT_A1:
		return "A1"
	case EVENT_A2:
		return "A2"
	case EVENT_A3:
		return "A3"
	case EVENT_A4:
		return "A4"
	case EVENT_A5:
		return "A5"
	default:
		return "UNKNOWN"
	}
}

func (e EventId) String() string {
	return eventIdToString(e)
}

type ThresholdChoice int

const (
	THRESHOLD_RSRP ThresholdChoice = iota
	THRESHOLD_RSRQ
)

type ThresholdEutra struct {
	Choice ThresholdChoice `yaml:"choice"`
	Range  uint8           `yaml:"range"`
}

type TriggerQuantity int

const (
	TRIGGER_QUANTITY_RSRP TriggerQuantity = iota
	TRIGGER_QUANTITY_RSRQ
)

type ReportQuantity int

const (
	REPORT_QUANTITY_SAME_AS_TRIGGER ReportQuantity = iota
	REPORT_QUANTITY_BOTH
)

type ReportPurpose int

const (
	REPORT_STRONGEST_CELLS ReportPurpose = iota
	REPORT_CGI
)

type ReportConfigEutra struct {
	TriggerType     TriggerType     `yaml:"trigger_type"`
	EventId         EventId         `yaml:"event_id"`
	Threshold1      ThresholdEutra  `yaml:"threshold1"`
	Threshold2      ThresholdEutra  `yaml:"threshold2"`
	ReportOnLeave   bool            `yaml:"report_on_leave"`
	A3Offset        int8            `yaml:"a3_offset"`
	Hysteresis      uint8           `yaml:"hysteresis"`
	TimeToTrigger   uint16          `yaml:"time_to_trigger"`
	Purpose         ReportPurpose   `yaml:"purpose"`
	TriggerQuantity TriggerQuantity `yaml:"trigger_quantity"`
	ReportQuantity  ReportQuantity  `yaml:"report_quantity"`
	MaxReportCells  uint8           `yaml:"max_report_cells"`
	ReportInterval  uint16          `yaml:"report_interval"`
	ReportAmount    uint8           `yaml:"report_amount"`
}

func usesThreshold1(e EventId) bool {
	return e == EVENT_A1 || e == EVENT_A2 || e == EVENT_A4 || e == EVENT_A5
}

// Validate checks that the thresholds are expressed in the trigger quantity
// and that the purpose is supported.
func (r ReportConfigEutra) Validate() error {
	var want ThresholdChoice
	switch r.TriggerQuantity {
	case TRIGGER_QUANTITY_RSRP:
		want = THRESHOLD_RSRP
	case TRIGGER_QUANTITY_RSRQ:
		want = THRESHOLD_RSRQ
	default:
		return fmt.Errorf("unsupported trigger quantity %d", r.TriggerQuantity)
	}
	if r.TriggerType == TRIGGER_EVENT {
		if r.EventId == EVENT_A5 && r.Threshold2.Choice != want {
			return fmt.Errorf("event %s: threshold2 does not match the trigger quantity", r.EventId)
		}
		if usesThreshold1(r.EventId) && r.Threshold1.Choice != want {
			return fmt.Errorf("event %s: threshold1 does not match the trigger quantity", r.EventId)
		}
	}
	if r.Purpose != REPORT_STRONGEST_CELLS {
		return fmt.Errorf("only the strongest cells report purpose is supported")
	}
	return nil
}

type MeasObjectEutra struct {
	CarrierFreq          uint32 `yaml:"carrier_freq"`
	AllowedMeasBandwidth uint8  `yaml:"allowed_meas_bandwidth"`
	NeighCellConfig      uint8  `yaml:"neigh_cell_config"`
	OffsetFreq           int8   `yaml:"offset_freq"`
}

type MeasObjectToAddMod struct {
	MeasObjectId    uint8           `yaml:"meas_object_id"`
	MeasObjectEutra MeasObjectEutra `yaml:"meas_object_eutra"`
}

type ReportConfigToAddMod struct {
	ReportConfigId    uint8             `yaml:"report_config_id"`
	ReportConfigEutra ReportConfigEutra `yaml:"report_config_eutra"`
}

type MeasIdToAddMod struct {
	MeasId         uint8 `yaml:"meas_id"`
	MeasObjectId   uint8 `yaml:"meas_object_id"`
	ReportConfigId uint8 `yaml:"report_config_id"`
}

type QuantityConfig struct {
	FilterCoefficientRsrp uint8 `yaml:"filter_coefficient_rsrp"`
	FilterCoefficientRsrq uint8 `yaml:"filter_coefficient_rsrq"`
}

type MeasConfig struct {
	MeasObjectToRemoveList   []uint8                `yaml:"meas_object_to_remove_list,omitempty"`
	MeasObjectToAddModList   []MeasObjectToAddMod   `yaml:"meas_object_to_add_mod_list,omitempty"`
	ReportConfigToRemoveList []uint8                `yaml:"report_config_to_remove_list,omitempty"`
	ReportConfigToAddModList []ReportConfigToAddMod `yaml:"report_config_to_add_mod_list,omitempty"`
	MeasIdToRemoveList       []uint8                `yaml:"meas_id_to_remove_list,omitempty"`
	MeasIdToAddModList       []MeasIdToAddMod       `yaml:"meas_id_to_add_mod_list,omitempty"`
	QuantityConfig           *QuantityConfig        `yaml:"quantity_config,omitempty"`
}

func (m *MeasConfig) IsEmpty() bool {
	return m == nil || (len(m.MeasObjectToRemoveList) == 0 && len(m.MeasObjectToAddModList) == 0 &&
		len(m.ReportConfigToRemoveList) == 0 && len(m.ReportConfigToAddModList) == 0 &&
		len(m.MeasIdToRemoveList) == 0 && len(m.MeasIdToAddModList) == 0 && m.QuantityConfig == nil)
}

// Clone returns a deep copy so that a sent configuration is not changed by
// later additions on the sender side.
func (m *MeasConfig) Clone() *MeasConfig {
	if m == nil {
		return nil
	}
	out := &MeasConfig{
		MeasObjectToRemoveList:   append([]uint8(nil), m.MeasObjectToRemoveList...),
		MeasObjectToAddModList:   append([]MeasObjectToAddMod(nil), m.MeasObjectToAddModList...),
		ReportConfigToRemoveList: append([]uint8(nil), m.ReportConfigToRemoveList...),
		ReportConfigToAddModList: append([]ReportConfigToAddMod(nil), m.ReportConfigToAddModList...),
		MeasIdToRemoveList:       append([]uint8(nil), m.MeasIdToRemoveList...),
		MeasIdToAddModList:       append([]MeasIdToAddMod(nil), m.MeasIdToAddModList...),
	}
	if m.QuantityConfig != nil {
		q := *m.QuantityConfig
		out.QuantityConfig = &q
	}
	return out
}

type MeasResultEutra struct {
	PhysCellId uint16 `yaml:"phys_cell_id"`
	RsrpResult *uint8 `yaml:"rsrp_result,omitempty"`
	RsrqResult *uint8 `yaml:"rsrq_result,omitempty"`
}

type MeasResults struct {
	MeasId              uint8             `yaml:"meas_id"`
	RsrpResult          uint8             `yaml:"rsrp_result"`
	RsrqResult          uint8             `yaml:"rsrq_result"`
	MeasResultListEutra []MeasResultEutra `yaml:"meas_result_list_eutra,omitempty"`
}

// RsrpToRange maps an RSRP in dBm onto the 0..97 report range.
func RsrpToRange(dbm float64) uint8 {
	r := dbm + 141
	if r < 0 {
		return 0
	}
	if r > 97 {
		return 97
	}
	return uint8(r)
}

// RangeToRsrp is the lower bound in dBm of an RSRP report range value.
func RangeToRsrp(r uint8) float64 {
	return float64(r) - 141
}

// RsrqToRange maps an RSRQ in dB onto the 0..34 report range.
func RsrqToRange(db float64) uint8 {
	r := 2 * (db + 20)
	if r < 0 {
		return 0
	}
	if r > 34 {
		return 34
	}
	return uint8(r)
}

// RangeToRsrq is the lower bound in dB of an RSRQ report range value.
func RangeToRsrq(r uint8) float64 {
	return float64(r)/2 - 20
}
