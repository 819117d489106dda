package x2

import (
	"net/netip"

	"lte_rrc/internal/bearer"
)

type Cause int

const (
	CAUSE_HANDOVER_DESIRABLE_FOR_RADIO_REASON Cause = iota
	CAUSE_NO_RADIO_RESOURCES_AVAILABLE
	CAUSE_UNSPECIFIED
)

func causeToString(c Cause) string {
	switch c {
	case CAUSE_HANDOVER_DESIRABLE_FOR_RADIO_REASON:
		return "HANDOVER_DESIRABLE_FOR_RADIO_REASON"
	case CAUSE_NO_RADIO_RESOURCES_AVAILABLE:
		return "NO_RADIO_RESOURCES_AVAILABLE"
	case CAUSE_UNSPECIFIED:
		return "UNSPECIFIED"
	default:
		return "UNKNOWN"
	}
}

func (c Cause) String() string {
	return causeToString(c)
}

type ErabToBeSetupItem struct {
	ErabId                 uint8
	ErabLevelQosParameters bearer.EpsBearer
	DlForwarding           bool
	TransportLayerAddress  netip.Addr
	GtpTeid                uint32
}

type ErabAdmittedItem struct {
	ErabId    uint8
	UlGtpTeid uint32
	DlGtpTeid uint32
}

type ErabNotAdmittedItem struct {
	ErabId uint8
	Cause  Cause
}

type HandoverRequest struct {
	OldEnbUeX2apId                uint16
	Cause                         Cause
	SourceCellId                  uint16
	TargetCellId                  uint16
	MmeUeS1apId                   uint64
	UeAggregateMaxBitRateDownlink uint64
	UeAggregateMaxBitRateUplink   uint64
	Bearers                       []ErabToBeSetupItem
	RrcContext                    []byte
}

type HandoverRequestAck struct {
	OldEnbUeX2apId     uint16
	NewEnbUeX2apId     uint16
	SourceCellId       uint16
	TargetCellId       uint16
	AdmittedBearers    []ErabAdmittedItem
	NotAdmittedBearers []ErabNotAdmittedItem
	RrcContext         []byte
}

type HandoverPreparationFailure struct {
	OldEnbUeX2apId         uint16
	SourceCellId           uint16
	TargetCellId           uint16
	Cause                  Cause
	CriticalityDiagnostics uint16
}

// ErabsSubjectToStatusTransferItem carries the PDCP sequence state of one
// acknowledged-mode bearer.
type ErabsSubjectToStatusTransferItem struct {
	ErabId   uint8
	UlPdcpSn uint16
	UlHfn    uint32
	DlPdcpSn uint16
	DlHfn    uint32
}

type SnStatusTransfer struct {
	OldEnbUeX2apId                   uint16
	NewEnbUeX2apId                   uint16
	SourceCellId                     uint16
	TargetCellId                     uint16
	ErabsSubjectToStatusTransferList []ErabsSubjectToStatusTransferItem
}

type UeContextRelease struct {
	OldEnbUeX2apId uint16
	NewEnbUeX2apId uint16
	SourceCellId   uint16
	TargetCellId   uint16
}
