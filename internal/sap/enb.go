package sap

import (
	"net/netip"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/rrcmsg"
)

// LcInfo describes a logical channel handed to the eNodeB MAC.
type LcInfo struct {
	Rnti                 uint16
	Lcid                 uint8
	Bearer               bearer.EpsBearer
	IsGbr                bool
	LogicalChannelConfig bearer.LogicalChannelConfig
}

// NcRaPreamble is a dedicated preamble reserved for a handover.
type NcRaPreamble struct {
	PreambleId     uint8
	PrachMaskIndex uint8
}

// EnbMac is the eNodeB MAC as seen by the RRC.
type EnbMac interface {
	AddUe(rnti uint16)
	RemoveUe(rnti uint16)
	AddLc(lc LcInfo)
	ReleaseLc(rnti uint16, lcid uint8)
	UeUpdateConfig(rnti uint16, transmissionMode uint8)
	AllocateNcRaPreamble(rnti uint16) (NcRaPreamble, bool)
	RachConfig() rrcmsg.RachConfigCommon
}

// EnbPhy is the eNodeB physical layer as seen by the RRC.
type EnbPhy interface {
	AddUe(rnti uint16)
	RemoveUe(rnti uint16)
	SetTransmissionMode(rnti uint16, txMode uint8)
	SetSrsConfigurationIndex(rnti uint16, srsCi uint16)
	SetPa(rnti uint16, pa uint8)
	SetMasterInformationBlock(mib rrcmsg.MasterInformationBlock)
	SetSystemInformationBlockType1(sib1 rrcmsg.SystemInformationBlockType1)
}

type ErabToBeSwitched struct {
	ErabId                uint8
	TransportLayerAddress netip.Addr
	GtpTeid               uint32
}

type PathSwitchRequest struct {
	EnbUeS1Id             uint16
	MmeUeS1Id             uint64
	SourceCellId          uint16
	TargetCellId          uint16
	ErabsToBeSwitchedInDl []ErabToBeSwitched
}

type PathSwitchRequestAcknowledge struct {
	Rnti      uint16
	MmeUeS1Id uint64
}

type DataRadioBearerSetupRequest struct {
	Rnti                  uint16
	Bearer                bearer.EpsBearer
	BearerId              uint8
	GtpTeid               uint32
	TransportLayerAddress netip.Addr
}

// S1 is the core-network side of the eNodeB. Core to eNodeB primitives are
// methods of the cell controller.
type S1 interface {
	InitialUeMessage(imsi uint64, rnti uint16)
	PathSwitchRequest(req PathSwitchRequest)
	UeContextRelease(rnti uint16)
	ReleaseIndication(imsi uint64, rnti uint16, bearerId uint8)
}

// EnbRrcTransport carries RRC messages from the eNodeB to one UE.
type EnbRrcTransport interface {
	SendSystemInformation(cellId uint16, msg rrcmsg.SystemInformation)
	SendRrcConnectionSetup(rnti uint16, msg rrcmsg.RrcConnectionSetup)
	SendRrcConnectionReconfiguration(rnti uint16, msg rrcmsg.RrcConnectionReconfiguration)
	SendRrcConnectionReestablishment(rnti uint16, msg rrcmsg.RrcConnectionReestablishment)
	SendRrcConnectionReestablishmentReject(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentReject)
	SendRrcConnectionRelease(rnti uint16, msg rrcmsg.RrcConnectionRelease)
	SendRrcConnectionReject(rnti uint16, msg rrcmsg.RrcConnectionReject)
}

// MeasurementConsumer receives the reports of the meas ids it registered.
type MeasurementConsumer interface {
	ReportUeMeas(rnti uint16, results rrcmsg.MeasResults)
}
