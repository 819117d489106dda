package sap

import (
	"lte_rrc/internal/bearer"
	"lte_rrc/internal/rrcmsg"
)

// UeRrcTransport carries RRC messages from a UE to its serving cell.
type UeRrcTransport interface {
	SendRrcConnectionRequest(rnti uint16, msg rrcmsg.RrcConnectionRequest)
	SendRrcConnectionSetupCompleted(rnti uint16, msg rrcmsg.RrcConnectionSetupCompleted)
	SendRrcConnectionReconfigurationCompleted(rnti uint16, msg rrcmsg.RrcConnectionReconfigurationCompleted)
	SendRrcConnectionReestablishmentRequest(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentRequest)
	SendRrcConnectionReestablishmentComplete(rnti uint16, msg rrcmsg.RrcConnectionReestablishmentComplete)
	SendMeasurementReport(rnti uint16, msg rrcmsg.MeasurementReport)
}

type UeLcConfig struct {
	Lcid                 uint8
	LogicalChannelConfig bearer.LogicalChannelConfig
}

// UeMac is the terminal MAC as seen by the RRC.
type UeMac interface {
	ConfigureRach(cfg rrcmsg.RachConfigCommon)
	StartContentionBasedRandomAccess()
	StartNonContentionBasedRandomAccess(rnti uint16, preambleId uint8, prachMask uint8)
	AddLc(lc UeLcConfig)
	RemoveLc(lcid uint8)
	Reset()
}

// UePhy is the terminal physical layer as seen by the RRC.
type UePhy interface {
	Reset()
	StartCellSearch(dlEarfcn uint32)
	SynchronizeWithEnb(cellId uint16, dlEarfcn uint32)
	SetDlBandwidth(dlBandwidth uint8)
	ConfigureUplink(ulEarfcn uint32, ulBandwidth uint8)
	SetRnti(rnti uint16)
	SetTransmissionMode(txMode uint8)
	SetSrsConfigurationIndex(srsCi uint16)
	SetPa(pa uint8)
}

// UeNas is the upper layer notified of connection outcomes.
type UeNas interface {
	NotifyConnectionSuccessful()
	NotifyConnectionFailed()
	NotifyConnectionReleased()
}

// CellMeasurement is one PHY measurement sample of a cell.
type CellMeasurement struct {
	CellId uint16
	Rsrp   float64
	Rsrq   float64
}

// UeMeasurement evaluates the configured report triggers. The core only
// reacts to its triggers; a triggered report comes back through the
// connection manager's ReportTriggered.
type UeMeasurement interface {
	ApplyMeasConfig(cfg rrcmsg.MeasConfig)
	ResetReports()
	Evaluate(samples []CellMeasurement)
}
