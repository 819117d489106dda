package enb

import (
	"math"
	"time"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
)

// handoverTrigger is the part of a cell the handover algorithm drives.
type handoverTrigger interface {
	CellId() uint16
	TriggerHandover(rnti uint16, targetCellId uint16) error
}

// A3RsrpHandoverAlgorithm hands a UE over to the strongest neighbour once
// it reports event A3 on RSRP.
type A3RsrpHandoverAlgorithm struct {
	*logger.Logger
	cell          handoverTrigger
	hysteresis    uint8
	timeToTrigger uint16
	measId        uint8
}

func NewA3RsrpHandoverAlgorithm(c *CellController, hysteresisDb float64, ttt time.Duration) (*A3RsrpHandoverAlgorithm, error) {
	a := &A3RsrpHandoverAlgorithm{
		Logger:        c.Logger.With(map[string]string{"mod": "A3HO"}),
		cell:          c,
		hysteresis:    uint8(math.Round(hysteresisDb * 2)),
		timeToTrigger: uint16(ttt / time.Millisecond),
	}
	id, err := c.AddUeMeasReportConfig(MEAS_PURPOSE_HANDOVER, a.reportConfig(), a)
	if err != nil {
		return nil, err
	}
	a.measId = id
	return a, nil
}

func (a *A3RsrpHandoverAlgorithm) reportConfig() rrcmsg.ReportConfigEutra {
	return rrcmsg.ReportConfigEutra{
		TriggerType:     rrcmsg.TRIGGER_EVENT,
		EventId:         rrcmsg.EVENT_A3,
		A3Offset:        0,
		Hysteresis:      a.hysteresis,
		TimeToTrigger:   a.timeToTrigger,
		TriggerQuantity: rrcmsg.TRIGGER_QUANTITY_RSRP,
		ReportQuantity:  rrcmsg.REPORT_QUANTITY_BOTH,
		MaxReportCells:  8,
		ReportInterval:  480,
		ReportAmount:    1,
	}
}

func (a *A3RsrpHandoverAlgorithm) MeasId() uint8 {
	return a.measId
}

func (a *A3RsrpHandoverAlgorithm) ReportUeMeas(rnti uint16, results rrcmsg.MeasResults) {
	if results.MeasId != a.measId {
		a.Warn("Ignoring meas id %d", results.MeasId)
		return
	}
	var best uint16
	bestRsrp := results.RsrpResult
	for _, n := range results.MeasResultListEutra {
		if n.RsrpResult == nil || n.PhysCellId == a.cell.CellId() {
			continue
		}
		if *n.RsrpResult > bestRsrp {
			best, bestRsrp = n.PhysCellId, *n.RsrpResult
		}
	}
	if best == 0 {
		a.Debug("No neighbour of UE %d beats serving RSRP %d", rnti, results.RsrpResult)
		return
	}
	a.Info("UE %d: cell %d (RSRP %d) beats serving (RSRP %d)", rnti, best, bestRsrp, results.RsrpResult)
	if err := a.cell.TriggerHandover(rnti, best); err != nil {
		a.Warn("Handover of UE %d to cell %d not triggered: %v", rnti, best, err)
	}
}
