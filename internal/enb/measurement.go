package enb

import (
	"fmt"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
)

const (
	INTRA_FREQUENCY_MEAS_OBJECT_ID uint8 = 1
	DEFAULT_FILTER_COEFFICIENT     uint8 = 4
	// DEFAULT_ANR_THRESHOLD is an RSRQ range value.
	DEFAULT_ANR_THRESHOLD uint8 = 0
)

type MeasPurpose int

const (
	MEAS_PURPOSE_HANDOVER MeasPurpose = iota
	MEAS_PURPOSE_ANR
	MEAS_PURPOSE_FFR
)

func (p MeasPurpose) String() string {
	switch p {
	case MEAS_PURPOSE_HANDOVER:
		return "HANDOVER"
	case MEAS_PURPOSE_ANR:
		return "ANR"
	case MEAS_PURPOSE_FFR:
		return "FFR"
	default:
		return "UNKNOWN"
	}
}

type measConsumer struct {
	purpose  MeasPurpose
	consumer sap.MeasurementConsumer
}

// AddUeMeasReportConfig adds a report configuration and its meas id to the
// configuration sent to every UE. Reports for the returned meas id go to
// consumer.
func (c *CellController) AddUeMeasReportConfig(purpose MeasPurpose, cfg rrcmsg.ReportConfigEutra,
	consumer sap.MeasurementConsumer) (uint8, error) {
	if c.sched.Now() != 0 || c.configured {
		return 0, ErrMeasConfigFrozen
	}
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("%s report config: %w", purpose, err)
	}
	id := uint8(len(c.measConfig.MeasIdToAddModList) + 1)
	c.measConfig.ReportConfigToAddModList = append(c.measConfig.ReportConfigToAddModList,
		rrcmsg.ReportConfigToAddMod{ReportConfigId: id, ReportConfigEutra: cfg})
	c.measConfig.MeasIdToAddModList = append(c.measConfig.MeasIdToAddModList,
		rrcmsg.MeasIdToAddMod{MeasId: id, MeasObjectId: INTRA_FREQUENCY_MEAS_OBJECT_ID, ReportConfigId: id})
	c.measConsumers[id] = measConsumer{purpose: purpose, consumer: consumer}
	c.Info("Meas id %d added for %s, event %s", id, purpose, cfg.EventId)
	return id, nil
}

// MeasIds returns the meas ids registered for purpose.
func (c *CellController) MeasIds(purpose MeasPurpose) []uint8 {
	var out []uint8
	for _, m := range c.measConfig.MeasIdToAddModList {
		if mc, ok := c.measConsumers[m.MeasId]; ok && mc.purpose == purpose {
			out = append(out, m.MeasId)
		}
	}
	return out
}

func (c *CellController) ueMeasConfig() *rrcmsg.MeasConfig {
	return c.measConfig.Clone()
}

func (c *CellController) RecvMeasurementReport(rnti uint16, msg rrcmsg.MeasurementReport) {
	c.mustUe(rnti, "RecvMeasurementReport")
	id := msg.MeasResults.MeasId
	mc, ok := c.measConsumers[id]
	if !ok {
		c.Warn("Measurement report from %d with unregistered meas id %d", rnti, id)
		return
	}
	c.Debug("Measurement report from %d, meas id %d for %s", rnti, id, mc.purpose)
	mc.consumer.ReportUeMeas(rnti, msg.MeasResults)
}

// NeighbourRelation is one entry of the neighbour relation table.
type NeighbourRelation struct {
	CellId              uint16
	NoRemove            bool
	NoHo                bool
	NoX2                bool
	DetectedAsNeighbour bool
}

// Anr keeps the neighbour relation table of a cell. Configured X2
// neighbours are permanent; others are learned from UE reports.
type Anr struct {
	*logger.Logger
	threshold uint8
	measId    uint8
	relations map[uint16]*NeighbourRelation
}

func NewAnr(c *CellController, threshold uint8) (*Anr, error) {
	a := &Anr{
		Logger:    c.Logger.With(map[string]string{"mod": "ANR"}),
		threshold: threshold,
		relations: make(map[uint16]*NeighbourRelation),
	}
	id, err := c.AddUeMeasReportConfig(MEAS_PURPOSE_ANR, rrcmsg.ReportConfigEutra{
		TriggerType:     rrcmsg.TRIGGER_EVENT,
		EventId:         rrcmsg.EVENT_A4,
		Threshold1:      rrcmsg.ThresholdEutra{Choice: rrcmsg.THRESHOLD_RSRQ, Range: threshold},
		TriggerQuantity: rrcmsg.TRIGGER_QUANTITY_RSRQ,
		ReportQuantity:  rrcmsg.REPORT_QUANTITY_BOTH,
		MaxReportCells:  8,
		ReportInterval:  480,
		ReportAmount:    1,
	}, a)
	if err != nil {
		return nil, err
	}
	a.measId = id
	return a, nil
}

func (a *Anr) MeasId() uint8 {
	return a.measId
}

// AddNeighbourRelation records a configured neighbour that is never removed.
func (a *Anr) AddNeighbourRelation(cellId uint16) {
	a.relations[cellId] = &NeighbourRelation{CellId: cellId, NoRemove: true}
}

// RemoveNeighbourRelation drops a learned neighbour. Configured ones stay.
func (a *Anr) RemoveNeighbourRelation(cellId uint16) bool {
	rel, ok := a.relations[cellId]
	if !ok || rel.NoRemove {
		return false
	}
	delete(a.relations, cellId)
	return true
}

func (a *Anr) Relation(cellId uint16) (NeighbourRelation, bool) {
	rel, ok := a.relations[cellId]
	if !ok {
		return NeighbourRelation{}, false
	}
	return *rel, true
}

func (a *Anr) SetNoHo(cellId uint16, noHo bool) {
	if rel, ok := a.relations[cellId]; ok {
		rel.NoHo = noHo
	}
}

func (a *Anr) SetNoX2(cellId uint16, noX2 bool) {
	if rel, ok := a.relations[cellId]; ok {
		rel.NoX2 = noX2
	}
}

// ReportUeMeas learns every reported neighbour whose RSRQ reaches the
// threshold.
func (a *Anr) ReportUeMeas(rnti uint16, results rrcmsg.MeasResults) {
	if results.MeasId != a.measId {
		a.Warn("Ignoring meas id %d", results.MeasId)
		return
	}
	for _, n := range results.MeasResultListEutra {
		if n.RsrqResult == nil || *n.RsrqResult < a.threshold {
			continue
		}
		if rel, ok := a.relations[n.PhysCellId]; ok {
			rel.DetectedAsNeighbour = true
			continue
		}
		a.Info("Neighbour cell %d detected by UE %d", n.PhysCellId, rnti)
		a.relations[n.PhysCellId] = &NeighbourRelation{CellId: n.PhysCellId, DetectedAsNeighbour: true}
	}
}
