package ue

import (
	"math"
	"sort"
	"time"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
	"lte_rrc/internal/sim"
)

// UE_MEASUREMENT_REPORT_DELAY separates a trigger from its first report.
const UE_MEASUREMENT_REPORT_DELAY = time.Microsecond

// ReportTarget is the connection manager side of the measurement engine.
type ReportTarget interface {
	CellId() uint16
	ReportTriggered(measId uint8, results rrcmsg.MeasResults)
}

type measValues struct {
	rsrp float64
	rsrq float64
}

// measReport is the reporting entry of one meas id: the cells that
// satisfied the entering condition and the periodic report timer.
type measReport struct {
	cells map[uint16]bool
	sent  int
	timer sim.EventId
}

type triggerKey struct {
	measId uint8
	cellId uint16
}

// MeasurementEngine filters PHY samples and evaluates events A1 to A5 for
// every configured meas id, honouring hysteresis and time to trigger.
type MeasurementEngine struct {
	*logger.Logger
	sched  *sim.Scheduler
	target ReportTarget

	objects  map[uint8]rrcmsg.MeasObjectEutra
	configs  map[uint8]rrcmsg.ReportConfigEutra
	measIds  map[uint8]rrcmsg.MeasIdToAddMod
	quantity rrcmsg.QuantityConfig

	stored   map[uint16]measValues
	reports  map[uint8]*measReport
	entering map[triggerKey]sim.EventId
	leaving  map[triggerKey]sim.EventId
}

var _ sap.UeMeasurement = (*MeasurementEngine)(nil)

func NewMeasurementEngine(sched *sim.Scheduler, target ReportTarget, log *logger.Logger) *MeasurementEngine {
	return &MeasurementEngine{
		Logger:   log.With(map[string]string{"mod": "MEAS"}),
		sched:    sched,
		target:   target,
		objects:  make(map[uint8]rrcmsg.MeasObjectEutra),
		configs:  make(map[uint8]rrcmsg.ReportConfigEutra),
		measIds:  make(map[uint8]rrcmsg.MeasIdToAddMod),
		stored:   make(map[uint16]measValues),
		reports:  make(map[uint8]*measReport),
		entering: make(map[triggerKey]sim.EventId),
		leaving:  make(map[triggerKey]sim.EventId),
	}
}

// ApplyMeasConfig merges a received configuration. Reporting entries of
// every removed or modified meas id are dropped.
func (m *MeasurementEngine) ApplyMeasConfig(cfg rrcmsg.MeasConfig) {
	for _, id := range cfg.MeasObjectToRemoveList {
		delete(m.objects, id)
		for measId, mid := range m.measIds {
			if mid.MeasObjectId == id {
				m.removeMeasId(measId)
			}
		}
	}
	for _, o := range cfg.MeasObjectToAddModList {
		m.objects[o.MeasObjectId] = o.MeasObjectEutra
	}
	for _, id := range cfg.ReportConfigToRemoveList {
		delete(m.configs, id)
		for measId, mid := range m.measIds {
			if mid.ReportConfigId == id {
				m.removeMeasId(measId)
			}
		}
	}
	for _, r := range cfg.ReportConfigToAddModList {
		m.configs[r.ReportConfigId] = r.ReportConfigEutra
		for measId, mid := range m.measIds {
			if mid.ReportConfigId == r.ReportConfigId {
				m.clearReport(measId)
			}
		}
	}
	for _, id := range cfg.MeasIdToRemoveList {
		m.removeMeasId(id)
	}
	for _, mid := range cfg.MeasIdToAddModList {
		m.clearReport(mid.MeasId)
		m.measIds[mid.MeasId] = mid
	}
	if cfg.QuantityConfig != nil {
		m.quantity = *cfg.QuantityConfig
	}
	m.Debug("Meas config applied: %d meas ids", len(m.measIds))
}

func (m *MeasurementEngine) removeMeasId(measId uint8) {
	m.clearReport(measId)
	delete(m.measIds, measId)
}

// ResetReports drops every reporting entry and pending trigger; the
// configuration is kept.
func (m *MeasurementEngine) ResetReports() {
	for measId := range m.measIds {
		m.clearReport(measId)
	}
}

func (m *MeasurementEngine) clearReport(measId uint8) {
	if r, ok := m.reports[measId]; ok {
		m.sched.Cancel(r.timer)
		delete(m.reports, measId)
	}
	for k, ev := range m.entering {
		if k.measId == measId {
			m.sched.Cancel(ev)
			delete(m.entering, k)
		}
	}
	for k, ev := range m.leaving {
		if k.measId == measId {
			m.sched.Cancel(ev)
			delete(m.leaving, k)
		}
	}
}

// MeasIds returns the configured meas ids, sorted.
func (m *MeasurementEngine) MeasIds() []uint8 {
	ids := make([]uint8, 0, len(m.measIds))
	for id := range m.measIds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TriggeredCells returns the cells currently in the reporting entry of measId.
func (m *MeasurementEngine) TriggeredCells(measId uint8) []uint16 {
	r, ok := m.reports[measId]
	if !ok {
		return nil
	}
	return sortedCells(r.cells)
}

// Evaluate stores the layer 3 filtered samples and runs the report
// triggering of every meas id.
func (m *MeasurementEngine) Evaluate(samples []sap.CellMeasurement) {
	for _, s := range samples {
		m.save(s)
	}
	if m.target == nil {
		return
	}
	for _, measId := range m.MeasIds() {
		m.evaluateMeasId(measId)
	}
}

func filterFactor(k uint8) float64 {
	return math.Pow(0.5, float64(k)/4)
}

func (m *MeasurementEngine) save(s sap.CellMeasurement) {
	prev, ok := m.stored[s.CellId]
	if !ok {
		m.stored[s.CellId] = measValues{rsrp: s.Rsrp, rsrq: s.Rsrq}
		return
	}
	ap := filterFactor(m.quantity.FilterCoefficientRsrp)
	aq := filterFactor(m.quantity.FilterCoefficientRsrq)
	m.stored[s.CellId] = measValues{
		rsrp: (1-ap)*prev.rsrp + ap*s.Rsrp,
		rsrq: (1-aq)*prev.rsrq + aq*s.Rsrq,
	}
}

func quantity(v measValues, q rrcmsg.TriggerQuantity) float64 {
	if q == rrcmsg.TRIGGER_QUANTITY_RSRQ {
		return v.rsrq
	}
	return v.rsrp
}

func threshold(t rrcmsg.ThresholdEutra) float64 {
	if t.Choice == rrcmsg.THRESHOLD_RSRQ {
		return rrcmsg.RangeToRsrq(t.Range)
	}
	return rrcmsg.RangeToRsrp(t.Range)
}

func (m *MeasurementEngine) evaluateMeasId(measId uint8) {
	mid := m.measIds[measId]
	cfg, ok := m.configs[mid.ReportConfigId]
	if !ok || cfg.TriggerType != rrcmsg.TRIGGER_EVENT {
		return
	}
	if _, ok := m.objects[mid.MeasObjectId]; !ok {
		return
	}
	serving := m.target.CellId()
	sv, ok := m.stored[serving]
	if !ok {
		return
	}

	hys := float64(cfg.Hysteresis) / 2
	off := float64(cfg.A3Offset) / 2
	ms := quantity(sv, cfg.TriggerQuantity)
	th1 := threshold(cfg.Threshold1)
	th2 := threshold(cfg.Threshold2)

	var enter, leave func(cellId uint16) bool
	servingOnly := false
	switch cfg.EventId {
	case rrcmsg.EVENT_A1:
		servingOnly = true
		enter = func(uint16) bool { return ms-hys > th1 }
		leave = func(uint16) bool { return ms+hys < th1 }
	case rrcmsg.EVENT_A2:
		servingOnly = true
		enter = func(uint16) bool { return ms+hys < th1 }
		leave = func(uint16) bool { return ms-hys > th1 }
	case rrcmsg.EVENT_A3:
		enter = func(c uint16) bool { return quantity(m.stored[c], cfg.TriggerQuantity)-hys > ms+off }
		leave = func(c uint16) bool { return quantity(m.stored[c], cfg.TriggerQuantity)+hys < ms+off }
	case rrcmsg.EVENT_A4:
		enter = func(c uint16) bool { return quantity(m.stored[c], cfg.TriggerQuantity)-hys > th1 }
		leave = func(c uint16) bool { return quantity(m.stored[c], cfg.TriggerQuantity)+hys < th1 }
	case rrcmsg.EVENT_A5:
		enter = func(c uint16) bool {
			return ms+hys < th1 && quantity(m.stored[c], cfg.TriggerQuantity)-hys > th2
		}
		leave = func(c uint16) bool {
			return ms-hys > th1 || quantity(m.stored[c], cfg.TriggerQuantity)+hys < th2
		}
	default:
		m.Warn("Meas id %d: unsupported event %s", measId, cfg.EventId)
		return
	}

	cells := []uint16{serving}
	if !servingOnly {
		cells = cells[:0]
		for cellId := range m.stored {
			if cellId != serving {
				cells = append(cells, cellId)
			}
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })
	}

	report := m.reports[measId]
	for _, cellId := range cells {
		key := triggerKey{measId: measId, cellId: cellId}
		triggered := report != nil && report.cells[cellId]
		if !triggered {
			if enter(cellId) {
				m.scheduleEntering(key, cfg)
			} else {
				m.cancelTrigger(m.entering, key)
			}
			continue
		}
		if leave(cellId) {
			m.scheduleLeaving(key, cfg)
		} else {
			m.cancelTrigger(m.leaving, key)
		}
	}
}

func (m *MeasurementEngine) cancelTrigger(pending map[triggerKey]sim.EventId, key triggerKey) {
	if ev, ok := pending[key]; ok {
		m.sched.Cancel(ev)
		delete(pending, key)
	}
}

func (m *MeasurementEngine) scheduleEntering(key triggerKey, cfg rrcmsg.ReportConfigEutra) {
	if _, ok := m.entering[key]; ok {
		return
	}
	if cfg.TimeToTrigger == 0 {
		m.addTriggeredCell(key)
		return
	}
	m.entering[key] = m.sched.Schedule(time.Duration(cfg.TimeToTrigger)*time.Millisecond, func() {
		delete(m.entering, key)
		m.addTriggeredCell(key)
	})
}

func (m *MeasurementEngine) scheduleLeaving(key triggerKey, cfg rrcmsg.ReportConfigEutra) {
	if _, ok := m.leaving[key]; ok {
		return
	}
	if cfg.TimeToTrigger == 0 {
		m.removeTriggeredCell(key, cfg)
		return
	}
	m.leaving[key] = m.sched.Schedule(time.Duration(cfg.TimeToTrigger)*time.Millisecond, func() {
		delete(m.leaving, key)
		m.removeTriggeredCell(key, cfg)
	})
}

func (m *MeasurementEngine) addTriggeredCell(key triggerKey) {
	r, ok := m.reports[key.measId]
	if !ok {
		r = &measReport{cells: make(map[uint16]bool)}
		m.reports[key.measId] = r
	}
	r.cells[key.cellId] = true
	m.Debug("Meas id %d: cell %d entered", key.measId, key.cellId)
	if !m.sched.IsPending(r.timer) {
		r.sent = 0
		r.timer = m.sched.Schedule(UE_MEASUREMENT_REPORT_DELAY, func() { m.sendReport(key.measId) })
	}
}

func (m *MeasurementEngine) removeTriggeredCell(key triggerKey, cfg rrcmsg.ReportConfigEutra) {
	r, ok := m.reports[key.measId]
	if !ok {
		return
	}
	delete(r.cells, key.cellId)
	m.Debug("Meas id %d: cell %d left", key.measId, key.cellId)
	if cfg.EventId == rrcmsg.EVENT_A3 && cfg.ReportOnLeave {
		m.sendReport(key.measId)
	}
	if len(r.cells) == 0 {
		m.sched.Cancel(r.timer)
		delete(m.reports, key.measId)
	}
}

func (m *MeasurementEngine) sendReport(measId uint8) {
	r, ok := m.reports[measId]
	if !ok {
		return
	}
	cfg := m.configs[m.measIds[measId].ReportConfigId]
	serving := m.target.CellId()
	sv := m.stored[serving]
	results := rrcmsg.MeasResults{
		MeasId:     measId,
		RsrpResult: rrcmsg.RsrpToRange(sv.rsrp),
		RsrqResult: rrcmsg.RsrqToRange(sv.rsrq),
	}

	neighbours := make([]uint16, 0, len(r.cells))
	for _, cellId := range sortedCells(r.cells) {
		if cellId != serving {
			neighbours = append(neighbours, cellId)
		}
	}
	sort.SliceStable(neighbours, func(i, j int) bool {
		return quantity(m.stored[neighbours[i]], cfg.TriggerQuantity) >
			quantity(m.stored[neighbours[j]], cfg.TriggerQuantity)
	})
	if cfg.MaxReportCells > 0 && len(neighbours) > int(cfg.MaxReportCells) {
		neighbours = neighbours[:cfg.MaxReportCells]
	}
	for _, cellId := range neighbours {
		v := m.stored[cellId]
		res := rrcmsg.MeasResultEutra{PhysCellId: cellId}
		both := cfg.ReportQuantity == rrcmsg.REPORT_QUANTITY_BOTH
		if both || cfg.TriggerQuantity == rrcmsg.TRIGGER_QUANTITY_RSRP {
			rsrp := rrcmsg.RsrpToRange(v.rsrp)
			res.RsrpResult = &rsrp
		}
		if both || cfg.TriggerQuantity == rrcmsg.TRIGGER_QUANTITY_RSRQ {
			rsrq := rrcmsg.RsrqToRange(v.rsrq)
			res.RsrqResult = &rsrq
		}
		results.MeasResultListEutra = append(results.MeasResultListEutra, res)
	}

	r.sent++
	m.sched.Cancel(r.timer)
	if cfg.ReportAmount == 0 || r.sent < int(cfg.ReportAmount) {
		interval := time.Duration(cfg.ReportInterval) * time.Millisecond
		if interval > 0 {
			r.timer = m.sched.Schedule(interval, func() { m.sendReport(measId) })
		}
	}
	m.Info("Measurement report triggered for meas id %d with %d neighbours", measId, len(results.MeasResultListEutra))
	m.target.ReportTriggered(measId, results)
}

func sortedCells(cells map[uint16]bool) []uint16 {
	out := make([]uint16, 0, len(cells))
	for c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
