package netsim

import (
	"fmt"
	"net/netip"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/sap"
)

// SGW_ADDRESS is the transport address handed out with every E-RAB.
var SGW_ADDRESS = netip.MustParseAddr("10.0.0.1")

// Session is where the core believes a subscriber is attached.
type Session struct {
	Imsi   uint64
	CellId uint16
	Rnti   uint16
	Erabs  []sap.ErabToBeSwitched
}

// Epc is the stub core network shared by every cell. It sets up the
// configured bearers of a new subscriber and answers path switches.
type Epc struct {
	*logger.Logger

	net          *Network
	nextTeid     uint32
	sessions     map[uint64]*Session
	pathSwitches int
	releases     int
}

func newEpc(n *Network, log *logger.Logger) *Epc {
	return &Epc{
		Logger:   log.With(map[string]string{"mod": "EPC"}),
		net:      n,
		nextTeid: 1,
		sessions: make(map[uint64]*Session),
	}
}

// link returns the S1 interface of one cell.
func (e *Epc) link(cellId uint16) sap.S1 {
	return &s1Link{epc: e, cellId: cellId}
}

func (e *Epc) Session(imsi uint64) (*Session, bool) {
	s, ok := e.sessions[imsi]
	return s, ok
}

func (e *Epc) PathSwitches() int {
	return e.pathSwitches
}

func (e *Epc) BearerReleases() int {
	return e.releases
}

func (e *Epc) initialUeMessage(cellId uint16, imsi uint64, rnti uint16) {
	e.Info("Initial UE message: imsi %d, cell %d, rnti %d", imsi, cellId, rnti)
	e.sessions[imsi] = &Session{Imsi: imsi, CellId: cellId, Rnti: rnti}

	t, ok := e.net.terminals[imsi]
	if !ok {
		e.Warn("No subscription for imsi %d", imsi)
		return
	}
	for _, b := range t.cfg.Bearers {
		req := sap.DataRadioBearerSetupRequest{
			Rnti: rnti,
			Bearer: bearer.EpsBearer{
				Qci: b.Qci,
				Gbr: bearer.GbrQosInfo{GbrDl: b.GbrDl, GbrUl: b.GbrUl},
			},
			GtpTeid:               e.nextTeid,
			TransportLayerAddress: SGW_ADDRESS,
		}
		e.nextTeid++
		e.net.sched.ScheduleNow(func() {
			cell := e.net.cells[cellId]
			if _, ok := cell.Ue(rnti); !ok {
				e.Debug("Bearer setup for imsi %d dropped: rnti %d gone", imsi, rnti)
				return
			}
			cell.DataRadioBearerSetupRequest(req)
		})
	}
}

func (e *Epc) pathSwitchRequest(req sap.PathSwitchRequest) {
	e.Info("Path switch request: imsi %d, cell %d -> %d", req.MmeUeS1Id, req.SourceCellId, req.TargetCellId)
	e.net.sched.Schedule(e.net.cfg.Rrc.PathSwitchDelay, func() {
		cell, ok := e.net.cells[req.TargetCellId]
		if !ok {
			e.Error("Path switch to unknown cell %d", req.TargetCellId)
			return
		}
		if _, ok := cell.Ue(req.EnbUeS1Id); !ok {
			e.Warn("Path switch of imsi %d dropped: rnti %d gone", req.MmeUeS1Id, req.EnbUeS1Id)
			return
		}
		e.pathSwitches++
		e.sessions[req.MmeUeS1Id] = &Session{
			Imsi:   req.MmeUeS1Id,
			CellId: req.TargetCellId,
			Rnti:   req.EnbUeS1Id,
			Erabs:  req.ErabsToBeSwitchedInDl,
		}
		e.Debug("Session moved: %s", e.sessions[req.MmeUeS1Id])
		cell.PathSwitchRequestAcknowledge(sap.PathSwitchRequestAcknowledge{
			Rnti:      req.EnbUeS1Id,
			MmeUeS1Id: req.MmeUeS1Id,
		})
	})
}

// s1Link tags the S1 primitives of one cell with its identity.
type s1Link struct {
	epc    *Epc
	cellId uint16
}

func (l *s1Link) InitialUeMessage(imsi uint64, rnti uint16) {
	l.epc.initialUeMessage(l.cellId, imsi, rnti)
}

func (l *s1Link) PathSwitchRequest(req sap.PathSwitchRequest) {
	l.epc.pathSwitchRequest(req)
}

func (l *s1Link) UeContextRelease(rnti uint16) {
	l.epc.Debug("UE context release: cell %d, rnti %d", l.cellId, rnti)
}

func (l *s1Link) ReleaseIndication(imsi uint64, rnti uint16, bearerId uint8) {
	l.epc.releases++
	l.epc.Info("Bearer %d of imsi %d released by cell %d", bearerId, imsi, l.cellId)
}

func (s *Session) String() string {
	return fmt.Sprintf("imsi %d at cell %d rnti %d", s.Imsi, s.CellId, s.Rnti)
}
