package x2

import (
	"errors"
	"fmt"
	"time"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/sim"
)

var (
	ErrUnknownCell  = errors.New("unknown x2 cell")
	ErrNoX2Link     = errors.New("no x2 interface between cells")
	ErrCellAttached = errors.New("cell already attached to x2")
)

// Endpoint is the receiving side of the X2 procedures of one cell.
type Endpoint interface {
	RecvHandoverRequest(msg HandoverRequest)
	RecvHandoverRequestAck(msg HandoverRequestAck)
	RecvHandoverPreparationFailure(msg HandoverPreparationFailure)
	RecvSnStatusTransfer(msg SnStatusTransfer)
	RecvUeContextRelease(msg UeContextRelease)
}

// Sender is the sending side used by a cell controller.
type Sender interface {
	HasPeer(local, remote uint16) bool
	SendHandoverRequest(msg HandoverRequest) error
	SendHandoverRequestAck(msg HandoverRequestAck) error
	SendHandoverPreparationFailure(msg HandoverPreparationFailure) error
	SendSnStatusTransfer(msg SnStatusTransfer) error
	SendUeContextRelease(msg UeContextRelease) error
}

// Network delivers X2 messages between attached cells after a fixed delay.
type Network struct {
	*logger.Logger
	sched     *sim.Scheduler
	delay     time.Duration
	endpoints map[uint16]Endpoint
	links     map[uint16]map[uint16]bool
}

func NewNetwork(sched *sim.Scheduler, delay time.Duration, log *logger.Logger) *Network {
	return &Network{
		Logger:    log.With(map[string]string{"mod": "X2"}),
		sched:     sched,
		delay:     delay,
		endpoints: make(map[uint16]Endpoint),
		links:     make(map[uint16]map[uint16]bool),
	}
}

func (n *Network) Attach(cellId uint16, ep Endpoint) error {
	if _, ok := n.endpoints[cellId]; ok {
		return fmt.Errorf("cell %d: %w", cellId, ErrCellAttached)
	}
	n.endpoints[cellId] = ep
	n.links[cellId] = make(map[uint16]bool)
	return nil
}

// Connect sets up the X2 interface between two attached cells.
func (n *Network) Connect(a, b uint16) error {
	if _, ok := n.endpoints[a]; !ok {
		return fmt.Errorf("cell %d: %w", a, ErrUnknownCell)
	}
	if _, ok := n.endpoints[b]; !ok {
		return fmt.Errorf("cell %d: %w", b, ErrUnknownCell)
	}
	n.links[a][b] = true
	n.links[b][a] = true
	n.Info("X2 interface up between cell %d and cell %d", a, b)
	return nil
}

func (n *Network) HasPeer(local, remote uint16) bool {
	return n.links[local][remote]
}

func (n *Network) route(from, to uint16, name string, deliver func(ep Endpoint)) error {
	ep, ok := n.endpoints[to]
	if !ok {
		return fmt.Errorf("%s to cell %d: %w", name, to, ErrUnknownCell)
	}
	if !n.HasPeer(from, to) {
		return fmt.Errorf("%s from cell %d to cell %d: %w", name, from, to, ErrNoX2Link)
	}
	n.Debug("Send %s: cell %d -> cell %d", name, from, to)
	n.sched.Schedule(n.delay, func() {
		deliver(ep)
	})
	return nil
}

func (n *Network) SendHandoverRequest(msg HandoverRequest) error {
	return n.route(msg.SourceCellId, msg.TargetCellId, "HandoverRequest", func(ep Endpoint) {
		ep.RecvHandoverRequest(msg)
	})
}

func (n *Network) SendHandoverRequestAck(msg HandoverRequestAck) error {
	return n.route(msg.TargetCellId, msg.SourceCellId, "HandoverRequestAck", func(ep Endpoint) {
		ep.RecvHandoverRequestAck(msg)
	})
}

func (n *Network) SendHandoverPreparationFailure(msg HandoverPreparationFailure) error {
	return n.route(msg.TargetCellId, msg.SourceCellId, "HandoverPreparationFailure", func(ep Endpoint) {
		ep.RecvHandoverPreparationFailure(msg)
	})
}

func (n *Network) SendSnStatusTransfer(msg SnStatusTransfer) error {
	return n.route(msg.SourceCellId, msg.TargetCellId, "SnStatusTransfer", func(ep Endpoint) {
		ep.RecvSnStatusTransfer(msg)
	})
}

func (n *Network) SendUeContextRelease(msg UeContextRelease) error {
	return n.route(msg.TargetCellId, msg.SourceCellId, "UeContextRelease", func(ep Endpoint) {
		ep.RecvUeContextRelease(msg)
	})
}
