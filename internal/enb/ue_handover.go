package enb

import (
	"fmt"

	"lte_rrc/internal/bearer"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/x2"
)

// UE aggregate maximum bit rates announced in a handover request.
const (
	UE_AMBR_DOWNLINK uint64 = 200000
	UE_AMBR_UPLINK   uint64 = 100000
)

// PrepareHandover sends a handover request for this UE to the target cell.
// The UE must be connected with no procedure running.
func (ctx *UeContext) PrepareHandover(targetCellId uint16) error {
	if _, ok := ctx.state.(ConnectedNormally); !ok {
		ctx.Panic("PrepareHandover: unexpected state %s", ctx.state)
	}

	info := rrcmsg.HandoverPreparationInfo{AsConfig: ctx.owner.sourceAsConfig()}
	info.AsConfig.SourceUeIdentity = ctx.rnti
	info.AsConfig.SourceRadioResourceConfig = ctx.BuildRadioResourceConfigDedicated()
	rrcContext, err := ctx.links.codec.EncodeHandoverPreparationInfo(info)
	if err != nil {
		return fmt.Errorf("encode handover preparation info: %w", err)
	}

	req := x2.HandoverRequest{
		OldEnbUeX2apId:                ctx.rnti,
		Cause:                         x2.CAUSE_HANDOVER_DESIRABLE_FOR_RADIO_REASON,
		SourceCellId:                  ctx.owner.CellId(),
		TargetCellId:                  targetCellId,
		MmeUeS1apId:                   ctx.imsi,
		UeAggregateMaxBitRateDownlink: UE_AMBR_DOWNLINK,
		UeAggregateMaxBitRateUplink:   UE_AMBR_UPLINK,
		RrcContext:                    rrcContext,
	}
	for _, drb := range ctx.bearers.Drbs() {
		req.Bearers = append(req.Bearers, x2.ErabToBeSetupItem{
			ErabId:                 drb.EpsBearerIdentity,
			ErabLevelQosParameters: drb.Bearer,
			DlForwarding:           false,
			TransportLayerAddress:  drb.TransportLayerAddress,
			GtpTeid:                drb.GtpTeid,
		})
	}
	if err := ctx.links.x2.SendHandoverRequest(req); err != nil {
		return fmt.Errorf("send handover request: %w", err)
	}
	ctx.Info("Handover request sent to cell %d", targetCellId)
	ctx.switchToState(HandoverPreparation{TargetCellId: targetCellId})
	return nil
}

// handoverCommand is the reconfiguration the source cell relays to the UE.
func (ctx *UeContext) handoverCommand(mobility rrcmsg.MobilityControlInfo) rrcmsg.RrcConnectionReconfiguration {
	msg := ctx.buildReconfiguration()
	msg.MobilityControlInfo = &mobility
	return msg
}

func (ctx *UeContext) RecvHandoverRequestAck(msg x2.HandoverRequestAck) {
	s, ok := ctx.state.(HandoverPreparation)
	if !ok {
		ctx.Panic("RecvHandoverRequestAck: unexpected state %s", ctx.state)
	}

	cmd, err := ctx.links.codec.DecodeHandoverCommand(msg.RrcContext)
	if err != nil {
		ctx.Error("Decode handover command from cell %d: %v", s.TargetCellId, err)
		ctx.owner.handoverFailed(ctx, "bad_handover_command")
		ctx.switchToState(ConnectedNormally{})
		return
	}
	ctx.links.rrc.SendRrcConnectionReconfiguration(ctx.rnti, cmd)
	ctx.switchToState(HandoverLeaving{TargetCellId: s.TargetCellId, TargetX2apId: msg.NewEnbUeX2apId})
	ctx.armTimer(TIMER_HANDOVER_LEAVING, ctx.owner.timersConfig().HandoverLeavingTimeout)
	ctx.owner.ueEvent(ctx, UE_EVENT_HANDOVER_START, s.TargetCellId)

	status := x2.SnStatusTransfer{
		OldEnbUeX2apId: msg.OldEnbUeX2apId,
		NewEnbUeX2apId: msg.NewEnbUeX2apId,
		SourceCellId:   msg.SourceCellId,
		TargetCellId:   msg.TargetCellId,
	}
	for _, drb := range ctx.bearers.Drbs() {
		if drb.RlcMode() != bearer.RLC_AM || drb.Pdcp == nil {
			continue
		}
		sn := drb.Pdcp.Status()
		status.ErabsSubjectToStatusTransferList = append(status.ErabsSubjectToStatusTransferList,
			x2.ErabsSubjectToStatusTransferItem{
				ErabId:   drb.EpsBearerIdentity,
				DlPdcpSn: sn.TxSn,
				UlPdcpSn: sn.RxSn,
			})
	}
	if err := ctx.links.x2.SendSnStatusTransfer(status); err != nil {
		ctx.Error("Send SN status transfer: %v", err)
	}
}

func (ctx *UeContext) RecvHandoverPreparationFailure(msg x2.HandoverPreparationFailure) {
	if _, ok := ctx.state.(HandoverPreparation); !ok {
		ctx.Panic("RecvHandoverPreparationFailure: unexpected state %s", ctx.state)
	}
	ctx.Warn("Handover to cell %d refused: %s", msg.TargetCellId, msg.Cause)
	ctx.switchToState(ConnectedNormally{})
}

// RecvSnStatusTransfer carries the source PDCP sequence numbers over to the
// matching bearers.
func (ctx *UeContext) RecvSnStatusTransfer(msg x2.SnStatusTransfer) {
	for _, item := range msg.ErabsSubjectToStatusTransferList {
		drb, ok := ctx.bearers.DrbByEpsBearerId(item.ErabId)
		if !ok || drb.Pdcp == nil {
			ctx.Warn("SN status for unknown E-RAB %d", item.ErabId)
			continue
		}
		drb.Pdcp.SetStatus(bearer.PdcpStatus{TxSn: item.DlPdcpSn, RxSn: item.UlPdcpSn})
	}
}

func (ctx *UeContext) RecvUeContextRelease(msg x2.UeContextRelease) {
	if _, ok := ctx.state.(HandoverLeaving); !ok {
		ctx.Panic("RecvUeContextRelease: unexpected state %s", ctx.state)
	}
	ctx.timers.Cancel(TIMER_HANDOVER_LEAVING)
	ctx.Info("UE context released by cell %d", msg.TargetCellId)
}

// pathSwitched completes the handover on the target side once the core has
// moved the downlink path.
func (ctx *UeContext) pathSwitched() {
	s, ok := ctx.state.(HandoverPathSwitch)
	if !ok {
		ctx.Panic("PathSwitchRequestAcknowledge: unexpected state %s", ctx.state)
	}
	rel := x2.UeContextRelease{
		OldEnbUeX2apId: s.SourceX2apId,
		NewEnbUeX2apId: ctx.rnti,
		SourceCellId:   s.SourceCellId,
		TargetCellId:   ctx.owner.CellId(),
	}
	if err := ctx.links.x2.SendUeContextRelease(rel); err != nil {
		ctx.Error("Send UE context release: %v", err)
	}
	ctx.switchToState(ConnectedNormally{})
	ctx.owner.ueEvent(ctx, UE_EVENT_HANDOVER_END_OK, 0)
}
