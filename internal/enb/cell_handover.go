package enb

import (
	"fmt"

	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/x2"
)

// TriggerHandover starts a handover of a connected UE towards targetCellId.
// A refused trigger leaves the UE untouched.
func (c *CellController) TriggerHandover(rnti uint16, targetCellId uint16) error {
	ctx, ok := c.ues[rnti]
	if !ok {
		return fmt.Errorf("trigger handover: %w %d", ErrUnknownRnti, rnti)
	}
	rel, ok := c.anr.Relation(targetCellId)
	if !ok {
		return fmt.Errorf("trigger handover to cell %d: %w", targetCellId, ErrNoNeighbourRelation)
	}
	if rel.NoHo || rel.NoX2 {
		return fmt.Errorf("trigger handover to cell %d: %w", targetCellId, ErrHandoverNotAllowed)
	}
	if !c.links.x2.HasPeer(c.CellId(), targetCellId) {
		return fmt.Errorf("trigger handover to cell %d: %w", targetCellId, ErrNoX2Peer)
	}
	if ctx.state.Kind() != UE_STATE_CONNECTED_NORMALLY {
		return fmt.Errorf("trigger handover in state %s: %w", ctx.state, ErrUeNotConnected)
	}
	return ctx.PrepareHandover(targetCellId)
}

func (c *CellController) sendHandoverPreparationFailure(req x2.HandoverRequest, cause x2.Cause) {
	c.metrics.HandoverFailed("preparation_failure")
	err := c.links.x2.SendHandoverPreparationFailure(x2.HandoverPreparationFailure{
		OldEnbUeX2apId: req.OldEnbUeX2apId,
		SourceCellId:   req.SourceCellId,
		TargetCellId:   req.TargetCellId,
		Cause:          cause,
	})
	if err != nil {
		c.Error("Send handover preparation failure: %v", err)
	}
}

// RecvHandoverRequest admits an incoming UE: it creates a joining context,
// reserves a dedicated preamble, sets the bearers up and answers with the
// handover command for the source cell to relay.
func (c *CellController) RecvHandoverRequest(req x2.HandoverRequest) {
	c.Info("Handover request from cell %d for UE %d", req.SourceCellId, req.OldEnbUeX2apId)
	if !c.cfg.AdmitsHandovers() {
		c.Warn("Handover not admitted")
		c.sendHandoverPreparationFailure(req, x2.CAUSE_UNSPECIFIED)
		return
	}
	info, err := c.links.codec.DecodeHandoverPreparationInfo(req.RrcContext)
	if err != nil {
		c.Error("Decode handover preparation info: %v", err)
		c.sendHandoverPreparationFailure(req, x2.CAUSE_UNSPECIFIED)
		return
	}
	c.Debug("Source UE identity %d on dl earfcn %d", info.AsConfig.SourceUeIdentity, info.AsConfig.SourceDlCarrierFreq)

	rnti := c.AddUe(HandoverJoining{SourceCellId: req.SourceCellId, SourceX2apId: req.OldEnbUeX2apId})
	preamble, ok := c.links.mac.AllocateNcRaPreamble(rnti)
	if !ok {
		c.Warn("No dedicated preamble available for UE %d", rnti)
		c.RemoveUe(rnti)
		c.sendHandoverPreparationFailure(req, x2.CAUSE_NO_RADIO_RESOURCES_AVAILABLE)
		return
	}
	ctx := c.ues[rnti]
	ctx.setImsi(req.MmeUeS1apId)

	ack := x2.HandoverRequestAck{
		OldEnbUeX2apId: req.OldEnbUeX2apId,
		NewEnbUeX2apId: rnti,
		SourceCellId:   req.SourceCellId,
		TargetCellId:   req.TargetCellId,
	}
	for _, erab := range req.Bearers {
		ctx.SetupDataRadioBearer(erab.ErabLevelQosParameters, erab.ErabId, erab.GtpTeid, erab.TransportLayerAddress)
		ack.AdmittedBearers = append(ack.AdmittedBearers, x2.ErabAdmittedItem{
			ErabId:    erab.ErabId,
			UlGtpTeid: erab.GtpTeid,
		})
	}

	cmd := ctx.handoverCommand(rrcmsg.MobilityControlInfo{
		TargetPhysCellId: c.CellId(),
		DlCarrierFreq:    c.cfg.DlEarfcn,
		UlCarrierFreq:    c.cfg.UlEarfcn,
		DlBandwidth:      c.cfg.DlBandwidth,
		UlBandwidth:      c.cfg.UlBandwidth,
		NewUeIdentity:    rnti,
		RachConfigCommon: c.links.mac.RachConfig(),
		RachConfigDedicated: &rrcmsg.RachConfigDedicated{
			RaPreambleIndex:  preamble.PreambleId,
			RaPrachMaskIndex: preamble.PrachMaskIndex,
		},
	})
	ack.RrcContext, err = c.links.codec.EncodeHandoverCommand(cmd)
	if err != nil {
		c.Error("Encode handover command: %v", err)
		c.RemoveUe(rnti)
		c.sendHandoverPreparationFailure(req, x2.CAUSE_UNSPECIFIED)
		return
	}
	if err := c.links.x2.SendHandoverRequestAck(ack); err != nil {
		c.Error("Send handover request ack: %v", err)
	}
}

func (c *CellController) RecvHandoverRequestAck(msg x2.HandoverRequestAck) {
	c.mustUe(msg.OldEnbUeX2apId, "RecvHandoverRequestAck").RecvHandoverRequestAck(msg)
}

func (c *CellController) RecvHandoverPreparationFailure(msg x2.HandoverPreparationFailure) {
	c.mustUe(msg.OldEnbUeX2apId, "RecvHandoverPreparationFailure").RecvHandoverPreparationFailure(msg)
}

func (c *CellController) RecvSnStatusTransfer(msg x2.SnStatusTransfer) {
	c.mustUe(msg.NewEnbUeX2apId, "RecvSnStatusTransfer").RecvSnStatusTransfer(msg)
}

// RecvUeContextRelease ends the source side of a completed handover.
func (c *CellController) RecvUeContextRelease(msg x2.UeContextRelease) {
	c.mustUe(msg.OldEnbUeX2apId, "RecvUeContextRelease").RecvUeContextRelease(msg)
	c.RemoveUe(msg.OldEnbUeX2apId)
}
