package ue

import (
	"lte_rrc/internal/bearer"
	"lte_rrc/internal/rrcmsg"
	"lte_rrc/internal/sap"
)

func (ue *ConnectionManager) RecvRrcConnectionSetup(msg rrcmsg.RrcConnectionSetup) {
	if ue.state != STATE_CONNECTING {
		ue.unexpected("RecvRrcConnectionSetup")
	}
	ue.ApplyRadioResourceConfigDedicated(msg.RadioResourceConfigDedicated)
	ue.timers.Cancel(TIMER_T300)
	ue.switchToState(STATE_CONNECTED_NORMALLY)
	ue.rrc.SendRrcConnectionSetupCompleted(ue.rnti, rrcmsg.RrcConnectionSetupCompleted{
		RrcTransactionIdentifier: msg.RrcTransactionIdentifier,
	})
	ue.nas.NotifyConnectionSuccessful()
	ue.publish(EVENT_CONNECTION_ESTABLISHED, 0)
}

func (ue *ConnectionManager) RecvRrcConnectionReconfiguration(msg rrcmsg.RrcConnectionReconfiguration) {
	if ue.state != STATE_CONNECTED_NORMALLY {
		ue.unexpected("RecvRrcConnectionReconfiguration")
	}
	if msg.HaveMobilityControlInfo() {
		ue.executeHandover(msg)
		return
	}
	if msg.RadioResourceConfigDedicated != nil {
		ue.ApplyRadioResourceConfigDedicated(*msg.RadioResourceConfigDedicated)
	}
	if msg.MeasConfig != nil {
		ue.meas.ApplyMeasConfig(*msg.MeasConfig)
	}
	ue.rrc.SendRrcConnectionReconfigurationCompleted(ue.rnti, rrcmsg.RrcConnectionReconfigurationCompleted{
		RrcTransactionIdentifier: msg.RrcTransactionIdentifier,
	})
	ue.publish(EVENT_CONNECTION_RECONFIGURATION, 0)
}

// executeHandover retunes to the target cell and starts the dedicated
// random access there. The reconfiguration is completed once the access
// succeeds.
func (ue *ConnectionManager) executeHandover(msg rrcmsg.RrcConnectionReconfiguration) {
	mci := msg.MobilityControlInfo
	if mci.RachConfigDedicated == nil {
		ue.Panic("Handover command without a dedicated preamble")
	}
	if msg.RadioResourceConfigDedicated == nil {
		ue.Panic("Handover command without a radio resource configuration")
	}
	ue.Info("Handover to cell %d, new rnti %d", mci.TargetPhysCellId, mci.NewUeIdentity)
	ue.switchToState(STATE_CONNECTED_HANDOVER)
	ue.publish(EVENT_HANDOVER_START, mci.TargetPhysCellId)

	ue.mac.Reset()
	ue.phy.Reset()
	ue.cellId = mci.TargetPhysCellId
	ue.dlEarfcn = mci.DlCarrierFreq
	ue.ulEarfcn = mci.UlCarrierFreq
	ue.dlBandwidth = mci.DlBandwidth
	ue.ulBandwidth = mci.UlBandwidth
	ue.phy.SynchronizeWithEnb(ue.cellId, ue.dlEarfcn)
	ue.phy.SetDlBandwidth(ue.dlBandwidth)
	ue.phy.ConfigureUplink(ue.ulEarfcn, ue.ulBandwidth)

	ue.rnti = mci.NewUeIdentity
	ue.mac.StartNonContentionBasedRandomAccess(ue.rnti, mci.RachConfigDedicated.RaPreambleIndex,
		mci.RachConfigDedicated.RaPrachMaskIndex)
	ue.phy.SetRnti(ue.rnti)
	ue.lastRrcTransactionIdentifier = msg.RrcTransactionIdentifier

	ue.bearers.ResetSrb1()
	ue.bearers.ClearDrbs()
	ue.ApplyRadioResourceConfigDedicated(*msg.RadioResourceConfigDedicated)
	if msg.MeasConfig != nil {
		ue.meas.ApplyMeasConfig(*msg.MeasConfig)
	}
}

func (ue *ConnectionManager) RecvRrcConnectionReestablishment(msg rrcmsg.RrcConnectionReestablishment) {
	if ue.state != STATE_CONNECTED_REESTABLISHING {
		ue.unexpected("RecvRrcConnectionReestablishment")
	}
	ue.ApplyRadioResourceConfigDedicated(msg.RadioResourceConfigDedicated)
	ue.rrc.SendRrcConnectionReestablishmentComplete(ue.rnti, rrcmsg.RrcConnectionReestablishmentComplete{
		RrcTransactionIdentifier: msg.RrcTransactionIdentifier,
	})
	ue.switchToState(STATE_CONNECTED_NORMALLY)
}

func (ue *ConnectionManager) RecvRrcConnectionReestablishmentReject(msg rrcmsg.RrcConnectionReestablishmentReject) {
	if ue.state != STATE_CONNECTED_REESTABLISHING {
		ue.unexpected("RecvRrcConnectionReestablishmentReject")
	}
	ue.leaveConnectedMode()
}

func (ue *ConnectionManager) RecvRrcConnectionRelease(msg rrcmsg.RrcConnectionRelease) {
	if !ue.state.IsConnected() {
		ue.Warn("Connection release ignored in state %s", ue.state)
		return
	}
	ue.leaveConnectedMode()
}

func (ue *ConnectionManager) RecvRrcConnectionReject(msg rrcmsg.RrcConnectionReject) {
	if ue.state != STATE_CONNECTING {
		ue.unexpected("RecvRrcConnectionReject")
	}
	ue.Info("Connection rejected, wait time %d s", msg.WaitTime)
	ue.timers.Cancel(TIMER_T300)
	ue.mac.Reset()
	ue.hasReceivedSib2 = false
	ue.switchToState(STATE_CAMPED_NORMALLY)
	ue.nas.NotifyConnectionFailed()
}

// ApplyRadioResourceConfigDedicated configures the PHY and the bearers
// described by rrcd.
func (ue *ConnectionManager) ApplyRadioResourceConfigDedicated(rrcd rrcmsg.RadioResourceConfigDedicated) {
	if pcd := rrcd.PhysicalConfigDedicated; pcd != nil {
		if pcd.TransmissionMode != nil {
			ue.phy.SetTransmissionMode(*pcd.TransmissionMode)
		}
		if pcd.SrsConfigIndex != nil {
			ue.phy.SetSrsConfigurationIndex(*pcd.SrsConfigIndex)
		}
		if pcd.Pa != nil {
			ue.phy.SetPa(*pcd.Pa)
		}
	}

	for _, srb := range rrcd.SrbToAddModList {
		if srb.SrbIdentity != 1 {
			ue.Panic("Only signaling bearer 1 can be configured, got %d", srb.SrbIdentity)
		}
		if ue.bearers.Srb1() != nil {
			ue.Debug("Signaling bearer 1 modification ignored")
			continue
		}
		switch ue.state {
		case STATE_CONNECTING, STATE_CONNECTED_HANDOVER, STATE_CONNECTED_REESTABLISHING:
		default:
			ue.unexpected("setup of signaling bearer 1")
		}
		srb1, err := ue.bearers.SetupSrb1(srb.LogicalChannelConfig)
		if err != nil {
			ue.Panic("Setup of signaling bearer 1 failed: %v", err)
		}
		srb1.Rlc.Start()
		srb1.Pdcp.Start()
		ue.mac.AddLc(sap.UeLcConfig{Lcid: srb1.Lcid, LogicalChannelConfig: srb.LogicalChannelConfig})
	}

	// Releases are applied before additions: a DRB id released and added
	// again in one message ends up configured.
	for _, drbid := range rrcd.DrbToReleaseList {
		drb, err := ue.bearers.RemoveDrb(drbid)
		if err != nil {
			ue.Panic("Cannot release data radio bearer: %v", err)
		}
		ue.Info("Data radio bearer %d released", drbid)
		ue.mac.RemoveLc(drb.Lcid)
	}

	for _, mod := range rrcd.DrbToAddModList {
		if mod.LogicalChannelIdentity <= bearer.SRB1_LCID+1 {
			ue.Panic("Logical channel %d is reserved for signaling", mod.LogicalChannelIdentity)
		}
		if _, ok := ue.bearers.Drb(mod.DrbIdentity); ok {
			ue.Debug("Data radio bearer %d already configured", mod.DrbIdentity)
			continue
		}
		drb := &bearer.DataRadioBearer{
			EpsBearerIdentity:    mod.EpsBearerIdentity,
			DrbIdentity:          mod.DrbIdentity,
			Lcid:                 mod.LogicalChannelIdentity,
			LogicalChannelConfig: mod.LogicalChannelConfig,
			Rlc:                  bearer.NewRlc(mod.RlcMode),
		}
		if bearer.NeedsPdcp(mod.RlcMode) {
			drb.Pdcp = &bearer.Pdcp{}
			drb.Pdcp.Start()
		}
		drb.Rlc.Start()
		if err := ue.bearers.AddDrb(drb); err != nil {
			ue.Panic("Cannot add data radio bearer %d: %v", mod.DrbIdentity, err)
		}
		ue.Info("Data radio bearer %d added on lcid %d", drb.DrbIdentity, drb.Lcid)
		ue.mac.AddLc(sap.UeLcConfig{Lcid: drb.Lcid, LogicalChannelConfig: drb.LogicalChannelConfig})
	}
}
