package enb

import (
	"lte_rrc/internal/rrcmsg"
)

const CELL_SELECTION_Q_QUAL_MIN int8 = -34

// ConfigureCell hands MIB and SIB1 to the PHY and starts the periodic SIB2
// broadcast. The measurement configuration is frozen from here on.
func (c *CellController) ConfigureCell() {
	if c.configured {
		c.Panic("ConfigureCell: cell already configured")
	}
	c.mib = rrcmsg.MasterInformationBlock{
		DlBandwidth:       c.cfg.DlBandwidth,
		SystemFrameNumber: 0,
	}
	c.sib1 = rrcmsg.SystemInformationBlockType1{
		CellAccessRelatedInfo: rrcmsg.CellAccessRelatedInfo{
			CellIdentity:  c.cfg.CellId,
			CsgIndication: c.cfg.CsgIndication,
			CsgIdentity:   c.cfg.CsgId,
		},
		CellSelectionInfo: rrcmsg.CellSelectionInfo{
			QRxLevMin: c.cfg.QRxLevMin,
			QQualMin:  CELL_SELECTION_Q_QUAL_MIN,
		},
	}
	c.sib2 = rrcmsg.SystemInformationBlockType2{
		RadioResourceConfigCommon: rrcmsg.RadioResourceConfigCommonSib{
			RachConfigCommon: c.links.mac.RachConfig(),
		},
		FreqInfo: rrcmsg.FreqInfo{
			UlCarrierFreq: c.cfg.UlEarfcn,
			UlBandwidth:   c.cfg.UlBandwidth,
		},
	}
	c.links.phy.SetMasterInformationBlock(c.mib)
	c.links.phy.SetSystemInformationBlockType1(c.sib1)
	c.configured = true
	c.siEvent = c.sched.Schedule(c.timers.FirstSystemInformation, c.sendSystemInformation)
	c.Info("Cell configured: dl earfcn %d, ul earfcn %d, bandwidth %d/%d",
		c.cfg.DlEarfcn, c.cfg.UlEarfcn, c.cfg.DlBandwidth, c.cfg.UlBandwidth)
}

// Stop ends the system information broadcast.
func (c *CellController) Stop() {
	c.sched.Cancel(c.siEvent)
}

func (c *CellController) sendSystemInformation() {
	c.links.rrc.SendSystemInformation(c.CellId(), rrcmsg.SystemInformation{
		HaveSib2: true,
		Sib2:     c.sib2,
	})
	c.siEvent = c.sched.Schedule(c.timers.SystemInformationPeriod, c.sendSystemInformation)
}

func (c *CellController) MasterInformationBlock() rrcmsg.MasterInformationBlock {
	return c.mib
}

func (c *CellController) SystemInformationBlockType1() rrcmsg.SystemInformationBlockType1 {
	return c.sib1
}

// sourceAsConfig is the cell part of the access stratum configuration sent
// in a handover preparation.
func (c *CellController) sourceAsConfig() rrcmsg.AsConfig {
	return rrcmsg.AsConfig{
		SourceMeasConfig:                  *c.measConfig.Clone(),
		SourceMasterInformationBlock:      c.mib,
		SourceSystemInformationBlockType1: c.sib1,
		SourceSystemInformationBlockType2: c.sib2,
		SourceDlCarrierFreq:               c.cfg.DlEarfcn,
	}
}
