package rrcmsg

import (
	"encoding/binary"
	"fmt"

	"github.com/lvdund/rrc"
	rrcies "github.com/lvdund/rrc/ies"
	"gopkg.in/yaml.v3"
)

type containerKind uint8

const (
	CONTAINER_HANDOVER_PREPARATION_INFO containerKind = iota + 1
	CONTAINER_HANDOVER_COMMAND
)

// container header: kind (1 byte) and envelope length (2 bytes)
const containerHeaderSize = 3

// AsnCodec serializes relayed messages into byte containers. A handover
// command travels as a UPER DL-DCCH RRCReconfiguration envelope carrying
// the transaction identifier, the radio bearer identities and the
// measurement identities. The rest of the record follows as YAML.
type AsnCodec struct{}

func NewAsnCodec() *AsnCodec {
	return &AsnCodec{}
}

func packContainer(kind containerKind, envelope, body []byte) ([]byte, error) {
	if len(envelope) > 0xFFFF {
		return nil, fmt.Errorf("envelope of %d bytes: %w", len(envelope), ErrMalformed)
	}
	out := make([]byte, containerHeaderSize, containerHeaderSize+len(envelope)+len(body))
	out[0] = byte(kind)
	binary.BigEndian.PutUint16(out[1:], uint16(len(envelope)))
	out = append(out, envelope...)
	out = append(out, body...)
	return out, nil
}

func unpackContainer(b []byte, want containerKind) (envelope, body []byte, err error) {
	if len(b) < containerHeaderSize {
		return nil, nil, fmt.Errorf("container of %d bytes: %w", len(b), ErrMalformed)
	}
	if containerKind(b[0]) != want {
		return nil, nil, fmt.Errorf("container kind %d, want %d: %w", b[0], want, ErrUnexpectedKind)
	}
	n := int(binary.BigEndian.Uint16(b[1:]))
	if len(b) < containerHeaderSize+n {
		return nil, nil, fmt.Errorf("truncated envelope: %w", ErrMalformed)
	}
	return b[containerHeaderSize : containerHeaderSize+n], b[containerHeaderSize+n:], nil
}

func (c *AsnCodec) EncodeHandoverPreparationInfo(msg HandoverPreparationInfo) ([]byte, error) {
	body, err := yaml.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("marshal handover preparation info: %w", err)
	}
	return packContainer(CONTAINER_HANDOVER_PREPARATION_INFO, nil, body)
}

func (c *AsnCodec) DecodeHandoverPreparationInfo(b []byte) (HandoverPreparationInfo, error) {
	var msg HandoverPreparationInfo
	_, body, err := unpackContainer(b, CONTAINER_HANDOVER_PREPARATION_INFO)
	if err != nil {
		return msg, err
	}
	if err := yaml.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal handover preparation info: %w", err)
	}
	return msg, nil
}

func (c *AsnCodec) EncodeHandoverCommand(msg RrcConnectionReconfiguration) ([]byte, error) {
	ies := &rrcies.RRCReconfiguration_IEs{}
	if rrcd := msg.RadioResourceConfigDedicated; rrcd != nil {
		rbc, err := toRadioBearerConfig(rrcd)
		if err != nil {
			return nil, fmt.Errorf("encode radio bearer config: %w", err)
		}
		ies.RadioBearerConfig = rbc
	}
	if msg.MeasConfig != nil {
		ies.MeasConfig = toMeasConfigIes(msg.MeasConfig)
	}
	dlDcchMsg := rrcies.DL_DCCH_Message{
		Message: rrcies.DL_DCCH_MessageType{
			Choice: rrcies.DL_DCCH_MessageType_Choice_C1,
			C1: &rrcies.DL_DCCH_MessageType_C1{
				Choice: rrcies.DL_DCCH_MessageType_C1_Choice_RrcReconfiguration,
				RrcReconfiguration: &rrcies.RRCReconfiguration{
					Rrc_TransactionIdentifier: rrcies.RRC_TransactionIdentifier{Value: uint64(msg.RrcTransactionIdentifier)},
					CriticalExtensions: rrcies.RRCReconfiguration_CriticalExtensions{
						Choice:             rrcies.RRCReconfiguration_CriticalExtensions_Choice_RrcReconfiguration,
						RrcReconfiguration: ies,
					},
				},
			},
		},
	}
	envelope, err := rrc.Encode(&dlDcchMsg)
	if err != nil {
		return nil, fmt.Errorf("encode DL-DCCH envelope: %w", err)
	}
	body, err := yaml.Marshal(stripEnvelopeFields(msg))
	if err != nil {
		return nil, fmt.Errorf("marshal handover command: %w", err)
	}
	return packContainer(CONTAINER_HANDOVER_COMMAND, envelope, body)
}

func (c *AsnCodec) DecodeHandoverCommand(b []byte) (RrcConnectionReconfiguration, error) {
	var msg RrcConnectionReconfiguration
	envelope, body, err := unpackContainer(b, CONTAINER_HANDOVER_COMMAND)
	if err != nil {
		return msg, err
	}

	dlDcchMsg := rrcies.DL_DCCH_Message{}
	if err := rrc.Decode(envelope, &dlDcchMsg); err != nil {
		return msg, fmt.Errorf("decode DL-DCCH envelope: %w", err)
	}
	if dlDcchMsg.Message.Choice != rrcies.DL_DCCH_MessageType_Choice_C1 || dlDcchMsg.Message.C1 == nil {
		return msg, fmt.Errorf("DL-DCCH envelope is not c1: %w", ErrUnexpectedKind)
	}
	c1 := dlDcchMsg.Message.C1
	if c1.Choice != rrcies.DL_DCCH_MessageType_C1_Choice_RrcReconfiguration || c1.RrcReconfiguration == nil {
		return msg, fmt.Errorf("DL-DCCH envelope is not an RRCReconfiguration: %w", ErrUnexpectedKind)
	}
	ies := c1.RrcReconfiguration.CriticalExtensions.RrcReconfiguration
	if ies == nil {
		return msg, fmt.Errorf("RRCReconfiguration without IEs: %w", ErrMalformed)
	}

	if err := yaml.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal handover command: %w", err)
	}
	if uint8(c1.RrcReconfiguration.Rrc_TransactionIdentifier.Value) != msg.RrcTransactionIdentifier {
		return msg, fmt.Errorf("envelope %d, body %d: %w",
			c1.RrcReconfiguration.Rrc_TransactionIdentifier.Value, msg.RrcTransactionIdentifier, ErrTransactionMismatch)
	}
	if err := mergeRadioBearerConfig(ies.RadioBearerConfig, msg.RadioResourceConfigDedicated); err != nil {
		return msg, err
	}
	if err := mergeMeasConfig(ies.MeasConfig, msg.MeasConfig); err != nil {
		return msg, err
	}
	return msg, nil
}

// stripEnvelopeFields returns a copy of msg without the members carried by
// the UPER envelope. List entries keep their position so that the decoder
// can put the identities back.
func stripEnvelopeFields(msg RrcConnectionReconfiguration) *RrcConnectionReconfiguration {
	out := msg
	if msg.RadioResourceConfigDedicated != nil {
		rrcd := *msg.RadioResourceConfigDedicated
		rrcd.SrbToAddModList = append([]SrbToAddMod(nil), rrcd.SrbToAddModList...)
		for i := range rrcd.SrbToAddModList {
			rrcd.SrbToAddModList[i].SrbIdentity = 0
		}
		rrcd.DrbToAddModList = append([]DrbToAddMod(nil), rrcd.DrbToAddModList...)
		for i := range rrcd.DrbToAddModList {
			rrcd.DrbToAddModList[i].EpsBearerIdentity = 0
			rrcd.DrbToAddModList[i].DrbIdentity = 0
		}
		rrcd.DrbToReleaseList = nil
		out.RadioResourceConfigDedicated = &rrcd
	}
	if msg.MeasConfig != nil {
		mc := msg.MeasConfig.Clone()
		mc.MeasObjectToRemoveList = nil
		mc.ReportConfigToRemoveList = nil
		mc.MeasIdToRemoveList = nil
		mc.MeasIdToAddModList = nil
		out.MeasConfig = mc
	}
	return &out
}

func toRadioBearerConfig(rrcd *RadioResourceConfigDedicated) (*rrcies.RadioBearerConfig, error) {
	rbc := &rrcies.RadioBearerConfig{}
	if len(rrcd.SrbToAddModList) > 0 {
		list := &rrcies.SRB_ToAddModList{}
		for _, srb := range rrcd.SrbToAddModList {
			if srb.SrbIdentity < 1 || srb.SrbIdentity > 3 {
				return nil, fmt.Errorf("srb identity %d out of range: %w", srb.SrbIdentity, ErrMalformed)
			}
			list.Value = append(list.Value, rrcies.SRB_ToAddMod{
				Srb_Identity: rrcies.SRB_Identity{Value: uint64(srb.SrbIdentity)},
			})
		}
		rbc.Srb_ToAddModList = list
	}
	if len(rrcd.DrbToAddModList) > 0 {
		list := &rrcies.DRB_ToAddModList{}
		for _, drb := range rrcd.DrbToAddModList {
			if drb.EpsBearerIdentity > 15 {
				return nil, fmt.Errorf("eps bearer identity %d out of range: %w", drb.EpsBearerIdentity, ErrMalformed)
			}
			list.Value = append(list.Value, rrcies.DRB_ToAddMod{
				CnAssociation: &rrcies.DRB_ToAddMod_cnAssociation{
					Choice:             rrcies.DRB_ToAddMod_cnAssociation_Choice_Eps_BearerIdentity,
					Eps_BearerIdentity: int64(drb.EpsBearerIdentity),
				},
				Drb_Identity: rrcies.DRB_Identity{Value: uint64(drb.DrbIdentity)},
			})
		}
		rbc.Drb_ToAddModList = list
	}
	if len(rrcd.DrbToReleaseList) > 0 {
		list := &rrcies.DRB_ToReleaseList{}
		for _, id := range rrcd.DrbToReleaseList {
			list.Value = append(list.Value, rrcies.DRB_Identity{Value: uint64(id)})
		}
		rbc.Drb_ToReleaseList = list
	}
	return rbc, nil
}

// mergeRadioBearerConfig puts the envelope identities back into the
// decoded record.
func mergeRadioBearerConfig(rbc *rrcies.RadioBearerConfig, rrcd *RadioResourceConfigDedicated) error {
	if rbc == nil {
		if rrcd != nil {
			return fmt.Errorf("radio resource config without radio bearer config: %w", ErrMalformed)
		}
		return nil
	}
	if rrcd == nil {
		return fmt.Errorf("radio bearer config without radio resource config: %w", ErrMalformed)
	}
	var srbs []rrcies.SRB_ToAddMod
	if rbc.Srb_ToAddModList != nil {
		srbs = rbc.Srb_ToAddModList.Value
	}
	if len(srbs) != len(rrcd.SrbToAddModList) {
		return fmt.Errorf("%d srbs in envelope, %d in body: %w", len(srbs), len(rrcd.SrbToAddModList), ErrMalformed)
	}
	for i, srb := range srbs {
		rrcd.SrbToAddModList[i].SrbIdentity = uint8(srb.Srb_Identity.Value)
	}
	var drbs []rrcies.DRB_ToAddMod
	if rbc.Drb_ToAddModList != nil {
		drbs = rbc.Drb_ToAddModList.Value
	}
	if len(drbs) != len(rrcd.DrbToAddModList) {
		return fmt.Errorf("%d drbs in envelope, %d in body: %w", len(drbs), len(rrcd.DrbToAddModList), ErrMalformed)
	}
	for i, drb := range drbs {
		if drb.CnAssociation == nil || drb.CnAssociation.Choice != rrcies.DRB_ToAddMod_cnAssociation_Choice_Eps_BearerIdentity {
			return fmt.Errorf("drb %d without eps bearer identity: %w", drb.Drb_Identity.Value, ErrMalformed)
		}
		rrcd.DrbToAddModList[i].EpsBearerIdentity = uint8(drb.CnAssociation.Eps_BearerIdentity)
		rrcd.DrbToAddModList[i].DrbIdentity = uint8(drb.Drb_Identity.Value)
	}
	if rbc.Drb_ToReleaseList != nil {
		for _, id := range rbc.Drb_ToReleaseList.Value {
			rrcd.DrbToReleaseList = append(rrcd.DrbToReleaseList, uint8(id.Value))
		}
	}
	return nil
}

func toMeasConfigIes(mc *MeasConfig) *rrcies.MeasConfig {
	out := &rrcies.MeasConfig{}
	if len(mc.MeasObjectToRemoveList) > 0 {
		list := &rrcies.MeasObjectToRemoveList{}
		for _, id := range mc.MeasObjectToRemoveList {
			list.Value = append(list.Value, rrcies.MeasObjectId{Value: uint64(id)})
		}
		out.MeasObjectToRemoveList = list
	}
	if len(mc.ReportConfigToRemoveList) > 0 {
		list := &rrcies.ReportConfigToRemoveList{}
		for _, id := range mc.ReportConfigToRemoveList {
			list.Value = append(list.Value, rrcies.ReportConfigId{Value: uint64(id)})
		}
		out.ReportConfigToRemoveList = list
	}
	if len(mc.MeasIdToRemoveList) > 0 {
		list := &rrcies.MeasIdToRemoveList{}
		for _, id := range mc.MeasIdToRemoveList {
			list.Value = append(list.Value, rrcies.MeasId{Value: uint64(id)})
		}
		out.MeasIdToRemoveList = list
	}
	if len(mc.MeasIdToAddModList) > 0 {
		list := &rrcies.MeasIdToAddModList{}
		for _, m := range mc.MeasIdToAddModList {
			list.Value = append(list.Value, rrcies.MeasIdToAddMod{
				MeasId:         rrcies.MeasId{Value: uint64(m.MeasId)},
				MeasObjectId:   rrcies.MeasObjectId{Value: uint64(m.MeasObjectId)},
				ReportConfigId: rrcies.ReportConfigId{Value: uint64(m.ReportConfigId)},
			})
		}
		out.MeasIdToAddModList = list
	}
	return out
}

func mergeMeasConfig(in *rrcies.MeasConfig, mc *MeasConfig) error {
	if in == nil {
		if mc != nil {
			return fmt.Errorf("meas config missing from envelope: %w", ErrMalformed)
		}
		return nil
	}
	if mc == nil {
		return fmt.Errorf("meas config missing from body: %w", ErrMalformed)
	}
	if in.MeasObjectToRemoveList != nil {
		for _, id := range in.MeasObjectToRemoveList.Value {
			mc.MeasObjectToRemoveList = append(mc.MeasObjectToRemoveList, uint8(id.Value))
		}
	}
	if in.ReportConfigToRemoveList != nil {
		for _, id := range in.ReportConfigToRemoveList.Value {
			mc.ReportConfigToRemoveList = append(mc.ReportConfigToRemoveList, uint8(id.Value))
		}
	}
	if in.MeasIdToRemoveList != nil {
		for _, id := range in.MeasIdToRemoveList.Value {
			mc.MeasIdToRemoveList = append(mc.MeasIdToRemoveList, uint8(id.Value))
		}
	}
	if in.MeasIdToAddModList != nil {
		for _, m := range in.MeasIdToAddModList.Value {
			mc.MeasIdToAddModList = append(mc.MeasIdToAddModList, MeasIdToAddMod{
				MeasId:         uint8(m.MeasId.Value),
				MeasObjectId:   uint8(m.MeasObjectId.Value),
				ReportConfigId: uint8(m.ReportConfigId.Value),
			})
		}
	}
	return nil
}
