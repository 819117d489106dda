package rrcmsg

import (
	"errors"
	"fmt"

	"lte_rrc/pkg/config"
)

var (
	ErrUnknownHandle       = errors.New("unknown message handle")
	ErrUnexpectedKind      = errors.New("unexpected message kind")
	ErrMalformed           = errors.New("malformed rrc container")
	ErrTransactionMismatch = errors.New("rrc transaction identifier mismatch")
)

// Codec encodes the RRC messages that eNodeBs relay to each other inside
// X2 containers. State machines only see this contract, so the ideal and
// the serialized backends are interchangeable.
type Codec interface {
	EncodeHandoverPreparationInfo(msg HandoverPreparationInfo) ([]byte, error)
	DecodeHandoverPreparationInfo(b []byte) (HandoverPreparationInfo, error)
	EncodeHandoverCommand(msg RrcConnectionReconfiguration) ([]byte, error)
	DecodeHandoverCommand(b []byte) (RrcConnectionReconfiguration, error)
}

// NewCodec builds the codec named in the configuration. One codec instance
// serves one simulation run.
func NewCodec(kind string) (Codec, error) {
	switch kind {
	case config.RRC_CODEC_IDEAL, "":
		return NewIdealCodec(), nil
	case config.RRC_CODEC_ASN:
		return NewAsnCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported rrc codec %q", kind)
	}
}
