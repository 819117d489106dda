package rrcmsg

import (
	"encoding/binary"
	"fmt"
)

const handleSize = 4

// IdealCodec passes records by value through a per-run table. Encoding
// stores the record and returns its handle; decoding consumes the entry.
type IdealCodec struct {
	lastHandle uint32
	arena      map[uint32]any
}

func NewIdealCodec() *IdealCodec {
	return &IdealCodec{
		arena: make(map[uint32]any),
	}
}

func (c *IdealCodec) store(msg any) []byte {
	c.lastHandle++
	if c.lastHandle == 0 {
		c.lastHandle = 1
	}
	c.arena[c.lastHandle] = msg
	b := make([]byte, handleSize)
	binary.BigEndian.PutUint32(b, c.lastHandle)
	return b
}

func (c *IdealCodec) take(b []byte) (any, error) {
	if len(b) != handleSize {
		return nil, fmt.Errorf("handle of %d bytes: %w", len(b), ErrMalformed)
	}
	h := binary.BigEndian.Uint32(b)
	msg, ok := c.arena[h]
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, ErrUnknownHandle)
	}
	delete(c.arena, h)
	return msg, nil
}

// Outstanding returns the number of encoded records not yet decoded.
func (c *IdealCodec) Outstanding() int {
	return len(c.arena)
}

func (c *IdealCodec) EncodeHandoverPreparationInfo(msg HandoverPreparationInfo) ([]byte, error) {
	return c.store(msg), nil
}

func (c *IdealCodec) DecodeHandoverPreparationInfo(b []byte) (HandoverPreparationInfo, error) {
	msg, err := c.take(b)
	if err != nil {
		return HandoverPreparationInfo{}, err
	}
	info, ok := msg.(HandoverPreparationInfo)
	if !ok {
		return HandoverPreparationInfo{}, fmt.Errorf("expected handover preparation info: %w", ErrUnexpectedKind)
	}
	return info, nil
}

func (c *IdealCodec) EncodeHandoverCommand(msg RrcConnectionReconfiguration) ([]byte, error) {
	return c.store(msg), nil
}

func (c *IdealCodec) DecodeHandoverCommand(b []byte) (RrcConnectionReconfiguration, error) {
	msg, err := c.take(b)
	if err != nil {
		return RrcConnectionReconfiguration{}, err
	}
	cmd, ok := msg.(RrcConnectionReconfiguration)
	if !ok {
		return RrcConnectionReconfiguration{}, fmt.Errorf("expected handover command: %w", ErrUnexpectedKind)
	}
	return cmd, nil
}
