package bearer

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
)

const (
	SRB0_LCID  uint8 = 0
	SRB1_LCID  uint8 = 1
	MAX_DRB_ID uint8 = 32
	lcidOffset uint8 = 2
	minDrbLcid uint8 = 3
	maxDrbLcid uint8 = MAX_DRB_ID + lcidOffset
)

var (
	ErrDrbIdExhausted = errors.New("no data radio bearer id available")
	ErrDuplicateDrbId = errors.New("data radio bearer id already in use")
	ErrDuplicateLcid  = errors.New("logical channel id already in use")
	ErrInvalidLcid    = errors.New("invalid logical channel id for a data radio bearer")
	ErrUnknownDrb     = errors.New("unknown data radio bearer")
	ErrInvalidDrbId   = errors.New("invalid data radio bearer id")
	ErrSrb1Exists     = errors.New("signaling radio bearer 1 already exists")
)

type Direction int

const (
	DIRECTION_BIDIRECTIONAL Direction = iota
	DIRECTION_DOWNLINK
	DIRECTION_UPLINK
)

// LcidForDrb maps a DRB identity to its logical channel (lcids 0 and 1
// belong to the signaling bearers).
func LcidForDrb(drbid uint8) uint8 {
	return drbid + lcidOffset
}

func DrbForLcid(lcid uint8) uint8 {
	return lcid - lcidOffset
}

// BearerIdForDrb and DrbForBearerId are the identity mapping between EPS
// bearer ids and DRB identities.
func BearerIdForDrb(drbid uint8) uint8 {
	return drbid
}

func DrbForBearerId(bid uint8) uint8 {
	return bid
}

type SignalingRadioBearer struct {
	SrbIdentity          uint8
	Lcid                 uint8
	LogicalChannelConfig LogicalChannelConfig
	Rlc                  *Rlc
	Pdcp                 *Pdcp
}

type DataRadioBearer struct {
	EpsBearerIdentity     uint8
	DrbIdentity           uint8
	Lcid                  uint8
	Bearer                EpsBearer
	Direction             Direction
	LogicalChannelConfig  LogicalChannelConfig
	Rlc                   *Rlc
	Pdcp                  *Pdcp
	GtpTeid               uint32
	TransportLayerAddress netip.Addr
}

func (d *DataRadioBearer) RlcMode() RlcMode {
	if d.Rlc == nil {
		return RLC_SM
	}
	return d.Rlc.Mode
}

// NewDataRadioBearer builds the bearer record with its RLC and, unless the
// mode is SM, its PDCP entity.
func NewDataRadioBearer(drbid, epsBearerId uint8, b EpsBearer, mode RlcMode) *DataRadioBearer {
	drb := &DataRadioBearer{
		EpsBearerIdentity:    epsBearerId,
		DrbIdentity:          drbid,
		Lcid:                 LcidForDrb(drbid),
		Bearer:               b,
		LogicalChannelConfig: LogicalChannelConfigFor(b),
		Rlc:                  NewRlc(mode),
	}
	if NeedsPdcp(mode) {
		drb.Pdcp = &Pdcp{}
	}
	return drb
}

// Store owns the signaling and data radio bearers of one UE endpoint.
type Store struct {
	srb0      *SignalingRadioBearer
	srb1      *SignalingRadioBearer
	drbs      map[uint8]*DataRadioBearer
	lastDrbId uint8
}

func NewStore() *Store {
	return &Store{
		srb0: &SignalingRadioBearer{
			SrbIdentity: 0,
			Lcid:        SRB0_LCID,
			Rlc:         NewRlc(RLC_TM),
		},
		drbs: make(map[uint8]*DataRadioBearer),
	}
}

func (s *Store) Srb0() *SignalingRadioBearer {
	return s.srb0
}

func (s *Store) Srb1() *SignalingRadioBearer {
	return s.srb1
}

// SetupSrb1 creates signaling bearer 1 over an AM RLC with PDCP.
func (s *Store) SetupSrb1(cfg LogicalChannelConfig) (*SignalingRadioBearer, error) {
	if s.srb1 != nil {
		return nil, ErrSrb1Exists
	}
	s.srb1 = &SignalingRadioBearer{
		SrbIdentity:          1,
		Lcid:                 SRB1_LCID,
		LogicalChannelConfig: cfg,
		Rlc:                  NewRlc(RLC_AM),
		Pdcp:                 &Pdcp{},
	}
	return s.srb1, nil
}

// ResetSrb1 drops signaling bearer 1 so that a fresh one can be set up.
func (s *Store) ResetSrb1() {
	s.srb1 = nil
}

// AllocateDrbId probes the DRB identity space starting after the last
// allocated value, skipping 0 and identities in use.
func (s *Store) AllocateDrbId() (uint8, error) {
	id := s.lastDrbId
	for i := uint8(0); i < MAX_DRB_ID; i++ {
		id++
		if id > MAX_DRB_ID {
			id = 1
		}
		if _, used := s.drbs[id]; !used {
			s.lastDrbId = id
			return id, nil
		}
	}
	return 0, ErrDrbIdExhausted
}

func (s *Store) AddDrb(drb *DataRadioBearer) error {
	if drb.DrbIdentity == 0 || drb.DrbIdentity > MAX_DRB_ID {
		return fmt.Errorf("drb id %d: %w", drb.DrbIdentity, ErrInvalidDrbId)
	}
	if _, used := s.drbs[drb.DrbIdentity]; used {
		return fmt.Errorf("drb id %d: %w", drb.DrbIdentity, ErrDuplicateDrbId)
	}
	if drb.Lcid < minDrbLcid || drb.Lcid > maxDrbLcid {
		return fmt.Errorf("lcid %d: %w", drb.Lcid, ErrInvalidLcid)
	}
	for _, other := range s.drbs {
		if other.Lcid == drb.Lcid {
			return fmt.Errorf("lcid %d: %w", drb.Lcid, ErrDuplicateLcid)
		}
	}
	s.drbs[drb.DrbIdentity] = drb
	return nil
}

func (s *Store) RemoveDrb(drbid uint8) (*DataRadioBearer, error) {
	drb, ok := s.drbs[drbid]
	if !ok {
		return nil, fmt.Errorf("drb id %d: %w", drbid, ErrUnknownDrb)
	}
	delete(s.drbs, drbid)
	return drb, nil
}

func (s *Store) Drb(drbid uint8) (*DataRadioBearer, bool) {
	drb, ok := s.drbs[drbid]
	return drb, ok
}

func (s *Store) DrbByEpsBearerId(ebid uint8) (*DataRadioBearer, bool) {
	for _, drb := range s.drbs {
		if drb.EpsBearerIdentity == ebid {
			return drb, true
		}
	}
	return nil, false
}

func (s *Store) DrbByLcid(lcid uint8) (*DataRadioBearer, bool) {
	for _, drb := range s.drbs {
		if drb.Lcid == lcid {
			return drb, true
		}
	}
	return nil, false
}

// Drbs returns the data bearers ordered by DRB identity.
func (s *Store) Drbs() []*DataRadioBearer {
	out := make([]*DataRadioBearer, 0, len(s.drbs))
	for _, id := range s.DrbIds() {
		out = append(out, s.drbs[id])
	}
	return out
}

func (s *Store) DrbIds() []uint8 {
	ids := make([]uint8, 0, len(s.drbs))
	for id := range s.drbs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) ClearDrbs() {
	s.drbs = make(map[uint8]*DataRadioBearer)
}

func (s *Store) Len() int {
	return len(s.drbs)
}

// SrbIds returns the identities of the signaling bearers present.
func (s *Store) SrbIds() []uint8 {
	ids := []uint8{s.srb0.SrbIdentity}
	if s.srb1 != nil {
		ids = append(ids, s.srb1.SrbIdentity)
	}
	return ids
}

// Validate checks the bearer invariants: signaling bearers sit on lcids 0
// and 1, and DRB identities and lcids map to each other one-to-one.
func (s *Store) Validate() error {
	if s.srb0 == nil || s.srb0.SrbIdentity != 0 || s.srb0.Lcid != SRB0_LCID {
		return fmt.Errorf("srb0 misconfigured")
	}
	if s.srb1 != nil && (s.srb1.SrbIdentity != 1 || s.srb1.Lcid != SRB1_LCID) {
		return fmt.Errorf("srb1 misconfigured")
	}
	lcids := make(map[uint8]uint8, len(s.drbs))
	for id, drb := range s.drbs {
		if drb.DrbIdentity != id {
			return fmt.Errorf("drb %d stored under id %d", drb.DrbIdentity, id)
		}
		if drb.Lcid < minDrbLcid {
			return fmt.Errorf("drb %d: %w", id, ErrInvalidLcid)
		}
		if other, dup := lcids[drb.Lcid]; dup {
			return fmt.Errorf("drbs %d and %d share lcid %d: %w", other, id, drb.Lcid, ErrDuplicateLcid)
		}
		lcids[drb.Lcid] = id
	}
	return nil
}
