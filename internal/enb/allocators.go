package enb

import (
	"errors"
	"fmt"
)

var (
	ErrRntiExhausted         = errors.New("no rnti available")
	ErrSrsExhausted          = errors.New("no srs configuration index available")
	ErrInvalidSrsPeriodicity = errors.New("unsupported srs periodicity")
	ErrSrsInUse              = errors.New("srs periodicity cannot change while indices are in use")
	ErrUnknownSrsIndex       = errors.New("srs configuration index not in use")
)

// RntiAllocator hands out C-RNTIs by probing forward from the last issued
// value. 0 is never issued.
type RntiAllocator struct {
	last uint16
}

func (a *RntiAllocator) Allocate(inUse func(rnti uint16) bool) (uint16, error) {
	rnti := a.last
	for i := 0; i < 0xFFFF; i++ {
		rnti++
		if rnti == 0 {
			rnti = 1
		}
		if !inUse(rnti) {
			a.last = rnti
			return rnti, nil
		}
	}
	return 0, ErrRntiExhausted
}

func (a *RntiAllocator) Last() uint16 {
	return a.last
}

var (
	srsPeriodicity = [...]uint16{0, 2, 5, 10, 20, 40, 80, 160, 320}
	srsCiLow       = [...]uint16{0, 0, 2, 7, 17, 37, 77, 157, 317}
	srsCiHigh      = [...]uint16{0, 1, 6, 16, 36, 76, 156, 316, 636}
)

// SrsAllocator manages the SRS configuration indices of one cell. The
// window [ciLow, ciHigh] of a periodicity holds exactly periodicity indices.
type SrsAllocator struct {
	periodicityId int
	inUse         map[uint16]bool
}

func NewSrsAllocator(periodicity uint16) (*SrsAllocator, error) {
	a := &SrsAllocator{inUse: make(map[uint16]bool)}
	if err := a.SetPeriodicity(periodicity); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SrsAllocator) SetPeriodicity(p uint16) error {
	if len(a.inUse) > 0 {
		return ErrSrsInUse
	}
	for id := 1; id < len(srsPeriodicity); id++ {
		if srsPeriodicity[id] == p {
			a.periodicityId = id
			return nil
		}
	}
	return fmt.Errorf("periodicity %d: %w", p, ErrInvalidSrsPeriodicity)
}

func (a *SrsAllocator) Periodicity() uint16 {
	return srsPeriodicity[a.periodicityId]
}

func (a *SrsAllocator) Allocate() (uint16, error) {
	low, high := srsCiLow[a.periodicityId], srsCiHigh[a.periodicityId]
	if len(a.inUse) >= int(a.Periodicity()) {
		return 0, fmt.Errorf("periodicity %d: %w", a.Periodicity(), ErrSrsExhausted)
	}
	if len(a.inUse) == 0 {
		a.inUse[low] = true
		return low, nil
	}
	var max uint16
	for ci := range a.inUse {
		if ci > max {
			max = ci
		}
	}
	if max < high {
		a.inUse[max+1] = true
		return max + 1, nil
	}
	for ci := low; ci < high; ci++ {
		if !a.inUse[ci] {
			a.inUse[ci] = true
			return ci, nil
		}
	}
	return 0, fmt.Errorf("periodicity %d: %w", a.Periodicity(), ErrSrsExhausted)
}

func (a *SrsAllocator) Release(ci uint16) error {
	if !a.inUse[ci] {
		return fmt.Errorf("index %d: %w", ci, ErrUnknownSrsIndex)
	}
	delete(a.inUse, ci)
	return nil
}

func (a *SrsAllocator) InUse() int {
	return len(a.inUse)
}
