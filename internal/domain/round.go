package domain

import (
	"fmt"
	"math/big"
)

// sequenceBits is the width of the per-phase sequence field inside a
// composite oracle round id.
const sequenceBits = 64

// maxRoundIDBits bounds the composite id: a 64-bit phase over a 64-bit
// sequence.
const maxRoundIDBits = 2 * sequenceBits

// Round identifies one oracle observation. Phase changes only when the oracle
// is reconfigured; Sequence increases by one per observation within a phase.
type Round struct {
	Phase    uint64
	Sequence uint64
}

// EncodeRound returns the composite id phase<<64 | sequence.
func EncodeRound(phase, sequence uint64) *big.Int {
	id := new(big.Int).SetUint64(phase)
	id.Lsh(id, sequenceBits)
	return id.Or(id, new(big.Int).SetUint64(sequence))
}

// DecodeRound splits a composite id back into its phase and sequence. It is
// the exact inverse of EncodeRound.
func DecodeRound(id *big.Int) (Round, error) {
	if id == nil || id.Sign() < 0 {
		return Round{}, fmt.Errorf("domain: invalid round id %v", id)
	}
	if id.BitLen() > maxRoundIDBits {
		return Round{}, fmt.Errorf("domain: round id %s exceeds %d bits", id, maxRoundIDBits)
	}

	phase := new(big.Int).Rsh(id, sequenceBits)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), sequenceBits), big.NewInt(1))
	seq := new(big.Int).And(id, mask)

	return Round{Phase: phase.Uint64(), Sequence: seq.Uint64()}, nil
}

// ID returns the composite on-chain id of r.
func (r Round) ID() *big.Int {
	return EncodeRound(r.Phase, r.Sequence)
}

// Next returns the round that follows r within the same phase.
func (r Round) Next() Round {
	return Round{Phase: r.Phase, Sequence: r.Sequence + 1}
}

// Prev returns the round that precedes r within the same phase. Sequence is
// unsigned, so calling Prev on the first round is an arithmetic defect and
// yields ErrRoundUnderflow.
func (r Round) Prev() (Round, error) {
	if r.Sequence == 0 {
		return Round{}, fmt.Errorf("%w: phase %d", ErrRoundUnderflow, r.Phase)
	}
	return Round{Phase: r.Phase, Sequence: r.Sequence - 1}, nil
}

func (r Round) String() string {
	return fmt.Sprintf("%d/%d", r.Phase, r.Sequence)
}

// RoundObservation is one published oracle answer. Timestamps are unix
// seconds as reported by the feed.
type RoundObservation struct {
	Round     Round
	Answer    *big.Int
	StartedAt int64
	UpdatedAt int64
}
