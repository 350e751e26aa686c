package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// RecordSize is the size of an encoded stake record:
// discriminator, owner, staked amount, points, last update, bump.
const RecordSize = 8 + 32 + 8 + 8 + 8 + 1

// recordDiscriminator tags encoded stake records in storage.
var recordDiscriminator = func() [8]byte {
	h := sha256.Sum256([]byte("account:StakeRecord"))
	var d [8]byte
	copy(d[:], h[:8])
	return d
}()

// StakeRecord is the persisted per-owner staking state.
type StakeRecord struct {
	// Owner is fixed at creation.
	Owner Address
	// StakedAmount is the quantity currently locked in custody.
	StakedAmount uint64
	// TotalPoints accumulates StakedAmount × seconds. Only settlement
	// increases it and only a claim resets it.
	TotalPoints uint64
	// LastUpdateTime is the unix time (seconds) of the last settlement.
	// It never decreases.
	LastUpdateTime int64
	// Bump proves the record address was derived from Owner.
	Bump uint8
}

// NewStakeRecord returns an empty record for owner created at now.
func NewStakeRecord(owner Address, bump uint8, now int64) StakeRecord {
	return StakeRecord{
		Owner:          owner,
		LastUpdateTime: now,
		Bump:           bump,
	}
}

// MarshalBinary encodes the record in its fixed-width storage layout.
// Integers are little-endian.
func (r StakeRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	copy(buf[0:8], recordDiscriminator[:])
	copy(buf[8:40], r.Owner[:])
	binary.LittleEndian.PutUint64(buf[40:48], r.StakedAmount)
	binary.LittleEndian.PutUint64(buf[48:56], r.TotalPoints)
	binary.LittleEndian.PutUint64(buf[56:64], uint64(r.LastUpdateTime))
	buf[64] = r.Bump
	return buf, nil
}

// UnmarshalBinary decodes a record from its storage layout.
func (r *StakeRecord) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedRecord, RecordSize, len(data))
	}
	if [8]byte(data[0:8]) != recordDiscriminator {
		return fmt.Errorf("%w: bad discriminator %x", ErrMalformedRecord, data[0:8])
	}
	copy(r.Owner[:], data[8:40])
	r.StakedAmount = binary.LittleEndian.Uint64(data[40:48])
	r.TotalPoints = binary.LittleEndian.Uint64(data[48:56])
	r.LastUpdateTime = int64(binary.LittleEndian.Uint64(data[56:64]))
	r.Bump = data[64]
	return nil
}

// Bytes is MarshalBinary without the error.
func (r StakeRecord) Bytes() []byte {
	b, _ := r.MarshalBinary() // fixed layout never fails
	return b
}
