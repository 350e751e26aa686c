package app

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/types"
)

// appHash fingerprints accounts: every record layout, then every
// balance, each in ascending address order.
func appHash(acc *ledger.MemAccounts) types.AppHash {
	h := sha256.New()
	var amount [8]byte
	for _, addr := range acc.RecordAddresses() {
		rec, _ := acc.Record(addr)
		h.Write([]byte{'r'})
		h.Write(addr[:])
		h.Write(rec.Bytes())
	}
	for _, addr := range acc.BalanceAddresses() {
		binary.BigEndian.PutUint64(amount[:], acc.Balance(addr))
		h.Write([]byte{'b'})
		h.Write(addr[:])
		h.Write(amount[:])
	}
	var out types.AppHash
	copy(out[:], h.Sum(nil))
	return out
}
