package ledger

import (
	"bytes"
	"sort"
)

// Accounts is the state an operation reads and writes: stake records
// keyed by their storage address, and the external balance of every
// principal (including the custody balance held at a record address).
type Accounts interface {
	Record(addr Address) (StakeRecord, bool)
	SetRecord(addr Address, rec StakeRecord)
	Balance(addr Address) uint64
	SetBalance(addr Address, amount uint64)
}

// MemAccounts is a map-backed Accounts. It is not safe for concurrent use.
type MemAccounts struct {
	Records  map[Address]StakeRecord
	Balances map[Address]uint64
}

// NewMemAccounts returns an empty MemAccounts.
func NewMemAccounts() *MemAccounts {
	return &MemAccounts{
		Records:  make(map[Address]StakeRecord),
		Balances: make(map[Address]uint64),
	}
}

func (m *MemAccounts) Record(addr Address) (StakeRecord, bool) {
	r, ok := m.Records[addr]
	return r, ok
}

func (m *MemAccounts) SetRecord(addr Address, rec StakeRecord) {
	m.Records[addr] = rec
}

func (m *MemAccounts) Balance(addr Address) uint64 {
	return m.Balances[addr]
}

// SetBalance stores amount. Zero balances are dropped so that equal
// states always have equal contents.
func (m *MemAccounts) SetBalance(addr Address, amount uint64) {
	if amount == 0 {
		delete(m.Balances, addr)
		return
	}
	m.Balances[addr] = amount
}

// Clone returns a deep copy.
func (m *MemAccounts) Clone() *MemAccounts {
	c := &MemAccounts{
		Records:  make(map[Address]StakeRecord, len(m.Records)),
		Balances: make(map[Address]uint64, len(m.Balances)),
	}
	for a, r := range m.Records {
		c.Records[a] = r
	}
	for a, b := range m.Balances {
		c.Balances[a] = b
	}
	return c
}

// RecordAddresses returns all record addresses in ascending byte order.
func (m *MemAccounts) RecordAddresses() []Address {
	return sortedKeys(m.Records)
}

// BalanceAddresses returns all funded addresses in ascending byte order.
func (m *MemAccounts) BalanceAddresses() []Address {
	return sortedKeys(m.Balances)
}

func sortedKeys[V any](m map[Address]V) []Address {
	keys := make([]Address, 0, len(m))
	for a := range m {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}

// overlay buffers writes on top of a parent until flush is called.
// Discarding the overlay discards the writes.
type overlay struct {
	parent   Accounts
	records  map[Address]StakeRecord
	balances map[Address]uint64
}

func newOverlay(parent Accounts) *overlay {
	return &overlay{
		parent:   parent,
		records:  make(map[Address]StakeRecord),
		balances: make(map[Address]uint64),
	}
}

func (o *overlay) Record(addr Address) (StakeRecord, bool) {
	if r, ok := o.records[addr]; ok {
		return r, true
	}
	return o.parent.Record(addr)
}

func (o *overlay) SetRecord(addr Address, rec StakeRecord) {
	o.records[addr] = rec
}

func (o *overlay) Balance(addr Address) uint64 {
	if b, ok := o.balances[addr]; ok {
		return b
	}
	return o.parent.Balance(addr)
}

func (o *overlay) SetBalance(addr Address, amount uint64) {
	o.balances[addr] = amount
}

func (o *overlay) flush() {
	for a, r := range o.records {
		o.parent.SetRecord(a, r)
	}
	for a, b := range o.balances {
		o.parent.SetBalance(a, b)
	}
}
