package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/blockberries/stakeberry/ledger"
)

// ErrInvalidGenesis is returned for a genesis app state that cannot be
// applied.
var ErrInvalidGenesis = errors.New("invalid genesis app state")

// GenesisState is the JSON document carried in GenesisDoc.AppState.
//
//	{"program_id": "<base58>", "balances": [{"address": "<base58>", "amount": 10000}]}
type GenesisState struct {
	// ProgramID, when set, must match the program the app was built for.
	ProgramID string           `json:"program_id,omitempty"`
	Balances  []GenesisBalance `json:"balances" validate:"dive"`
}

// GenesisBalance funds one principal's external balance.
type GenesisBalance struct {
	Address string `json:"address" validate:"required"`
	Amount  uint64 `json:"amount" validate:"gt=0"`
}

var validate = validator.New()

// ParseGenesis decodes and validates a genesis app state. An empty
// document yields an empty state.
func ParseGenesis(data []byte) (GenesisState, error) {
	var g GenesisState
	if len(data) == 0 {
		return g, nil
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return GenesisState{}, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := validate.Struct(g); err != nil {
		return GenesisState{}, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	return g, nil
}

// Accounts builds the initial accounts. Duplicate addresses are summed
// with overflow checking.
func (g GenesisState) Accounts() (*ledger.MemAccounts, error) {
	acc := ledger.NewMemAccounts()
	for i, b := range g.Balances {
		addr, err := ledger.ParseAddress(b.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %d: %v", ErrInvalidGenesis, i, err)
		}
		sum, ok := ledger.AddUint64(acc.Balance(addr), b.Amount)
		if !ok {
			return nil, fmt.Errorf("%w: balance for %s: %w", ErrInvalidGenesis, addr, ledger.ErrMathOverflow)
		}
		acc.SetBalance(addr, sum)
	}
	return acc, nil
}

// MarshalGenesis encodes g for GenesisDoc.AppState.
func MarshalGenesis(g GenesisState) ([]byte, error) {
	return json.Marshal(g)
}
