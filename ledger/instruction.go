package ledger

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Kind selects the operation an instruction performs.
type Kind uint8

const (
	KindCreateRecord Kind = iota + 1
	KindStake
	KindUnstake
	KindClaimPoints
	KindGetPoints
)

func (k Kind) String() string {
	switch k {
	case KindCreateRecord:
		return "create"
	case KindStake:
		return "stake"
	case KindUnstake:
		return "unstake"
	case KindClaimPoints:
		return "claim"
	case KindGetPoints:
		return "refresh"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid returns true for the five known kinds.
func (k Kind) Valid() bool {
	return k >= KindCreateRecord && k <= KindGetPoints
}

// Instruction is one staking operation. Signer is the principal the
// host runtime authenticated for the enclosing transaction. Record is
// the storage address the instruction operates on; for KindCreateRecord
// it may be left zero, in which case it is derived from Signer.
type Instruction struct {
	Kind   Kind    `cramberry:"1"`
	Signer Address `cramberry:"2"`
	Record Address `cramberry:"3"`
	Amount uint64  `cramberry:"4"`
}

// ValidateBasic performs stateless checks.
func (ins Instruction) ValidateBasic() error {
	if !ins.Kind.Valid() {
		return fmt.Errorf("%w: kind %d", ErrUnknownInstruction, uint8(ins.Kind))
	}
	if ins.Signer.IsZero() {
		return fmt.Errorf("%w: missing signer", ErrMalformedInstruction)
	}
	if ins.Kind != KindCreateRecord && ins.Record.IsZero() {
		return fmt.Errorf("%w: missing record address", ErrMalformedInstruction)
	}
	return nil
}

// Encode serializes the instruction as a transaction payload.
func (ins Instruction) Encode() ([]byte, error) {
	data, err := cramberry.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("encode instruction: %w", err)
	}
	return data, nil
}

// DecodeInstruction parses a transaction payload.
func DecodeInstruction(data []byte) (Instruction, error) {
	var ins Instruction
	if len(data) == 0 {
		return ins, fmt.Errorf("%w: empty payload", ErrMalformedInstruction)
	}
	if err := cramberry.Unmarshal(data, &ins); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrMalformedInstruction, err)
	}
	return ins, nil
}

// CreateRecordIx builds an instruction creating owner's record.
func CreateRecordIx(owner Address) Instruction {
	return Instruction{Kind: KindCreateRecord, Signer: owner}
}

// StakeIx builds a deposit instruction.
func StakeIx(owner, record Address, amount uint64) Instruction {
	return Instruction{Kind: KindStake, Signer: owner, Record: record, Amount: amount}
}

// UnstakeIx builds a withdrawal instruction.
func UnstakeIx(owner, record Address, amount uint64) Instruction {
	return Instruction{Kind: KindUnstake, Signer: owner, Record: record, Amount: amount}
}

// ClaimPointsIx builds a claim instruction.
func ClaimPointsIx(owner, record Address) Instruction {
	return Instruction{Kind: KindClaimPoints, Signer: owner, Record: record}
}

// GetPointsIx builds a refresh instruction.
func GetPointsIx(owner, record Address) Instruction {
	return Instruction{Kind: KindGetPoints, Signer: owner, Record: record}
}
