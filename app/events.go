package app

import (
	"strconv"

	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/types"
)

// Event attribute keys.
const (
	AttrOwner  = "owner"
	AttrRecord = "record"
	AttrAmount = "amount"
	AttrStaked = "staked"
	AttrPoints = "points"
)

// resultEvent describes a successful instruction. The event kind is the
// instruction kind's name.
func resultEvent(res ledger.Result) types.Event {
	attrs := []types.EventAttribute{
		{Key: AttrOwner, Value: res.Owner.String(), Index: true},
		{Key: AttrRecord, Value: res.Record.String(), Index: true},
	}
	switch res.Kind {
	case ledger.KindStake, ledger.KindUnstake, ledger.KindClaimPoints:
		attrs = append(attrs, types.EventAttribute{Key: AttrAmount, Value: u64(res.Amount)})
	}
	attrs = append(attrs,
		types.EventAttribute{Key: AttrStaked, Value: u64(res.State.StakedAmount)},
		types.EventAttribute{Key: AttrPoints, Value: u64(res.State.TotalPoints)},
	)
	return types.Event{Kind: res.Kind.String(), Attributes: attrs}
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
