package types

// MempoolContext says whether CheckTx sees a transaction for the first
// time or re-checks it against newly committed state.
type MempoolContext uint8

const (
	MempoolFirstSeen    MempoolContext = 1
	MempoolRevalidation MempoolContext = 2
)

func (c MempoolContext) String() string {
	switch c {
	case MempoolFirstSeen:
		return "first_seen"
	case MempoolRevalidation:
		return "revalidation"
	default:
		return "unknown"
	}
}

// GateVerdict is the admission decision for one transaction.
type GateVerdict struct {
	// Zero admits the transaction. Otherwise an application result code.
	Code uint32 `cramberry:"1"`
	// Rejection reason. Not part of consensus.
	Info string `cramberry:"2"`
	// Higher priorities are proposed first.
	Priority int64 `cramberry:"3"`
	// Signer address, used by the host to sequence one sender's txs.
	Sender string `cramberry:"4"`
}

// Admit builds an accepting verdict.
func Admit(priority int64, sender string) GateVerdict {
	return GateVerdict{Priority: priority, Sender: sender}
}

// Reject builds a rejecting verdict. code must be non-zero.
func Reject(code uint32, info string) GateVerdict {
	return GateVerdict{Code: code, Info: info}
}

// Accepted reports whether the transaction was admitted.
func (v GateVerdict) Accepted() bool { return v.Code == 0 }
