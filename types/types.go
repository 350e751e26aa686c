// Package types defines the data exchanged between the host runtime and
// the staking application.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Codec registration for transports
// lives in the transport packages.
package types

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// AppHash fingerprints the application state after execution.
type AppHash [32]byte

// Tx is an opaque transaction. The host never inspects its contents.
type Tx []byte

// QueryPath selects what a state query reads (e.g. "/record").
type QueryPath string

// BlockID identifies a point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}
