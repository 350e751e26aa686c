package stakegrpc_test

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/stakeberry"
	"github.com/blockberries/stakeberry/app"
	stakegrpc "github.com/blockberries/stakeberry/grpc"
	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/server"
	stakeberrytest "github.com/blockberries/stakeberry/testing"
	"github.com/blockberries/stakeberry/types"
)

var alice = ledger.Address{0xA1}

// serve starts app behind a gRPC server on a random port and returns a
// connected client. Both are stopped when the test ends.
func serve(t *testing.T, a stakeberry.Lifecycle) *stakegrpc.Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	gs := stakegrpc.NewGRPCServer(a, zerolog.Nop()).NewServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.GracefulStop)

	client, err := stakegrpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(app.WithClock(ledger.FixedClock(1_000)))
	require.NoError(t, err)
	return a
}

func genesis(t *testing.T) types.GenesisDoc {
	t.Helper()
	state, err := app.MarshalGenesis(app.GenesisState{Balances: []app.GenesisBalance{
		{Address: alice.String(), Amount: 5_000},
	}})
	require.NoError(t, err)
	doc := stakeberrytest.DefaultGenesis()
	doc.AppState = state
	return doc
}

func encode(t *testing.T, ins ledger.Instruction) types.Tx {
	return stakeberrytest.EncodeTx(t, ins)
}

func TestGRPC_Compliance(t *testing.T) {
	stakeberrytest.RunComplianceSuite(t, func() stakeberry.Lifecycle {
		return serve(t, newApp(t))
	})
}

func TestGRPC_Lifecycle(t *testing.T) {
	a := newApp(t)
	client := serve(t, a)
	ctx := context.Background()

	doc := genesis(t)
	resp, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)
	require.NotNil(t, resp.AppHash)
	require.Nil(t, resp.LastBlock)
	require.True(t, client.Capabilities().Has(types.CapSimulation))

	rec, _, err := a.Ledger().RecordAddress(alice)
	require.NoError(t, err)

	outcome, err := client.ExecuteBlock(ctx, stakeberrytest.MakeBlockAt(1, 100,
		encode(t, ledger.CreateRecordIx(alice)),
		encode(t, ledger.StakeIx(alice, rec, 2_000)),
	))
	require.NoError(t, err)
	require.Len(t, outcome.TxOutcomes, 2)
	for _, o := range outcome.TxOutcomes {
		require.True(t, o.OK(), o.Info)
	}
	var created ledger.StakeRecord
	require.NoError(t, created.UnmarshalBinary(outcome.TxOutcomes[0].Data))
	require.Equal(t, int64(100), created.LastUpdateTime)

	_, err = client.Commit(ctx)
	require.NoError(t, err)

	res, err := client.Query(ctx, types.StateQuery{Path: app.PathRecord, Data: rec[:]})
	require.NoError(t, err)
	require.True(t, res.OK(), res.Info)
	var stored ledger.StakeRecord
	require.NoError(t, stored.UnmarshalBinary(res.Value))
	require.Equal(t, alice, stored.Owner)
	require.Equal(t, uint64(2_000), stored.StakedAmount)
	require.Equal(t, uint64(1), res.Height)
}

func TestGRPC_CheckTx(t *testing.T) {
	a := newApp(t)
	client := serve(t, a)
	ctx := context.Background()

	doc := genesis(t)
	_, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)
	rec, _, _ := a.Ledger().RecordAddress(alice)

	v, err := client.CheckTx(ctx, encode(t, ledger.StakeIx(alice, rec, 10)), types.MempoolFirstSeen)
	require.NoError(t, err)
	require.True(t, v.Accepted(), v.Info)
	require.Equal(t, alice.String(), v.Sender)

	v, err = client.CheckTx(ctx, encode(t, ledger.UnstakeIx(alice, rec, 0)), types.MempoolFirstSeen)
	require.NoError(t, err)
	require.Equal(t, ledger.CodeInvalidAmount, v.Code)
}

func TestGRPC_Simulate(t *testing.T) {
	a := newApp(t)
	client := serve(t, a)
	ctx := context.Background()

	doc := genesis(t)
	_, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)

	sim := client.AsSimulator()
	require.NotNil(t, sim)
	out, err := sim.Simulate(ctx, encode(t, ledger.CreateRecordIx(alice)))
	require.NoError(t, err)
	require.True(t, out.OK(), out.Info)

	rec, _, _ := a.Ledger().RecordAddress(alice)
	res, err := client.Query(ctx, types.StateQuery{Path: app.PathRecord, Data: rec[:]})
	require.NoError(t, err)
	require.Equal(t, ledger.CodeRecordNotFound, res.Code, "simulation must not persist")
}

func TestGRPC_SimulateThroughHarness(t *testing.T) {
	a := newApp(t)
	h := stakeberrytest.NewHarness(t, serve(t, a))
	resp := h.Genesis(genesis(t))
	require.True(t, resp.Capabilities.Has(types.CapSimulation))
	require.NotNil(t, h.Server().AsSimulator())

	out := h.Simulate(encode(t, ledger.CreateRecordIx(alice)))
	require.True(t, out.OK(), out.Info)

	rec, _, _ := a.Ledger().RecordAddress(alice)
	require.Equal(t, ledger.CodeRecordNotFound, h.Query(app.PathRecord, rec[:]).Code)
}

func TestGRPC_NoSimulator(t *testing.T) {
	client := serve(t, &stakeberrytest.MockApp{})
	_, err := client.Handshake(context.Background(), types.HandshakeRequest{})
	require.NoError(t, err)
	require.Nil(t, client.AsSimulator())
}

func TestGRPC_ErrorMapping(t *testing.T) {
	t.Run("halt", func(t *testing.T) {
		mock := &stakeberrytest.MockApp{
			HandshakeFn: func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error) {
				return types.HandshakeResponse{}, stakeberry.NewHaltError(7, "state diverged")
			},
		}
		client := serve(t, mock)
		_, err := client.Handshake(context.Background(), types.HandshakeRequest{})
		h, ok := stakeberry.IsHalt(err)
		require.True(t, ok, "got %v", err)
		require.Equal(t, uint64(7), h.Height)
		require.Equal(t, "state diverged", h.Reason)
	})

	t.Run("unexpected_height", func(t *testing.T) {
		client := serve(t, newApp(t))
		ctx := context.Background()
		doc := stakeberrytest.DefaultGenesis()
		_, err := client.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
		require.NoError(t, err)

		_, err = client.ExecuteBlock(ctx, stakeberrytest.MakeEmptyBlock(5))
		require.ErrorIs(t, err, server.ErrUnexpectedHeight)

		// The failed block leaves the client ready for the right one.
		_, err = client.ExecuteBlock(ctx, stakeberrytest.MakeEmptyBlock(1))
		require.NoError(t, err)
	})
}
