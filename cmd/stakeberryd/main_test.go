package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/blockberries/stakeberry/config"
	stakegrpc "github.com/blockberries/stakeberry/grpc"
	"github.com/blockberries/stakeberry/ledger"
	stakeberrytest "github.com/blockberries/stakeberry/testing"
	"github.com/blockberries/stakeberry/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "stakeberryd dev\n", out)
}

func TestAddress(t *testing.T) {
	owner := ledger.Address{0xA1}
	want, bump, err := ledger.FindAddress(ledger.DefaultProgramID, owner)
	require.NoError(t, err)

	out, err := execute(t, "address", owner.String())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%s %d\n", want, bump), out)

	other := ledger.Address{0x77}
	want, bump, err = ledger.FindAddress(other, owner)
	require.NoError(t, err)
	out, err = execute(t, "address", "--program", other.String(), owner.String())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%s %d\n", want, bump), out)

	_, err = execute(t, "address", "0OIl")
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakeberry.toml")
	out, err := execute(t, "init", path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "wrote "))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	_, err = execute(t, "init", path)
	require.Error(t, err)
	_, err = execute(t, "init", "--force", path)
	require.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.Log{Level: "loud", Format: "json"}, &bytes.Buffer{})
	require.Error(t, err)

	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"message":"shown"`)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.GRPC.ListenAddress = freeAddr(t)
	cfg.Metrics.ListenAddress = ""
	cfg.Storage.InMemory = true
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	client, err := stakegrpc.Dial(cfg.GRPC.ListenAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
	)
	require.NoError(t, err)
	defer client.Close()

	doc := stakeberrytest.DefaultGenesis()
	doc.ChainID = cfg.ChainID
	hctx, hcancel := context.WithTimeout(ctx, 5*time.Second)
	defer hcancel()
	_, err = client.Handshake(hctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}
