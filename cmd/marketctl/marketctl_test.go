package main

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketindexer/internal/crypto"
	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/factory"
)

func init() {
	color.NoColor = true
}

func TestBuildCreateRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	req, err := buildCreateRequest([]string{"  Will BTC hit 200k in 2026? ", "Crypto", "30"}, "", now)
	require.NoError(t, err)
	require.Equal(t, "Will BTC hit 200k in 2026?", req.Question)
	require.Equal(t, "crypto", req.Category)
	require.Equal(t, now.Add(30*24*time.Hour), req.ResolutionTime)

	req, err = buildCreateRequest([]string{"Will it snow in Lisbon?", "other", "0"}, "2026-12-25T00:00:00Z", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC), req.ResolutionTime)

	_, err = buildCreateRequest([]string{"q", "c", "-3"}, "", now)
	require.Error(t, err)
	_, err = buildCreateRequest([]string{"q", "c", "1"}, "christmas", now)
	require.Error(t, err)
}

func TestParseResolveArgs(t *testing.T) {
	id, outcome, err := parseResolveArgs([]string{"7", "1"})
	require.NoError(t, err)
	require.Equal(t, int64(7), id.Int64())
	require.Equal(t, domain.OutcomeYes, outcome)

	_, outcome, err = parseResolveArgs([]string{"0", "0"})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNo, outcome)

	for _, args := range [][]string{{"x", "1"}, {"-1", "1"}, {"1", "2"}, {"1", "yes"}} {
		_, _, err := parseResolveArgs(args)
		require.Error(t, err, args)
	}
}

func TestRenderMarkets(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ether := func(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), oneEther) }

	rows := []marketRow{
		{
			ID: big.NewInt(1),
			Info: factory.MarketInfo{
				MarketAddress:  common.HexToAddress("0xa1"),
				Question:       "Will it rain tomorrow?",
				Category:       "other",
				ResolutionTime: big.NewInt(now.Add(24 * time.Hour).Unix()),
			},
			Pools: factory.Pools{Total: ether(8), Yes: ether(6), No: ether(2)},
		},
		{
			ID: big.NewInt(0),
			Info: factory.MarketInfo{
				Question:       "Will BTC hit 200k?",
				Category:       "crypto",
				ResolutionTime: big.NewInt(now.Add(-time.Hour).Unix()),
				Resolved:       true,
				WinningOutcome: 0,
			},
			Pools: factory.Pools{Total: new(big.Int)},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderMarkets(&buf, rows, now))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "open")
	require.Contains(t, lines[1], "75%")
	require.Contains(t, lines[1], " 8 ")
	require.Contains(t, lines[1], "(2026-03-02)")
	require.Contains(t, lines[2], "resolved NO")
	require.Contains(t, lines[2], "50%")
}

func TestEncryptKeyCommand(t *testing.T) {
	const keyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	out := filepath.Join(t.TempDir(), "operator.key")

	var stdout bytes.Buffer
	rootCmd.SetArgs([]string{"encrypt-key", "--config", filepath.Join(t.TempDir(), "none.toml"), "--out", out, "--password", "pw"})
	rootCmd.SetIn(strings.NewReader("0x" + keyHex + "\n"))
	rootCmd.SetOut(&stdout)
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, stdout.String(), out)

	blob, err := os.ReadFile(out)
	require.NoError(t, err)
	got, err := crypto.DecryptKey(blob, "pw")
	require.NoError(t, err)
	require.Equal(t, keyHex, got)
}
