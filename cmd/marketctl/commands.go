package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/marketindexer/internal/crypto"
	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/factory"
)

var createAt string

var createCmd = &cobra.Command{
	Use:   "create <question> <category> <days>",
	Short: "Create a market resolving <days> from now",
	Example: `  marketctl create "Will BTC hit 200k in 2026?" crypto 30
  marketctl create "Will it snow in Lisbon?" other 0 --at 2026-12-25T00:00:00Z`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildCreateRequest(args, createAt, time.Now())
		if err != nil {
			return err
		}
		if err := req.Validate(); err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, closeRPC, err := dialFactory(ctx, true)
		if err != nil {
			return err
		}
		defer closeRPC()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Creating market...\n  Question:   %s\n  Category:   %s\n  Resolution: %s\n\n",
			req.Question, req.Category, req.ResolutionTime.UTC().Format(time.RFC3339))

		created, err := client.CreateMarket(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n  Market ID:      %s\n  Market Address: %s\n  Block:          %d\n  Tx:             %s\n",
			success("Market created"),
			created.MarketID, strings.ToLower(created.Market.Hex()), created.Block, created.TxHash.Hex())
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:     "resolve <market-id> <0|1>",
	Short:   "Resolve a market: 0 = NO wins, 1 = YES wins",
	Example: "  marketctl resolve 0 1",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, outcome, err := parseResolveArgs(args)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, closeRPC, err := dialFactory(ctx, true)
		if err != nil {
			return err
		}
		defer closeRPC()

		info, err := client.GetMarket(ctx, id)
		if err != nil {
			return err
		}
		if info.Resolved {
			return fmt.Errorf("market %s is already resolved (%s won)", id, domain.Outcome(info.WinningOutcome))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Resolving market %s: %q\n  Winner: %s\n\n", id, info.Question, outcomeLabel(outcome))
		tx, err := client.ResolveMarket(ctx, id, outcome)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n  Tx: %s\n", success("Market resolved"), tx.Hex())
		return nil
	},
}

var (
	listLimit    int
	listUnsolved bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List markets with their pools and odds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, closeRPC, err := dialFactory(ctx, false)
		if err != nil {
			return err
		}
		defer closeRPC()

		count, err := client.MarketCount(ctx)
		if err != nil {
			return err
		}
		if !count.IsInt64() {
			return fmt.Errorf("market count %s out of range", count)
		}
		n := count.Int64()

		rows := make([]marketRow, 0, n)
		for i := n - 1; i >= 0 && (listLimit <= 0 || len(rows) < listLimit); i-- {
			id := big.NewInt(i)
			info, err := client.GetMarket(ctx, id)
			if err != nil {
				return err
			}
			if listUnsolved && info.Resolved {
				continue
			}
			pools, err := client.Pools(ctx, info.MarketAddress)
			if err != nil {
				return err
			}
			rows = append(rows, marketRow{ID: id, Info: info, Pools: pools})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d markets on factory %s\n\n", n, client.Address())
		return renderMarkets(cmd.OutOrStdout(), rows, time.Now())
	},
}

var (
	encryptOut      string
	encryptPassword string
)

var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key",
	Short: "Encrypt a private key read from stdin into a key file",
	Long: `Reads a hex private key from the first line of stdin, encrypts it with
PBKDF2 and AES-256-GCM, and writes the result to --out. Point
wallet.encrypted_key_path at the file and supply wallet.key_password.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password := encryptPassword
		if password == "" {
			password = os.Getenv("MKTIDX_WALLET_KEY_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required (--password or MKTIDX_WALLET_KEY_PASSWORD)")
		}
		keyHex, err := readKeyLine(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := crypto.WriteKeyFile(encryptOut, keyHex, password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", success("Encrypted key written to"), encryptOut)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createAt, "at", "", "exact RFC3339 resolution time; overrides <days>")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "show at most this many markets, newest first (0 = all)")
	listCmd.Flags().BoolVar(&listUnsolved, "open", false, "only show unresolved markets")
	encryptKeyCmd.Flags().StringVarP(&encryptOut, "out", "o", "operator.key", "output file")
	encryptKeyCmd.Flags().StringVar(&encryptPassword, "password", "", "encryption password")
}

// buildCreateRequest turns create's arguments into a request resolving days
// after now, or at the --at time when given.
func buildCreateRequest(args []string, at string, now time.Time) (factory.CreateRequest, error) {
	req := factory.CreateRequest{Question: args[0], Category: args[1]}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return req, fmt.Errorf("--at: %w", err)
		}
		req.ResolutionTime = t
		return req.Normalize(), nil
	}
	days, err := strconv.Atoi(args[2])
	if err != nil || days <= 0 {
		return req, fmt.Errorf("days must be a positive integer, got %q", args[2])
	}
	req.ResolutionTime = now.Add(time.Duration(days) * 24 * time.Hour).Truncate(time.Second)
	return req.Normalize(), nil
}

func parseResolveArgs(args []string) (*big.Int, domain.Outcome, error) {
	id, ok := new(big.Int).SetString(args[0], 10)
	if !ok || id.Sign() < 0 {
		return nil, 0, fmt.Errorf("market id must be a non-negative integer, got %q", args[0])
	}
	switch args[1] {
	case "0":
		return id, domain.OutcomeNo, nil
	case "1":
		return id, domain.OutcomeYes, nil
	}
	return nil, 0, fmt.Errorf("outcome must be 0 (NO) or 1 (YES), got %q", args[1])
}

func readKeyLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read key: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no key on stdin")
	}
	return line, nil
}
