// Command marketctl is the operator CLI for the market factory: it creates
// and resolves markets, lists them with their live pools and encrypts the
// operator key.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/marketindexer/internal/chain"
	"github.com/alanyoungcy/marketindexer/internal/config"
	"github.com/alanyoungcy/marketindexer/internal/crypto"
	"github.com/alanyoungcy/marketindexer/internal/factory"
)

var (
	configPath string
	timeout    time.Duration
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "marketctl",
	Short:         "Operate the prediction market factory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall deadline for the command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log RPC activity to stderr")

	rootCmd.AddCommand(createCmd, resolveCmd, listCmd, encryptKeyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failure("error:"), err)
		os.Exit(1)
	}
}

func logger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// commandContext bounds a command by --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// dialFactory connects to the configured RPC. The client signs with the
// wallet key when withSigner is set.
func dialFactory(ctx context.Context, withSigner bool) (*factory.Client, func(), error) {
	rpc, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, err
	}

	var signer *crypto.TxSigner
	if withSigner {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			rpc.Close()
			return nil, nil, err
		}
		if signer, err = crypto.NewTxSigner(key, big.NewInt(cfg.Chain.ChainID)); err != nil {
			rpc.Close()
			return nil, nil, err
		}
	}

	client, err := factory.NewClient(rpc, signer, factory.Config{
		Address: cfg.Chain.FactoryAddress,
	}, logger())
	if err != nil {
		rpc.Close()
		return nil, nil, err
	}
	return client, rpc.Close, nil
}
