// Package factory sends operator transactions to the market factory and
// reads market state from the factory and market contracts.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketindexer/internal/chain"
	"github.com/alanyoungcy/marketindexer/internal/crypto"
	"github.com/alanyoungcy/marketindexer/internal/domain"
)

var (
	// ErrReadOnly is returned by write calls on a client without a signer.
	ErrReadOnly = errors.New("factory: no signer configured")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("factory: transaction reverted")
)

// Backend is the part of *ethclient.Client the client uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures a Client.
type Config struct {
	Address        string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
	// GasMarginPct is added on top of the gas estimate.
	GasMarginPct uint64
}

// MarketInfo is the factory's getMarket record.
type MarketInfo struct {
	MarketAddress  common.Address
	Creator        common.Address
	Question       string
	Category       string
	ResolutionTime *big.Int
	Resolved       bool
	WinningOutcome uint8
}

// Pools holds a market contract's live totals in wei.
type Pools struct {
	Total *big.Int
	Yes   *big.Int
	No    *big.Int
}

// Created describes a market created by CreateMarket.
type Created struct {
	MarketID *big.Int
	Market   common.Address
	TxHash   common.Hash
	Block    uint64
}

// Client talks to one factory deployment.
type Client struct {
	backend Backend
	signer  *crypto.TxSigner
	address common.Address
	factory abi.ABI
	market  abi.ABI
	decoder *chain.Decoder
	cfg     Config
	logger  *slog.Logger
}

// NewClient creates a Client. signer may be nil for read-only use.
func NewClient(backend Backend, signer *crypto.TxSigner, cfg Config, logger *slog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("factory: invalid factory address %q", cfg.Address)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.GasMarginPct == 0 {
		cfg.GasMarginPct = 20
	}
	fabi, err := chain.FactoryABI()
	if err != nil {
		return nil, err
	}
	mabi, err := chain.MarketABI()
	if err != nil {
		return nil, err
	}
	dec, err := chain.NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Client{
		backend: backend,
		signer:  signer,
		address: common.HexToAddress(cfg.Address),
		factory: fabi,
		market:  mabi,
		decoder: dec,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "factory")),
	}, nil
}

// CreateMarket validates req, sends createMarket and returns the id and
// address from the MarketCreated log of the receipt.
func (c *Client) CreateMarket(ctx context.Context, req CreateRequest) (Created, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Created{}, err
	}
	receipt, err := c.transact(ctx, "createMarket",
		req.Question, req.Category, big.NewInt(req.ResolutionTime.Unix()))
	if err != nil {
		return Created{}, err
	}

	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != c.address {
			continue
		}
		ev, err := c.decoder.Decode(*lg, 0)
		if err != nil {
			continue
		}
		if mc, ok := ev.(domain.MarketCreated); ok {
			return Created{
				MarketID: mc.MarketID,
				Market:   common.HexToAddress(mc.Market),
				TxHash:   receipt.TxHash,
				Block:    receipt.BlockNumber.Uint64(),
			}, nil
		}
	}
	return Created{}, fmt.Errorf("factory: receipt %s has no MarketCreated log", receipt.TxHash.Hex())
}

// ResolveMarket settles marketID with outcome and returns the mined tx hash.
func (c *Client) ResolveMarket(ctx context.Context, marketID *big.Int, outcome domain.Outcome) (common.Hash, error) {
	if marketID == nil || marketID.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("factory: invalid market id %v: %w", marketID, domain.ErrInvalidInput)
	}
	if !outcome.Valid() {
		return common.Hash{}, fmt.Errorf("factory: outcome must be 0 (NO) or 1 (YES), got %d: %w", outcome, domain.ErrInvalidInput)
	}
	receipt, err := c.transact(ctx, "resolveMarket", marketID, uint8(outcome))
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

// MarketCount returns the number of markets the factory has created.
func (c *Client) MarketCount(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.address, c.factory, "getMarketCount")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetMarket reads the factory record of marketID.
func (c *Client) GetMarket(ctx context.Context, marketID *big.Int) (MarketInfo, error) {
	out, err := c.call(ctx, c.address, c.factory, "getMarket", marketID)
	if err != nil {
		return MarketInfo{}, err
	}
	return *abi.ConvertType(out[0], new(MarketInfo)).(*MarketInfo), nil
}

// Pools reads the pool totals of a market contract.
func (c *Client) Pools(ctx context.Context, market common.Address) (Pools, error) {
	var p Pools
	g, gctx := errgroup.WithContext(ctx)
	for method, dst := range map[string]**big.Int{
		"totalPool":      &p.Total,
		"totalYesShares": &p.Yes,
		"totalNoShares":  &p.No,
	} {
		g.Go(func() error {
			out, err := c.call(gctx, market, c.market, method)
			if err != nil {
				return err
			}
			*dst = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Pools{}, err
	}
	return p, nil
}

func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("factory: pack %s: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("factory: call %s: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("factory: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("factory: %s returned nothing", method)
	}
	return out, nil
}

// transact builds, signs and sends an EIP-1559 call to the factory and
// waits for it to be mined.
func (c *Client) transact(ctx context.Context, method string, args ...any) (*types.Receipt, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}
	data, err := c.factory.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("factory: pack %s: %w", method, err)
	}
	from := c.signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("factory: nonce: %w", err)
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("factory: gas tip: %w", err)
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("factory: head: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:      from,
		To:        &c.address,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("factory: estimate %s: %w", method, err)
	}
	gas += gas * c.cfg.GasMarginPct / 100

	tx, err := c.signer.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.address,
		Value:     new(big.Int),
		Data:      data,
	}))
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("factory: send %s: %w", method, err)
	}
	c.logger.Info("transaction sent",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("factory: %s %s: %w", method, tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() == nil {
				c.logger.Warn("receipt lookup failed", slog.String("tx", hash.Hex()), slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("factory: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Address returns the factory address.
func (c *Client) Address() string { return strings.ToLower(c.address.Hex()) }
