package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the part of *ethclient.Client the source reads from.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// MarketSet lists the market contracts whose logs should be fetched.
type MarketSet interface {
	Markets() []string
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return c, nil
}

// SourceConfig configures a Source.
type SourceConfig struct {
	Factory       string
	Confirmations uint64
	MaxAddresses  int
	RPCTimeout    time.Duration
	MaxRetries    int
	HeaderCache   int
}

// Source fetches and decodes ordered event batches from the chain.
type Source struct {
	client  Client
	decoder *Decoder
	markets MarketSet
	cfg     SourceConfig
	factory common.Address
	logger  *slog.Logger

	mu      sync.Mutex
	headers map[uint64]blockHeader
	order   []uint64
}

type blockHeader struct {
	hash common.Hash
	time uint64
}

// NewSource creates a Source.
func NewSource(client Client, decoder *Decoder, markets MarketSet, cfg SourceConfig, logger *slog.Logger) *Source {
	if cfg.MaxAddresses < 1 {
		cfg.MaxAddresses = 200
	}
	if cfg.HeaderCache < 1 {
		cfg.HeaderCache = 1024
	}
	return &Source{
		client:  client,
		decoder: decoder,
		markets: markets,
		cfg:     cfg,
		factory: common.HexToAddress(cfg.Factory),
		logger:  logger.With(slog.String("component", "chain_source")),
		headers: make(map[uint64]blockHeader),
	}
}

// SafeHead returns the newest block with the configured number of
// confirmations on top of it.
func (s *Source) SafeHead(ctx context.Context) (uint64, error) {
	head, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RPCTimeout, s.client.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	if head < s.cfg.Confirmations {
		return 0, nil
	}
	return head - s.cfg.Confirmations, nil
}

// FetchRange returns every factory and market event in blocks [from, to],
// sorted by (block, logIndex). Markets created inside the range are included
// in the market log query, so their bets in the same range are not missed.
func (s *Source) FetchRange(ctx context.Context, from, to uint64) (domain.EventBatch, error) {
	batch := domain.EventBatch{From: from, To: to}
	if to < from {
		return batch, nil
	}

	logs, err := s.filter(ctx, from, to, []common.Address{s.factory}, s.decoder.FactoryTopics())
	if err != nil {
		return batch, err
	}

	seen := make(map[common.Address]struct{})
	var addrs []common.Address
	for _, m := range s.markets.Markets() {
		a := common.HexToAddress(m)
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			addrs = append(addrs, a)
		}
	}
	for _, lg := range logs {
		if a, ok := s.decoder.CreatedMarket(lg); ok {
			if _, dup := seen[a]; !dup {
				seen[a] = struct{}{}
				addrs = append(addrs, a)
			}
		}
	}

	for start := 0; start < len(addrs); start += s.cfg.MaxAddresses {
		end := min(start+s.cfg.MaxAddresses, len(addrs))
		marketLogs, err := s.filter(ctx, from, to, addrs[start:end], s.decoder.MarketTopics())
		if err != nil {
			return batch, err
		}
		logs = append(logs, marketLogs...)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, lg := range logs {
		ts, err := s.blockTime(ctx, lg.BlockNumber, lg.BlockHash)
		if err != nil {
			return batch, err
		}
		ev, err := s.decoder.Decode(lg, ts)
		switch {
		case err == nil:
			batch.Events = append(batch.Events, ev)
		case errors.Is(err, domain.ErrUnknownEvent), errors.Is(err, domain.ErrInvalidEvent):
			s.logger.Warn("dropping undecodable log",
				slog.Uint64("block", lg.BlockNumber),
				slog.Uint64("log_index", uint64(lg.Index)),
				slog.String("tx", lg.TxHash.Hex()),
				slog.String("error", err.Error()),
			)
		default:
			return batch, err
		}
	}
	return batch, nil
}

func (s *Source) filter(ctx context.Context, from, to uint64, addrs []common.Address, topics []common.Hash) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addrs,
		Topics:    [][]common.Hash{topics},
	}
	logs, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RPCTimeout, func(ctx context.Context) ([]types.Log, error) {
		return s.client.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs %d-%d: %w", from, to, err)
	}
	return logs, nil
}

// blockTime returns the timestamp of block n. Cached headers are reused only
// while their hash matches the log's block hash.
func (s *Source) blockTime(ctx context.Context, n uint64, hash common.Hash) (uint64, error) {
	s.mu.Lock()
	h, ok := s.headers[n]
	s.mu.Unlock()
	if ok && (hash == (common.Hash{}) || h.hash == hash) {
		return h.time, nil
	}

	header, err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RPCTimeout, func(ctx context.Context) (*types.Header, error) {
		return s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	})
	if err != nil {
		return 0, fmt.Errorf("chain: header %d: %w", n, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.headers[n]; !exists {
		s.order = append(s.order, n)
	}
	s.headers[n] = blockHeader{hash: header.Hash(), time: header.Time}
	for len(s.order) > s.cfg.HeaderCache {
		delete(s.headers, s.order[0])
		s.order = s.order[1:]
	}
	return header.Time, nil
}
