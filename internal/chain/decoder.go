package chain

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type eventSpec struct {
	kind    domain.EventKind
	event   abi.Event
	factory bool
}

// Decoder turns raw logs of the factory and market contracts into domain
// events. It is immutable after construction and safe for concurrent use.
type Decoder struct {
	byTopic map[common.Hash]eventSpec
	factory []common.Hash
	market  []common.Hash
}

// NewDecoder builds a Decoder from the embedded ABIs.
func NewDecoder() (*Decoder, error) {
	fabi, err := FactoryABI()
	if err != nil {
		return nil, err
	}
	mabi, err := MarketABI()
	if err != nil {
		return nil, err
	}

	d := &Decoder{byTopic: make(map[common.Hash]eventSpec)}
	for _, k := range []domain.EventKind{domain.KindMarketCreated, domain.KindMarketResolved} {
		ev, ok := fabi.Events[string(k)]
		if !ok {
			return nil, fmt.Errorf("chain: factory abi has no %s event", k)
		}
		d.byTopic[ev.ID] = eventSpec{kind: k, event: ev, factory: true}
		d.factory = append(d.factory, ev.ID)
	}
	for _, k := range []domain.EventKind{domain.KindBetPlaced, domain.KindClaimed} {
		ev, ok := mabi.Events[string(k)]
		if !ok {
			return nil, fmt.Errorf("chain: market abi has no %s event", k)
		}
		d.byTopic[ev.ID] = eventSpec{kind: k, event: ev}
		d.market = append(d.market, ev.ID)
	}
	return d, nil
}

// FactoryTopics returns the topic0 values of the factory events.
func (d *Decoder) FactoryTopics() []common.Hash { return d.factory }

// MarketTopics returns the topic0 values of the market events.
func (d *Decoder) MarketTopics() []common.Hash { return d.market }

// IsFactoryLog reports whether lg carries a factory event signature.
func (d *Decoder) IsFactoryLog(lg types.Log) bool {
	if len(lg.Topics) == 0 {
		return false
	}
	spec, ok := d.byTopic[lg.Topics[0]]
	return ok && spec.factory
}

// CreatedMarket extracts the new market address from a MarketCreated log
// without decoding its payload.
func (d *Decoder) CreatedMarket(lg types.Log) (common.Address, bool) {
	if len(lg.Topics) < 3 {
		return common.Address{}, false
	}
	spec, ok := d.byTopic[lg.Topics[0]]
	if !ok || spec.kind != domain.KindMarketCreated {
		return common.Address{}, false
	}
	return common.BytesToAddress(lg.Topics[2].Bytes()), true
}

// Decode converts lg into a domain event stamped with blockTime. Unknown
// signatures yield domain.ErrUnknownEvent; malformed payloads and removed
// logs yield domain.ErrInvalidEvent.
func (d *Decoder) Decode(lg types.Log, blockTime uint64) (domain.Event, error) {
	if lg.Removed {
		return nil, fmt.Errorf("chain: log %s:%d was removed by a reorg: %w", lg.TxHash.Hex(), lg.Index, domain.ErrInvalidEvent)
	}
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("chain: anonymous log %s:%d: %w", lg.TxHash.Hex(), lg.Index, domain.ErrUnknownEvent)
	}
	spec, ok := d.byTopic[lg.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("chain: topic %s: %w", lg.Topics[0].Hex(), domain.ErrUnknownEvent)
	}

	var indexed abi.Arguments
	for _, arg := range spec.event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	fields := make(map[string]any)
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("chain: %s topics: %v: %w", spec.kind, err, domain.ErrInvalidEvent)
	}
	if err := spec.event.Inputs.NonIndexed().UnpackIntoMap(fields, lg.Data); err != nil {
		return nil, fmt.Errorf("chain: %s data: %v: %w", spec.kind, err, domain.ErrInvalidEvent)
	}

	meta := domain.EventMeta{
		Address:   strings.ToLower(lg.Address.Hex()),
		Block:     lg.BlockNumber,
		BlockHash: lg.BlockHash.Hex(),
		Timestamp: blockTime,
		TxHash:    lg.TxHash.Hex(),
		LogIndex:  lg.Index,
	}
	f := fieldReader{kind: spec.kind, fields: fields}

	var ev domain.Event
	switch spec.kind {
	case domain.KindMarketCreated:
		mc := domain.MarketCreated{
			EventMeta: meta,
			MarketID:  f.num("marketId"),
			Market:    f.addr("market"),
			Creator:   f.addr("creator"),
			Question:  f.str("question"),
			Category:  f.str("category"),
		}
		resolution := f.num("resolutionTime")
		if f.err == nil {
			if !resolution.IsUint64() || resolution.Uint64() > math.MaxInt64 {
				f.err = fmt.Errorf("chain: resolutionTime %s out of range: %w", resolution, domain.ErrInvalidEvent)
			}
			mc.ResolutionTime = resolution.Uint64()
		}
		ev = mc
	case domain.KindMarketResolved:
		ev = domain.MarketResolved{
			EventMeta:      meta,
			MarketID:       f.num("marketId"),
			Market:         f.addr("market"),
			WinningOutcome: domain.Outcome(f.u8("winningOutcome")),
		}
	case domain.KindBetPlaced:
		ev = domain.BetPlaced{
			EventMeta: meta,
			Bettor:    f.addr("bettor"),
			Outcome:   domain.Outcome(f.u8("outcome")),
			Amount:    f.num("amount"),
			Shares:    f.num("shares"),
		}
	case domain.KindClaimed:
		ev = domain.Claimed{
			EventMeta: meta,
			Claimer:   f.addr("claimer"),
			Amount:    f.num("amount"),
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return ev, nil
}

// fieldReader pulls typed values out of an unpacked argument map and keeps
// the first type error.
type fieldReader struct {
	kind   domain.EventKind
	fields map[string]any
	err    error
}

func (f *fieldReader) fail(name string, v any) {
	if f.err == nil {
		f.err = fmt.Errorf("chain: %s field %s has type %T: %w", f.kind, name, v, domain.ErrInvalidEvent)
	}
}

func (f *fieldReader) num(name string) *big.Int {
	v, ok := f.fields[name].(*big.Int)
	if !ok {
		f.fail(name, f.fields[name])
		return new(big.Int)
	}
	return v
}

func (f *fieldReader) addr(name string) string {
	v, ok := f.fields[name].(common.Address)
	if !ok {
		f.fail(name, f.fields[name])
		return ""
	}
	return strings.ToLower(v.Hex())
}

func (f *fieldReader) str(name string) string {
	v, ok := f.fields[name].(string)
	if !ok {
		f.fail(name, f.fields[name])
	}
	return v
}

func (f *fieldReader) u8(name string) uint8 {
	v, ok := f.fields[name].(uint8)
	if !ok {
		f.fail(name, f.fields[name])
	}
	return v
}
