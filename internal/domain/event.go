package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// EventKind names one of the decoded contract events.
type EventKind string

const (
	KindMarketCreated  EventKind = "MarketCreated"
	KindMarketResolved EventKind = "MarketResolved"
	KindBetPlaced      EventKind = "BetPlaced"
	KindClaimed        EventKind = "Claimed"
)

// Cursor identifies a log by its position in chain order.
type Cursor struct {
	Block     uint64 `json:"block"`
	LogIndex  uint   `json:"logIndex"`
	BlockHash string `json:"blockHash,omitempty"`
}

// Before reports whether c sorts strictly before o in (block, logIndex) order.
func (c Cursor) Before(o Cursor) bool {
	if c.Block != o.Block {
		return c.Block < o.Block
	}
	return c.LogIndex < o.LogIndex
}

// String renders the cursor as block:logIndex.
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.Block, c.LogIndex)
}

// EventMeta is the chain context every decoded log carries. Address is the
// lowercased emitting contract.
type EventMeta struct {
	Address   string `json:"address"`
	Block     uint64 `json:"block"`
	BlockHash string `json:"blockHash"`
	Timestamp uint64 `json:"timestamp"`
	TxHash    string `json:"txHash"`
	LogIndex  uint   `json:"logIndex"`
}

// Header returns the metadata itself. Events embed EventMeta, so this method
// is promoted to every event type.
func (m EventMeta) Header() EventMeta { return m }

// Cursor returns the ordering position of the log.
func (m EventMeta) Cursor() Cursor {
	return Cursor{Block: m.Block, LogIndex: m.LogIndex, BlockHash: m.BlockHash}
}

// Time returns the block timestamp as a UTC time.
func (m EventMeta) Time() time.Time {
	return time.Unix(int64(m.Timestamp), 0).UTC()
}

// Event is a decoded contract log.
type Event interface {
	Kind() EventKind
	Header() EventMeta
}

// MarketCreated is emitted by the factory for every new market contract.
type MarketCreated struct {
	EventMeta
	MarketID       *big.Int `json:"marketId"`
	Market         string   `json:"market"`
	Creator        string   `json:"creator"`
	Question       string   `json:"question"`
	Category       string   `json:"category"`
	ResolutionTime uint64   `json:"resolutionTime"`
}

// MarketResolved is emitted by the factory when a market settles.
type MarketResolved struct {
	EventMeta
	MarketID       *big.Int `json:"marketId"`
	Market         string   `json:"market"`
	WinningOutcome Outcome  `json:"winningOutcome"`
}

// BetPlaced is emitted by a market contract. The market is the emitting
// address.
type BetPlaced struct {
	EventMeta
	Bettor  string   `json:"bettor"`
	Outcome Outcome  `json:"outcome"`
	Amount  *big.Int `json:"amount"`
	Shares  *big.Int `json:"shares"`
}

// Claimed is emitted by a market contract when a winner withdraws.
type Claimed struct {
	EventMeta
	Claimer string   `json:"claimer"`
	Amount  *big.Int `json:"amount"`
}

func (MarketCreated) Kind() EventKind  { return KindMarketCreated }
func (MarketResolved) Kind() EventKind { return KindMarketResolved }
func (BetPlaced) Kind() EventKind      { return KindBetPlaced }
func (Claimed) Kind() EventKind        { return KindClaimed }

// envelope is the JSON form of an Event used by the archive and the signal
// bus.
type envelope struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalEvent encodes ev together with its kind.
func MarshalEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(envelope{Kind: ev.Kind(), Payload: payload})
}

// UnmarshalEvent decodes data produced by MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("domain: unmarshal event: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case KindMarketCreated:
		var e MarketCreated
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case KindMarketResolved:
		var e MarketResolved
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case KindBetPlaced:
		var e BetPlaced
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	case KindClaimed:
		var e Claimed
		err = json.Unmarshal(env.Payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("domain: unmarshal event kind %q: %w", env.Kind, ErrUnknownEvent)
	}
	if err != nil {
		return nil, fmt.Errorf("domain: unmarshal %s: %w", env.Kind, err)
	}
	return ev, nil
}
