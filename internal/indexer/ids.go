package indexer

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NormalizeAddress returns the canonical entity key of an address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// PositionID is the key of a user's stake on one side of one market.
func PositionID(user, market string, outcome domain.Outcome) string {
	return NormalizeAddress(user) + "-" + NormalizeAddress(market) + "-" + strconv.Itoa(int(outcome))
}

// BetID is the key of the Bet row written for a log: txHash-logIndex.
func BetID(meta domain.EventMeta) string {
	return strings.ToLower(meta.TxHash) + "-" + strconv.FormatUint(uint64(meta.LogIndex), 10)
}

// EventID is the key of MarketEvent and BetEvent rows: the transaction hash
// bytes followed by the log index as a little-endian int32, hex encoded.
func EventID(meta domain.EventMeta) string {
	hash := common.HexToHash(meta.TxHash)
	buf := make([]byte, common.HashLength+4)
	copy(buf, hash.Bytes())
	binary.LittleEndian.PutUint32(buf[common.HashLength:], uint32(meta.LogIndex))
	return hexutil.Encode(buf)
}
