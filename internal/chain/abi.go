// Package chain reads the factory and market contract logs from an EVM RPC
// endpoint and decodes them into domain events.
package chain

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/factory.json
var factoryABIJSON []byte

//go:embed abi/market.json
var marketABIJSON []byte

// FactoryABI parses the embedded market factory ABI.
func FactoryABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(factoryABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse factory abi: %w", err)
	}
	return parsed, nil
}

// MarketABI parses the embedded prediction market ABI.
func MarketABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(marketABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("chain: parse market abi: %w", err)
	}
	return parsed, nil
}
