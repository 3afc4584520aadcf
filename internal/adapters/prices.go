// Package adapters provides reference implementations of the vault's
// collaborator interfaces, backed by the in-process bank. They drive tests
// and the local simulation mode; the engine still treats them as untrusted
// and re-derives every effect from balance deltas.
package adapters

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteFunc resolves a token's base-currency price scaled by the vault's
// price precision.
type QuoteFunc func(token common.Address) (*big.Int, error)

// StaticPriceSource quotes a fixed, settable price for one token.
type StaticPriceSource struct {
	price *big.Int
}

func NewStaticPriceSource(price *big.Int) *StaticPriceSource {
	return &StaticPriceSource{price: new(big.Int).Set(price)}
}

func (s *StaticPriceSource) Price() (*big.Int, error) {
	if s.price == nil || s.price.Sign() <= 0 {
		return nil, errors.New("adapters: price not set")
	}
	return new(big.Int).Set(s.price), nil
}

// Set replaces the quoted price. Simulation hook, not part of the vault API.
func (s *StaticPriceSource) Set(price *big.Int) {
	s.price = new(big.Int).Set(price)
}

// QuoteTable maps tokens to price sources and doubles as a QuoteFunc
// provider for the paper adapters.
type QuoteTable struct {
	sources map[common.Address]*StaticPriceSource
}

func NewQuoteTable() *QuoteTable {
	return &QuoteTable{sources: make(map[common.Address]*StaticPriceSource)}
}

func (q *QuoteTable) Add(token common.Address, price *big.Int) *StaticPriceSource {
	src := NewStaticPriceSource(price)
	q.sources[token] = src
	return src
}

func (q *QuoteTable) Source(token common.Address) (*StaticPriceSource, bool) {
	src, ok := q.sources[token]
	return src, ok
}

// Quote implements QuoteFunc.
func (q *QuoteTable) Quote(token common.Address) (*big.Int, error) {
	src, ok := q.sources[token]
	if !ok {
		return nil, errors.New("adapters: no quote for token")
	}
	return src.Price()
}
