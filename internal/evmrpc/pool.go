// Package evmrpc manages one lazily dialed JSON-RPC client per EVM chain.
package evmrpc

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// Pool hands out shared ethclient connections keyed by chain id.
type Pool struct {
	mu      sync.Mutex
	urls    map[uint64]string
	clients map[uint64]*ethclient.Client
}

// NewPool builds a pool over the configured RPC URLs.
func NewPool(urls map[uint64]string) *Pool {
	return &Pool{urls: urls, clients: make(map[uint64]*ethclient.Client)}
}

// Client returns the connection for a chain, dialing on first use.
func (p *Pool) Client(chainID uint64) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[chainID]; ok {
		return c, nil
	}
	url, ok := p.urls[chainID]
	if !ok {
		return nil, fmt.Errorf("no RPC URL configured for chain %d", chainID)
	}
	c, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %d: %w", chainID, err)
	}
	p.clients[chainID] = c
	log.Debug("RPC client dialed", "chain", chainID)
	return c, nil
}

// Close shuts every dialed connection down.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
