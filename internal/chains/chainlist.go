package chains

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const chainListURL = "https://chainid.network/chains.json"

// ChainInfo is the subset of ChainList metadata the gateway exposes.
type ChainInfo struct {
	ChainID        uint64 `json:"chainId"`
	Name           string `json:"name"`
	NativeCurrency struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals int    `json:"decimals"`
	} `json:"nativeCurrency"`
}

// ChainList fetches and caches public chain metadata. A failed refresh keeps
// serving the previous snapshot; callers degrade to bare chain ids when no
// snapshot exists.
type ChainList struct {
	client *http.Client
	ttl    time.Duration

	mu        sync.Mutex
	byID      map[uint64]ChainInfo
	fetchedAt time.Time
}

// NewChainList builds a ChainList with a one-hour refresh window.
func NewChainList() *ChainList {
	return &ChainList{
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    time.Hour,
	}
}

// Lookup returns metadata for a chain, refreshing the snapshot if stale.
func (c *ChainList) Lookup(ctx context.Context, chainID uint64) (ChainInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.fetchedAt) > c.ttl {
		if err := c.refresh(ctx); err != nil {
			log.Warn("ChainList refresh failed", "err", err)
		}
	}
	info, ok := c.byID[chainID]
	return info, ok
}

// refresh re-downloads the catalogue. Caller holds the lock.
func (c *ChainList) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chainListURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chainlist returned %d", resp.StatusCode)
	}

	var all []ChainInfo
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return fmt.Errorf("decoding chainlist: %w", err)
	}

	byID := make(map[uint64]ChainInfo, len(all))
	for _, info := range all {
		byID[info.ChainID] = info
	}
	c.byID = byID
	c.fetchedAt = time.Now()
	log.Debug("ChainList snapshot refreshed", "chains", len(byID))
	return nil
}
