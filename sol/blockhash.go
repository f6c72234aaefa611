package sol

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// BlockhashCache holds the most recently fetched blockhash. A background
// loop refreshes it on a fixed tick; readers may see a value up to one
// tick stale, which stays well inside the network's validity window.
type BlockhashCache struct {
	mu        sync.RWMutex
	hash      solana.Hash
	fetchedAt time.Time
}

func NewBlockhashCache() *BlockhashCache {
	return &BlockhashCache{}
}

func (c *BlockhashCache) Get() (solana.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hash, !c.fetchedAt.IsZero()
}

func (c *BlockhashCache) Set(hash solana.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hash = hash
	c.fetchedAt = time.Now()
}

func (c *BlockhashCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
