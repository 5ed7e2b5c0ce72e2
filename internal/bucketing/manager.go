package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

// BucketingManager spreads account rows across Scylla partitions.
type BucketingManager struct {
	accountBuckets int
	hasherPool     sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	buckets := cfg.Bucketing.AccountBuckets
	if buckets <= 0 {
		buckets = 1
	}

	bm := &BucketingManager{accountBuckets: buckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// AccountBucket returns the partition (0..buckets-1) for accountID.
// The mapping is stable for a fixed bucket count.
func (bm *BucketingManager) AccountBucket(accountID string) int {
	return int(bm.hash(accountID) % uint64(bm.accountBuckets))
}

func (bm *BucketingManager) Buckets() int {
	return bm.accountBuckets
}

func (bm *BucketingManager) hash(key string) uint64 {
	h := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}
