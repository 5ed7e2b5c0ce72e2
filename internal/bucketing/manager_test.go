package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

func TestAccountBucketStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(&config.Config{Bucketing: config.BucketingConfig{AccountBuckets: 16}})

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("acc-%d", i)
		b := bm.AccountBucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 16)
		assert.Equal(t, b, bm.AccountBucket(id))
		seen[b] = true
	}
	assert.Len(t, seen, 16, "a thousand ids should touch every bucket")
}

func TestAccountBucketDegenerateConfig(t *testing.T) {
	bm := NewBucketingManager(&config.Config{})
	assert.Equal(t, 1, bm.Buckets())
	assert.Equal(t, 0, bm.AccountBucket("anything"))
}
