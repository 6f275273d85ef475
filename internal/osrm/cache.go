package osrm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"paraplan/internal/model"
)

// MatrixCache memoizes matrix responses in Redis so repeated solves over
// the same stop set (dispatchers iterating on a plan) skip the table call.
// All failures degrade to a miss.
type MatrixCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMatrixCache connects to Redis from a URL.
func NewMatrixCache(url string) (*MatrixCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &MatrixCache{rdb: redis.NewClient(opt), ttl: 10 * time.Minute}, nil
}

type cachedMatrices struct {
	Distances [][]int64 `json:"distances"`
	Durations [][]int64 `json:"durations"`
}

func cacheKey(coords []model.Coordinate) string {
	sum := sha256.Sum256([]byte(formatCoordinates(coords)))
	return "osrm:matrix:" + hex.EncodeToString(sum[:])
}

func (c *MatrixCache) Get(ctx context.Context, key string) ([][]int64, [][]int64, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, nil, false
	}
	var cached cachedMatrices
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil, false
	}
	return cached.Distances, cached.Durations, true
}

func (c *MatrixCache) Put(ctx context.Context, key string, distances, durations [][]int64) {
	data, err := json.Marshal(cachedMatrices{Distances: distances, Durations: durations})
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
}
