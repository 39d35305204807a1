package memory

import (
	"encoding/json"
	"math"
)

// SizeEstimator computes a byte-size estimate for a tracked value. Four
// strategies are provided below; hosts may also supply their own.
type SizeEstimator[E any] interface {
	EstimateSize(value E) int64
}

// FixedSize returns a constant size regardless of value, useful when every
// tracked item is roughly the same shape.
type FixedSize[E any] struct {
	Bytes int64
}

func (f FixedSize[E]) EstimateSize(E) int64 { return f.Bytes }

// CallbackSize delegates estimation to a host-supplied function.
type CallbackSize[E any] struct {
	Fn func(E) int64
}

func (c CallbackSize[E]) EstimateSize(value E) int64 { return c.Fn(value) }

// JSONSize estimates size as the length of the value's JSON encoding, with
// an optional bounded cache of recent estimates (oldest-insertion
// eviction) to avoid re-marshaling unchanged values repeatedly.
type JSONSize[E any] struct {
	cacheSize int
	cache     map[string]int64
	order     []string
}

// NewJSONSize builds a JSONSize estimator. cacheSize <= 0 disables caching.
func NewJSONSize[E any](cacheSize int) *JSONSize[E] {
	j := &JSONSize[E]{cacheSize: cacheSize}
	if cacheSize > 0 {
		j.cache = make(map[string]int64, cacheSize)
	}
	return j
}

// EstimateSizeKeyed is used when a stable cache key (e.g. the entity id) is
// available; EstimateSize falls back to marshaling without caching since
// no stable key is provided.
func (j *JSONSize[E]) EstimateSizeKeyed(key string, value E) int64 {
	if j.cache != nil {
		if size, ok := j.cache[key]; ok {
			return size
		}
	}

	size := j.marshal(value)

	if j.cache != nil {
		if len(j.order) >= j.cacheSize {
			oldest := j.order[0]
			j.order = j.order[1:]
			delete(j.cache, oldest)
		}
		j.cache[key] = size
		j.order = append(j.order, key)
	}
	return size
}

func (j *JSONSize[E]) EstimateSize(value E) int64 { return j.marshal(value) }

func (j *JSONSize[E]) marshal(value E) int64 {
	b, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// CompositeSize wraps a delegate estimator, applying a multiplier and a
// fixed overhead: ceil(delegate * multiplier) + overhead.
type CompositeSize[E any] struct {
	Delegate   SizeEstimator[E]
	Overhead   int64
	Multiplier float64
}

func (c CompositeSize[E]) EstimateSize(value E) int64 {
	base := c.Delegate.EstimateSize(value)
	return int64(math.Ceil(float64(base)*c.Multiplier)) + c.Overhead
}
