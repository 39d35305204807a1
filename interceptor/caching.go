package interceptor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// KeyFunc derives a single-flight dedup key from an operation and request.
// The default hashes the JSON encoding of the request alongside the
// operation name.
type KeyFunc func(op Operation, request any) string

func defaultKeyFunc(op Operation, request any) string {
	b, err := json.Marshal(request)
	if err != nil {
		return fmt.Sprintf("%s:%p", op, request)
	}
	sum := sha256.Sum256(b)
	return op.String() + ":" + hex.EncodeToString(sum[:])
}

type flightResult struct {
	value any
	err   error
}

type inflight struct {
	done chan struct{}
	res  flightResult
}

const metaFlightKey = "_flight_key"
const metaFlightLeader = "_flight_leader"

// CachingInterceptor deduplicates concurrent identical requests: for each
// (operation, key) the first caller runs the backend call, and every
// concurrent caller for the same key shares its outcome instead of
// repeating the work. This is the one interceptor whose state
// intentionally lives in an instance field rather than ctx.Metadata: the
// shared-future map must outlive any single call.
type CachingInterceptor struct {
	Base
	Key KeyFunc
	ops []Operation

	mu     sync.Mutex
	flight map[string]*inflight
}

// NewCachingInterceptor builds a single-flight CachingInterceptor applying
// to Get/GetAll by default.
func NewCachingInterceptor(key KeyFunc, ops ...Operation) *CachingInterceptor {
	if key == nil {
		key = defaultKeyFunc
	}
	if len(ops) == 0 {
		ops = []Operation{OpGet, OpGetAll}
	}
	return &CachingInterceptor{Key: key, ops: ops, flight: make(map[string]*inflight)}
}

func (c *CachingInterceptor) Operations() []Operation { return c.ops }

// OnRequest joins an existing in-flight call for this key if one is
// running (blocking until it completes, then short-circuiting with its
// outcome), or registers itself as the leader and continues to the
// backend call.
func (c *CachingInterceptor) OnRequest(ctx *Context) Result {
	key := c.Key(ctx.Operation, ctx.Request)
	ctx.Metadata[metaFlightKey] = key

	c.mu.Lock()
	if f, running := c.flight[key]; running {
		c.mu.Unlock()
		<-f.done
		if f.res.err != nil {
			return Err(f.res.err, "")
		}
		return ShortCircuit(f.res.value)
	}
	c.flight[key] = &inflight{done: make(chan struct{})}
	c.mu.Unlock()

	ctx.Metadata[metaFlightLeader] = true
	return Continue()
}

// OnResponse publishes the leader's successful outcome to any followers
// that joined while the backend call was in flight, then clears the entry.
func (c *CachingInterceptor) OnResponse(ctx *Context) {
	c.resolve(ctx, ctx.Response, nil)
}

// OnError publishes the leader's failure to any followers, then clears the
// entry so the next call runs afresh.
func (c *CachingInterceptor) OnError(ctx *Context, cause error, _ string) {
	c.resolve(ctx, nil, cause)
}

func (c *CachingInterceptor) resolve(ctx *Context, value any, err error) {
	if leader, _ := ctx.Metadata[metaFlightLeader].(bool); !leader {
		return
	}
	key, _ := MetadataString(ctx, metaFlightKey)

	c.mu.Lock()
	f, ok := c.flight[key]
	delete(c.flight, key)
	c.mu.Unlock()

	if ok {
		f.res = flightResult{value: value, err: err}
		close(f.done)
	}
}
