// internal/cache/cache_test.go
package cache

import (
	"context"
	"testing"
	"time"

	"bidforge/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFacade(t *testing.T) (*Facade, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, logger.NewTestLogger(t)), mr
}

func TestGetSetRoundTrip(t *testing.T) {
	facade, _ := setupFacade(t)
	ctx := context.Background()

	_, ok := facade.Get(ctx, "ctx:p1:abc")
	assert.False(t, ok)

	facade.Set(ctx, "ctx:p1:abc", "assembled context", ContextTTL)

	val, ok := facade.Get(ctx, "ctx:p1:abc")
	assert.True(t, ok)
	assert.Equal(t, "assembled context", val)
}

func TestEntriesExpire(t *testing.T) {
	facade, mr := setupFacade(t)
	ctx := context.Background()

	facade.Set(ctx, "emb:hash", "[0.1,0.2]", EmbeddingTTL)
	mr.FastForward(EmbeddingTTL + time.Second)

	_, ok := facade.Get(ctx, "emb:hash")
	assert.False(t, ok)
}

func TestBackendErrorIsTreatedAsMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	facade := New(client, logger.NewTestLogger(t))
	ctx := context.Background()

	mock.ExpectGet("ctx:p1:abc").SetErr(assert.AnError)
	_, ok := facade.Get(ctx, "ctx:p1:abc")
	assert.False(t, ok)

	mock.ExpectSet("ctx:p1:abc", "value", ContextTTL).SetErr(assert.AnError)
	// Must not panic or propagate
	facade.Set(ctx, "ctx:p1:abc", "value", ContextTTL)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilFacadeAlwaysMisses(t *testing.T) {
	var facade *Facade
	ctx := context.Background()

	_, ok := facade.Get(ctx, "any")
	assert.False(t, ok)

	// No-ops, no panics
	facade.Set(ctx, "any", "value", time.Minute)
	facade.Invalidate(ctx, "any")
	facade.InvalidatePattern(ctx, "context:*")
	facade.SetJSON(ctx, "any", map[string]string{"k": "v"}, time.Minute)
	facade.SetJSON(ctx, "any", func() {}, time.Minute)
}

func TestJSONHelpers(t *testing.T) {
	facade, _ := setupFacade(t)
	ctx := context.Background()

	type bundle struct {
		Primary string `json:"primary"`
		Chunks  int    `json:"chunks"`
	}

	facade.SetJSON(ctx, "ctx:p2", bundle{Primary: "text", Chunks: 4}, ContextTTL)

	var out bundle
	ok := facade.GetJSON(ctx, "ctx:p2", &out)
	assert.True(t, ok)
	assert.Equal(t, "text", out.Primary)
	assert.Equal(t, 4, out.Chunks)
}

func TestGetJSONCorruptEntryIsMiss(t *testing.T) {
	facade, mr := setupFacade(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("ctx:p3", "{not json"))

	var out map[string]interface{}
	assert.False(t, facade.GetJSON(ctx, "ctx:p3", &out))
}

func TestInvalidate(t *testing.T) {
	facade, mr := setupFacade(t)
	ctx := context.Background()

	facade.Set(ctx, "ctx:p1:a", "one", ContextTTL)
	facade.Set(ctx, "ctx:p1:b", "two", ContextTTL)

	facade.Invalidate(ctx, "ctx:p1:a", "ctx:p1:b")

	assert.False(t, mr.Exists("ctx:p1:a"))
	assert.False(t, mr.Exists("ctx:p1:b"))
}
