package database

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStmtCacheReusesStatements(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	sc := NewStmtCache(db)
	defer sc.Clear()

	s1, err := sc.Prepare("SELECT 1")
	require.NoError(t, err)
	s2, err := sc.Prepare("SELECT 1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = sc.Prepare("SELECT FROM nowhere")
	assert.Error(t, err)
	assert.Panics(t, func() { sc.MustPrepare("SELECT FROM nowhere") })
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutexIndependentKeysAndCancel(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, ok := km.TryLock("b")
	require.True(t, ok)

	_, ok = km.TryLock("a")
	assert.False(t, ok)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = km.Lock(cctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA()
	unlockB()
	assert.Equal(t, 0, km.Len())
}
