package statedb

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/database"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

const DefaultLeaseTTL = 5 * time.Minute

// KeyLocker gives one writer per key: goroutines of this process queue on a
// keyed mutex, other processes sharing the store are kept out by a lease row.
// The lease TTL must outlast the longest operation done under the lock.
type KeyLocker struct {
	store Store
	local *database.KeyedMutex
	owner string
	ttl   time.Duration
	now   func() time.Time
}

func NewKeyLocker(store Store, ttl time.Duration) *KeyLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &KeyLocker{
		store: store,
		local: database.NewKeyedMutex(),
		owner: uuid.NewString(),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (l *KeyLocker) Owner() string {
	return l.owner
}

// Lock waits for the in-process lock on key and then tries the store lease.
// acquired is false when another instance holds the lease; the caller should
// skip the key and come back later.
func (l *KeyLocker) Lock(ctx context.Context, key string) (unlock func(), acquired bool, err error) {
	release, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, false, err
	}

	ok, err := l.store.AcquireLease(key, l.owner, l.ttl, l.now())
	if err != nil {
		release()
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		release()
		return nil, false, nil
	}

	return func() {
		if err := l.store.ReleaseLease(key, l.owner); err != nil {
			logger.WithField("key", key).Warnf("failed to release lease: err=%v", err)
		}
		release()
	}, true, nil
}

// NonceLockKey names the lock guarding one deposit.
func NonceLockKey(src agreement.ChainKey, nonce *big.Int) string {
	return "nonce/" + hexOf(src) + "/" + intHex(nonce)
}

// HashLockKey names the lock guarding one withdraw approval.
func HashLockKey(hash ethcommon.Hash) string {
	return "withdraw/" + hexOf(hash)
}
