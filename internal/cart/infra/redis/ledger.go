// Package redis keeps the checkout ledger: which order a checkout
// idempotency key produced.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwikikusuma/shoping-fulfillment/internal/cart/app"
)

const (
	DefaultTTL = 24 * time.Hour
	keyPrefix  = "cart:checkout:"
)

type Ledger struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

var _ app.CheckoutLedger = (*Ledger)(nil)

func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewLedger(client goredis.UniversalClient, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{client: client, ttl: ttl}
}

// ledgerKey scopes key to userID. The length prefix keeps "a:b"+"c" and
// "a"+"b:c" apart.
func ledgerKey(userID, key string) string {
	return keyPrefix + strconv.Itoa(len(userID)) + ":" + userID + ":" + key
}

func (l *Ledger) Lookup(ctx context.Context, userID, key string) (string, bool, error) {
	id, err := l.client.Get(ctx, ledgerKey(userID, key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("checkout ledger get: %w", err)
	}
	return id, true, nil
}

// Record keeps the first order recorded for a user's key.
func (l *Ledger) Record(ctx context.Context, userID, key, orderID string) error {
	if err := l.client.SetNX(ctx, ledgerKey(userID, key), orderID, l.ttl).Err(); err != nil {
		return fmt.Errorf("checkout ledger set: %w", err)
	}
	return nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) Close() error {
	return l.client.Close()
}
