package redisledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/qrmenu/menu-relay/capability"
	"github.com/redis/go-redis/v9"
)

var _ capability.Ledger = (*Ledger)(nil)

const keyPrefix = "capability:consumed:"

// minRetention keeps a marker around even for capabilities that are about to expire.
const minRetention = time.Second

// Ledger marks capabilities consumed with SET NX so concurrent disclosures
// race on a single Redis command.
type Ledger struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) Consume(ctx context.Context, id string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl < minRetention {
		ttl = minRetention
	}
	ok, err := l.client.SetNX(ctx, keyPrefix+id, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "[redisledger.Consume]")
	}
	return ok, nil
}
