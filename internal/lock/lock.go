// Package lock provides named, expiring advisory locks backed by redis or,
// when redis is not configured, by the locks table.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/garagehq/vhc/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("lock: not obtained")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains named locks that expire after ttl if never released.
type Locker interface {
	Obtain(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

// Redis is a Locker backed by bsm/redislock.
type Redis struct {
	client *redislock.Client
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{client: redislock.New(rdb)}
}

// Obtain tries once to take the lock; it does not retry.
func (r *Redis) Obtain(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	l, err := r.client.Obtain(ctx, name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("lock: obtain %s: %w", name, err)
	}
	return l, nil
}

// DB is a Locker backed by the locks table.
type DB struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDB returns a table-backed Locker.
func NewDB(db *gorm.DB) *DB {
	return &DB{db: db, now: time.Now}
}

// Obtain clears an expired holder of name, then takes the lock if it is free.
// Contention is settled by the primary key: an insert that conflicts with a
// live holder reports ErrNotObtained.
func (d *DB) Obtain(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	holder := uuid.NewString()

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := d.now().UTC()

		if err := tx.Where("name = ? AND expires_at < ?", name, now).
			Delete(&models.Lock{}).Error; err != nil {
			return fmt.Errorf("expire stale lock: %w", err)
		}

		row := models.Lock{Name: name, Holder: holder, ExpiresAt: now.Add(ttl)}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return fmt.Errorf("create lock: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotObtained
		}
		return nil
	})
	if errors.Is(err, ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("lock: obtain %s: %w", name, err)
	}
	return &dbLease{db: d.db, name: name, holder: holder}, nil
}

type dbLease struct {
	db     *gorm.DB
	name   string
	holder string
}

// Release deletes the lock row if this lease still holds it.
func (l *dbLease) Release(ctx context.Context) error {
	result := l.db.WithContext(ctx).
		Where("name = ? AND holder = ?", l.name, l.holder).
		Delete(&models.Lock{})
	if result.Error != nil {
		return fmt.Errorf("lock: release %s: %w", l.name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("lock: release %s: not held", l.name)
	}
	return nil
}
