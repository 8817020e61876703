// Package settings exposes the general_settings table: typed JSON values
// edited by operators at runtime. Values are read-mostly, so reads go
// through a redis cache with explicit invalidation on write; without
// redis the store reads straight from the database.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

var ErrMissing = errors.New("general setting not configured")

const cachePrefix = "immersup:setting:"
const cacheTTL = 5 * time.Minute

// value is the stored JSON payload.
type value struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type Store struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.Logger
}

// NewStore builds a settings store. rdb may be nil.
func NewStore(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Store {
	return &Store{db: db, rdb: rdb, log: log}
}

func (s *Store) raw(ctx context.Context, key string) (*value, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, cachePrefix+key).Bytes()
		if err == nil {
			var v value
			if json.Unmarshal(cached, &v) == nil {
				return &v, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Cache trouble degrades to a DB read.
			s.log.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	var row models.GeneralSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMissing, key)
	}
	if err != nil {
		return nil, err
	}

	var v value
	if err := json.Unmarshal(row.Value, &v); err != nil {
		return nil, fmt.Errorf("setting %s: malformed value: %w", key, err)
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, cachePrefix+key, []byte(row.Value), cacheTTL).Err(); err != nil {
			s.log.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return &v, nil
}

// Bool returns the boolean setting, or def when the key is absent.
func (s *Store) Bool(ctx context.Context, key string, def bool) bool {
	v, err := s.raw(ctx, key)
	if err != nil {
		return def
	}
	var b bool
	if json.Unmarshal(v.Value, &b) != nil {
		return def
	}
	return b
}

// Int returns the integer setting, or def when the key is absent.
func (s *Store) Int(ctx context.Context, key string, def int) int {
	v, err := s.raw(ctx, key)
	if err != nil {
		return def
	}
	var n int
	if json.Unmarshal(v.Value, &n) != nil {
		return def
	}
	return n
}

// String returns the text setting, or def when the key is absent.
func (s *Store) String(ctx context.Context, key string, def string) string {
	v, err := s.raw(ctx, key)
	if err != nil {
		return def
	}
	var str string
	if json.Unmarshal(v.Value, &str) != nil {
		return def
	}
	return str
}

// Require returns the text setting or ErrMissing. Used where falling back
// to a default would hide a configuration error.
func (s *Store) Require(ctx context.Context, key string) (string, error) {
	v, err := s.raw(ctx, key)
	if err != nil {
		return "", err
	}
	var str string
	if err := json.Unmarshal(v.Value, &str); err != nil {
		return "", fmt.Errorf("setting %s: %w", key, err)
	}
	return str, nil
}

// Set upserts a setting and invalidates its cache entry.
func (s *Store) Set(ctx context.Context, key, typ string, val interface{}) error {
	rawVal, err := json.Marshal(val)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value{Type: typ, Value: rawVal})
	if err != nil {
		return err
	}

	var row models.GeneralSetting
	err = s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.GeneralSetting{Key: key, Value: datatypes.JSON(payload)}
		err = s.db.WithContext(ctx).Create(&row).Error
	case err == nil:
		err = s.db.WithContext(ctx).Model(&row).Update("value", datatypes.JSON(payload)).Error
	}
	if err != nil {
		return err
	}

	s.Invalidate(ctx, key)
	return nil
}

// Invalidate drops the cache entry for a key.
func (s *Store) Invalidate(ctx context.Context, key string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, cachePrefix+key).Err(); err != nil {
		s.log.Warn("settings cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
