// Package redisstate persists page state in Redis, one key per user.
package redisstate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crmapp/internal/app"
)

const keyPrefix = "crmapp:state:"

// Store keeps app.State values as JSON strings with a sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. A ttl of zero keeps states forever.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// ParseOptions accepts a redis:// URL or an "addr,password=...,ssl=true"
// connection string.
func ParseOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// Load returns the saved state of a user. ok is false when none was saved.
func (s *Store) Load(ctx context.Context, userID int64) (app.State, bool, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.State{}, false, nil
	}
	if err != nil {
		return app.State{}, false, fmt.Errorf("redis get state: %w", err)
	}
	var st app.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return app.State{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

// Save writes the state and refreshes its TTL.
func (s *Store) Save(ctx context.Context, st app.State) error {
	if st.UserID == 0 {
		return errors.New("save state: missing user id")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.client.Set(ctx, key(st.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// Delete forgets the state of a user.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del state: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
