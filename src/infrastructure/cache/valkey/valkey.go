package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// KV is a minimal byte store over a valkey or redis server.
type KV struct {
	client rueidis.Client
	ttl    time.Duration
}

type Config struct {
	Addrs    []string
	Username string
	Password string
	// TTL expires cached entries. Zero keeps them forever.
	TTL time.Duration
}

func NewKV(cfg Config) (*KV, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return &KV{client: client, ttl: cfg.TTL}, nil
}

// GetMany returns one entry per key, nil for a missing key.
func (s *KV) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	cmds := make(rueidis.Commands, len(keys))
	for i, k := range keys {
		cmds[i] = s.client.B().Get().Key(k).Build()
	}

	out := make([][]byte, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		data, err := res.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("get %s: %w", keys[i], err)
		}
		out[i] = data
	}
	return out, nil
}

func (s *KV) SetMany(ctx context.Context, keys []string, values [][]byte) error {
	cmds := make(rueidis.Commands, len(keys))
	for i, k := range keys {
		if s.ttl > 0 {
			cmds[i] = s.client.B().Set().Key(k).Value(string(values[i])).Ex(s.ttl).Build()
		} else {
			cmds[i] = s.client.B().Set().Key(k).Value(string(values[i])).Build()
		}
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("set %s: %w", keys[i], err)
		}
	}
	return nil
}

func (s *KV) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *KV) Close() {
	s.client.Close()
}
