package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	goredis "github.com/redis/go-redis/v9"

	"pairScope/internal/model"
	"pairScope/internal/storage"
)

const defaultPrefix = "pairscope:"

var _ storage.EntityStore = (*Store)(nil)

// Store keeps entities as JSON values so a replay resumes without reloading
// them. The stored position ties the set to one replay state; give each
// state name its own prefix. Keys:
//
//	<prefix>token:<id>, <prefix>pool:<id>, <prefix>bundle
//	<prefix>pair:<token>:<token>:<kind> -> pool id
//	<prefix>tokens, <prefix>pools       -> id sets
//	<prefix>position                     -> last applied replay position
type Store struct {
	rdb    *Client
	prefix string
}

func NewStore(rdb *Client, prefix string) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

func (s *Store) tokenKey(id string) string { return s.prefix + "token:" + id }
func (s *Store) poolKey(id string) string  { return s.prefix + "pool:" + id }
func (s *Store) pairKey(key string) string { return s.prefix + "pair:" + key }
func (s *Store) bundleKey() string         { return s.prefix + "bundle" }
func (s *Store) tokenSet() string          { return s.prefix + "tokens" }
func (s *Store) poolSet() string           { return s.prefix + "pools" }
func (s *Store) positionKey() string       { return s.prefix + "position" }

func (s *Store) Token(ctx context.Context, id string) (*model.Token, bool, error) {
	var token model.Token
	ok, err := s.getJSON(ctx, s.tokenKey(id), &token)
	if err != nil || !ok {
		return nil, false, err
	}
	return &token, true, nil
}

func (s *Store) Pool(ctx context.Context, id string) (*model.Pool, bool, error) {
	var pool model.Pool
	ok, err := s.getJSON(ctx, s.poolKey(id), &pool)
	if err != nil || !ok {
		return nil, false, err
	}
	return &pool, true, nil
}

func (s *Store) Bundle(ctx context.Context) (*model.Bundle, bool, error) {
	var bundle model.Bundle
	ok, err := s.getJSON(ctx, s.bundleKey(), &bundle)
	if err != nil || !ok {
		return nil, false, err
	}
	return &bundle, true, nil
}

func (s *Store) ResolvePool(ctx context.Context, tokenA, tokenB common.Address, stable bool) (common.Address, bool, error) {
	key := s.pairKey(storage.PairKey(model.AddressKey(tokenA), model.AddressKey(tokenB), stable))
	id, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return common.HexToAddress(id), true, nil
}

// Apply writes all changes in one MULTI/EXEC block.
func (s *Store) Apply(ctx context.Context, changes storage.Changes) error {
	type entry struct {
		key  string
		data []byte
	}
	entries := make([]entry, 0, len(changes.Tokens)+len(changes.Pools)+1)
	for _, token := range changes.Tokens {
		data, err := json.Marshal(token)
		if err != nil {
			return fmt.Errorf("marshal token %s: %w", token.ID, err)
		}
		entries = append(entries, entry{key: s.tokenKey(token.ID), data: data})
	}
	for _, pool := range changes.Pools {
		data, err := json.Marshal(pool)
		if err != nil {
			return fmt.Errorf("marshal pool %s: %w", pool.ID, err)
		}
		entries = append(entries, entry{key: s.poolKey(pool.ID), data: data})
	}
	if changes.Bundle != nil {
		data, err := json.Marshal(changes.Bundle)
		if err != nil {
			return fmt.Errorf("marshal bundle: %w", err)
		}
		entries = append(entries, entry{key: s.bundleKey(), data: data})
	}
	if changes.Position != nil {
		data, err := json.Marshal(changes.Position)
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		entries = append(entries, entry{key: s.positionKey(), data: data})
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.key, e.data, 0)
		}
		for _, token := range changes.Tokens {
			pipe.SAdd(ctx, s.tokenSet(), token.ID)
		}
		for _, pool := range changes.Pools {
			pipe.SAdd(ctx, s.poolSet(), pool.ID)
			pipe.Set(ctx, s.pairKey(storage.PairKey(pool.Token0, pool.Token1, pool.Stable)), pool.ID, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

// Position returns the replay position stored by the last Apply that
// carried one.
func (s *Store) Position(ctx context.Context) (model.ReplayPosition, bool, error) {
	var pos model.ReplayPosition
	ok, err := s.getJSON(ctx, s.positionKey(), &pos)
	if err != nil || !ok {
		return model.ReplayPosition{}, false, err
	}
	return pos, true, nil
}

// Snapshot loads every entity ordered by id.
func (s *Store) Snapshot(ctx context.Context) (storage.Changes, error) {
	var changes storage.Changes

	tokenIDs, err := s.members(ctx, s.tokenSet())
	if err != nil {
		return storage.Changes{}, err
	}
	for _, id := range tokenIDs {
		token, ok, err := s.Token(ctx, id)
		if err != nil {
			return storage.Changes{}, err
		}
		if ok {
			changes.Tokens = append(changes.Tokens, token)
		}
	}

	poolIDs, err := s.members(ctx, s.poolSet())
	if err != nil {
		return storage.Changes{}, err
	}
	for _, id := range poolIDs {
		pool, ok, err := s.Pool(ctx, id)
		if err != nil {
			return storage.Changes{}, err
		}
		if ok {
			changes.Pools = append(changes.Pools, pool)
		}
	}

	bundle, ok, err := s.Bundle(ctx)
	if err != nil {
		return storage.Changes{}, err
	}
	if ok {
		changes.Bundle = bundle
	}

	pos, ok, err := s.Position(ctx)
	if err != nil {
		return storage.Changes{}, err
	}
	if ok {
		changes.Position = &pos
	}
	return changes, nil
}

func (s *Store) members(ctx context.Context, key string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
