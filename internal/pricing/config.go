package pricing

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"pairScope/internal/model"
)

var (
	// ErrInvalidConfig is returned when pricing rules cannot be built.
	ErrInvalidConfig = errors.New("invalid pricing config")
	// ErrInvalidAddress is returned for malformed token or pool ids.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNotFound is returned when an entity that must exist is missing.
	ErrNotFound = errors.New("entity not found")
)

// BaseSide tells which side of a reference pool holds the base asset.
type BaseSide int

const (
	BaseToken0 BaseSide = iota
	BaseToken1
)

func (s BaseSide) String() string {
	if s == BaseToken1 {
		return "token1"
	}
	return "token0"
}

// ParseBaseSide accepts "token0"/"0" and "token1"/"1".
func ParseBaseSide(input string) (BaseSide, error) {
	switch input {
	case "token0", "0":
		return BaseToken0, nil
	case "token1", "1":
		return BaseToken1, nil
	default:
		return BaseToken0, fmt.Errorf("%w: base side %q", ErrInvalidConfig, input)
	}
}

// ReferencePool is a base-asset/stablecoin pool used by the USD anchor.
type ReferencePool struct {
	Address  string
	BaseSide BaseSide
}

// PoolKind is one pool curve the factory can resolve for a token pair.
// ApplyRatio kinds scale the counter token price by the pool ratio; the
// others propagate the counter token price as-is.
type PoolKind struct {
	Name         string
	Stable       bool
	MinLiquidity decimal.Decimal
	ApplyRatio   bool
}

// Config is the deployment-specific pricing configuration. AnchorTiers
// lists subsets of ReferencePools by address, tried in order.
type Config struct {
	BaseAsset      string
	Whitelist      []string
	PoolKinds      []PoolKind
	UntrackedPools []string
	ReferencePools []ReferencePool
	AnchorTiers    [][]string
}

// Rules is a validated Config with canonical ids and lookup sets.
type Rules struct {
	base         string
	whitelist    []common.Address
	whitelistSet map[string]struct{}
	kinds        []PoolKind
	untracked    map[string]struct{}
	references   []ReferencePool
	tiers        [][]ReferencePool
}

// NewRules validates cfg and builds the lookup structures used by Pricer.
func NewRules(cfg Config) (*Rules, error) {
	base, err := model.ParseAddressKey(cfg.BaseAsset)
	if err != nil {
		return nil, fmt.Errorf("%w: base asset: %v", ErrInvalidConfig, err)
	}
	if len(cfg.Whitelist) == 0 {
		return nil, fmt.Errorf("%w: whitelist is empty", ErrInvalidConfig)
	}
	if len(cfg.PoolKinds) == 0 {
		return nil, fmt.Errorf("%w: at least one pool kind is required", ErrInvalidConfig)
	}

	r := &Rules{
		base:         base,
		whitelist:    make([]common.Address, 0, len(cfg.Whitelist)),
		whitelistSet: make(map[string]struct{}, len(cfg.Whitelist)),
		kinds:        make([]PoolKind, 0, len(cfg.PoolKinds)),
		untracked:    make(map[string]struct{}, len(cfg.UntrackedPools)),
		references:   make([]ReferencePool, 0, len(cfg.ReferencePools)),
	}

	for _, item := range cfg.Whitelist {
		key, err := model.ParseAddressKey(item)
		if err != nil {
			return nil, fmt.Errorf("%w: whitelist: %v", ErrInvalidConfig, err)
		}
		if _, dup := r.whitelistSet[key]; dup {
			return nil, fmt.Errorf("%w: duplicate whitelist entry %s", ErrInvalidConfig, key)
		}
		r.whitelistSet[key] = struct{}{}
		r.whitelist = append(r.whitelist, common.HexToAddress(key))
	}

	seenKinds := make(map[bool]struct{}, len(cfg.PoolKinds))
	for _, kind := range cfg.PoolKinds {
		if kind.MinLiquidity.IsNegative() {
			return nil, fmt.Errorf("%w: pool kind %q has negative threshold", ErrInvalidConfig, kind.Name)
		}
		if _, dup := seenKinds[kind.Stable]; dup {
			return nil, fmt.Errorf("%w: pool kind stable=%t configured twice", ErrInvalidConfig, kind.Stable)
		}
		seenKinds[kind.Stable] = struct{}{}
		r.kinds = append(r.kinds, kind)
	}

	for _, item := range cfg.UntrackedPools {
		key, err := model.ParseAddressKey(item)
		if err != nil {
			return nil, fmt.Errorf("%w: untracked pools: %v", ErrInvalidConfig, err)
		}
		r.untracked[key] = struct{}{}
	}

	refByKey := make(map[string]ReferencePool, len(cfg.ReferencePools))
	for _, ref := range cfg.ReferencePools {
		key, err := model.ParseAddressKey(ref.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: reference pools: %v", ErrInvalidConfig, err)
		}
		if _, dup := refByKey[key]; dup {
			return nil, fmt.Errorf("%w: duplicate reference pool %s", ErrInvalidConfig, key)
		}
		ref.Address = key
		refByKey[key] = ref
		r.references = append(r.references, ref)
	}

	tiers, err := buildTiers(cfg.AnchorTiers, r.references, refByKey)
	if err != nil {
		return nil, err
	}
	r.tiers = tiers

	return r, nil
}

func buildTiers(raw [][]string, refs []ReferencePool, refByKey map[string]ReferencePool) ([][]ReferencePool, error) {
	if len(raw) == 0 {
		if len(refs) == 0 {
			return nil, nil
		}
		tiers := make([][]ReferencePool, 0, len(refs)+1)
		tiers = append(tiers, refs)
		if len(refs) > 1 {
			for _, ref := range refs {
				tiers = append(tiers, []ReferencePool{ref})
			}
		}
		return tiers, nil
	}

	tiers := make([][]ReferencePool, 0, len(raw))
	for i, members := range raw {
		if len(members) == 0 {
			return nil, fmt.Errorf("%w: anchor tier %d is empty", ErrInvalidConfig, i)
		}
		tier := make([]ReferencePool, 0, len(members))
		for _, member := range members {
			key, err := model.ParseAddressKey(member)
			if err != nil {
				return nil, fmt.Errorf("%w: anchor tier %d: %v", ErrInvalidConfig, i, err)
			}
			ref, ok := refByKey[key]
			if !ok {
				return nil, fmt.Errorf("%w: anchor tier %d: %s is not a reference pool", ErrInvalidConfig, i, key)
			}
			tier = append(tier, ref)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// BaseAsset returns the canonical base asset id.
func (r *Rules) BaseAsset() string {
	return r.base
}

// IsWhitelisted reports whether the token id is a trusted pricing anchor.
func (r *Rules) IsWhitelisted(tokenID string) bool {
	_, ok := r.whitelistSet[canonical(tokenID)]
	return ok
}

// IsUntracked reports whether volume on the pool is never attributed.
func (r *Rules) IsUntracked(poolID string) bool {
	_, ok := r.untracked[canonical(poolID)]
	return ok
}

// IsReferencePool reports whether the pool feeds the USD anchor.
func (r *Rules) IsReferencePool(poolID string) bool {
	key := canonical(poolID)
	for _, ref := range r.references {
		if ref.Address == key {
			return true
		}
	}
	return false
}

// canonical lowercases valid hex ids and leaves anything else untouched, so
// malformed ids never match a configured set.
func canonical(id string) string {
	key, err := model.ParseAddressKey(id)
	if err != nil {
		return id
	}
	return key
}
