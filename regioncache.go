package shardkvx

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kvshard/shardkvx/zaputils"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

type RegionCacheOptions struct {
	Logger *zap.Logger
}

// RegionCache is a PlacementOracle which remembers the regions and store
// addresses it has fetched from the placement service until they are
// invalidated.
type RegionCache struct {
	logger *zap.Logger
	pd     PdClient

	lock sync.RWMutex
	// regions is sorted by start key and never holds overlapping ranges.
	regions []*Region
	stores  map[uint64]string
}

var _ PlacementOracle = (*RegionCache)(nil)

func NewRegionCache(pd PdClient, opts *RegionCacheOptions) *RegionCache {
	if opts == nil {
		opts = &RegionCacheOptions{}
	}

	logger := loggerOrNop(opts.Logger)
	logger = logger.With(
		zap.String("regionCacheId", uuid.NewString()[:8]),
	)

	return &RegionCache{
		logger: logger,
		pd:     pd,
		stores: make(map[uint64]string),
	}
}

func (c *RegionCache) CurrentTimestamp(ctx context.Context) (Timestamp, error) {
	return c.pd.GetTimestamp(ctx)
}

func (c *RegionCache) RegionForKey(ctx context.Context, key []byte) (*Region, error) {
	if region := c.lookupCached(key); region != nil {
		return region, nil
	}

	meta, leader, err := c.pd.GetRegion(ctx, key)
	if err != nil {
		return nil, err
	}

	region := &Region{
		Meta:   meta,
		Leader: leader,
	}
	if leader != nil {
		addr, err := c.storeAddr(ctx, leader.StoreID)
		if err != nil {
			return nil, err
		}
		region.LeaderAddr = addr
	}

	if !region.Contains(key) {
		return nil, placementError{
			Op:    "get region",
			Cause: illegalStateError{"placement service returned a region not containing the key"},
		}
	}

	c.insert(region)

	c.logger.Debug("cached region",
		zaputils.Key("key", key),
		zaputils.RegionVer("region", region.VerID().ID, region.VerID().ConfVer, region.VerID().Ver),
		zap.String("leaderAddr", region.LeaderAddr))

	return region, nil
}

// InvalidateRegion drops the region incarnation along with the address of
// its leader's store. A request which failed against the region may have
// failed because the store moved, so neither can be trusted.
func (c *RegionCache) InvalidateRegion(ver RegionVerID) {
	c.lock.Lock()
	defer c.lock.Unlock()

	idx := slices.IndexFunc(c.regions, func(r *Region) bool {
		return r.VerID() == ver
	})
	if idx < 0 {
		return
	}

	region := c.regions[idx]
	c.regions = slices.Delete(c.regions, idx, idx+1)
	if region.Leader != nil {
		delete(c.stores, region.Leader.StoreID)
	}

	c.logger.Debug("invalidated region",
		zaputils.RegionVer("region", ver.ID, ver.ConfVer, ver.Ver))
}

// InvalidateStore forgets the address of a store, it is looked up again the
// next time a region led from that store is fetched.
func (c *RegionCache) InvalidateStore(storeID uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.stores, storeID)
}

func (c *RegionCache) lookupCached(key []byte) *Region {
	c.lock.RLock()
	defer c.lock.RUnlock()

	idx, found := slices.BinarySearchFunc(c.regions, key, func(r *Region, k []byte) int {
		return bytes.Compare(r.StartKey(), k)
	})
	if !found {
		if idx == 0 {
			return nil
		}
		idx--
	}

	region := c.regions[idx]
	if !region.Contains(key) {
		return nil
	}
	return region
}

func (c *RegionCache) insert(region *Region) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.regions = slices.DeleteFunc(c.regions, func(r *Region) bool {
		return rangesOverlap(r, region)
	})

	idx, _ := slices.BinarySearchFunc(c.regions, region.StartKey(), func(r *Region, k []byte) int {
		return bytes.Compare(r.StartKey(), k)
	})
	c.regions = slices.Insert(c.regions, idx, region)
}

func (c *RegionCache) storeAddr(ctx context.Context, storeID uint64) (string, error) {
	c.lock.RLock()
	addr, ok := c.stores[storeID]
	c.lock.RUnlock()
	if ok {
		return addr, nil
	}

	store, err := c.pd.GetStore(ctx, storeID)
	if err != nil {
		return "", err
	}

	c.lock.Lock()
	c.stores[storeID] = store.Address
	c.lock.Unlock()

	return store.Address, nil
}

func rangesOverlap(a, b *Region) bool {
	aEndsBeforeB := len(a.EndKey()) > 0 && bytes.Compare(a.EndKey(), b.StartKey()) <= 0
	bEndsBeforeA := len(b.EndKey()) > 0 && bytes.Compare(b.EndKey(), a.StartKey()) <= 0
	return !aEndsBeforeB && !bEndsBeforeA
}
