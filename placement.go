package shardkvx

import "context"

// PlacementOracle answers where keys live and what time it is.
type PlacementOracle interface {
	// CurrentTimestamp fetches a fresh timestamp. It fails with
	// ErrPlacementUnavailable when the service cannot answer.
	CurrentTimestamp(ctx context.Context) (Timestamp, error)

	// RegionForKey returns the region currently believed to own key.
	RegionForKey(ctx context.Context, key []byte) (*Region, error)

	// InvalidateRegion drops any cached routing for the given region
	// incarnation so the next lookup fetches fresh information.
	InvalidateRegion(ver RegionVerID)
}
