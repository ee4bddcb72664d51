package kvrpcx

// RegionEpoch changes whenever a region's membership (ConfVer) or key
// range (Version) changes.
type RegionEpoch struct {
	ConfVer uint64 `json:"conf_ver"`
	Version uint64 `json:"version"`
}

type Peer struct {
	ID      uint64 `json:"id"`
	StoreID uint64 `json:"store_id"`
}

// Region is the placement service's description of a region. An empty
// EndKey means the region extends to the end of the keyspace.
type Region struct {
	ID          uint64       `json:"id"`
	StartKey    []byte       `json:"start_key"`
	EndKey      []byte       `json:"end_key"`
	RegionEpoch *RegionEpoch `json:"region_epoch"`
	Peers       []*Peer      `json:"peers"`
}

type Store struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

// Context is attached to every request sent to a store and lets the store
// reject requests routed with stale region information.
type Context struct {
	RegionID    uint64       `json:"region_id"`
	RegionEpoch *RegionEpoch `json:"region_epoch"`
	Peer        *Peer        `json:"peer"`
}
