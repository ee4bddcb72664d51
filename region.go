package shardkvx

import (
	"bytes"

	"github.com/kvshard/shardkvx/kvrpcx"
)

// RegionVerID identifies one incarnation of a region. It changes whenever
// the region splits, merges or changes membership.
type RegionVerID struct {
	ID      uint64
	ConfVer uint64
	Ver     uint64
}

// RpcContext holds everything needed to send a request to the current
// leader of a region.
type RpcContext struct {
	Region   RegionVerID
	Endpoint string
	Meta     *kvrpcx.Context
}

type Region struct {
	Meta   *kvrpcx.Region
	Leader *kvrpcx.Peer

	// LeaderAddr is the address of the store hosting Leader, empty when the
	// store could not be resolved.
	LeaderAddr string
}

func (r *Region) VerID() RegionVerID {
	ver := RegionVerID{ID: r.Meta.ID}
	if r.Meta.RegionEpoch != nil {
		ver.ConfVer = r.Meta.RegionEpoch.ConfVer
		ver.Ver = r.Meta.RegionEpoch.Version
	}
	return ver
}

func (r *Region) StartKey() []byte {
	return r.Meta.StartKey
}

func (r *Region) EndKey() []byte {
	return r.Meta.EndKey
}

func (r *Region) Contains(key []byte) bool {
	return bytes.Compare(r.Meta.StartKey, key) <= 0 &&
		(len(r.Meta.EndKey) == 0 || bytes.Compare(key, r.Meta.EndKey) < 0)
}

// Context builds the request context for the region's leader. It fails with
// ErrNoLeader while the region has no known leader, which happens during
// elections and is expected to be transient.
func (r *Region) Context() (*RpcContext, error) {
	if r.Leader == nil || r.LeaderAddr == "" {
		return nil, noLeaderError{RegionID: r.Meta.ID}
	}

	return &RpcContext{
		Region:   r.VerID(),
		Endpoint: r.LeaderAddr,
		Meta: &kvrpcx.Context{
			RegionID:    r.Meta.ID,
			RegionEpoch: r.Meta.RegionEpoch,
			Peer:        r.Leader,
		},
	}, nil
}
