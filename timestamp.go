package shardkvx

import (
	"fmt"
	"math"
	"time"
)

const (
	physicalShiftBits = 18
	logicalMask       = (1 << physicalShiftBits) - 1
)

// Timestamp is a logical clock value handed out by the placement service.
// Physical is in milliseconds since the unix epoch.
type Timestamp struct {
	Physical int64
	Logical  int64
}

// TimestampFromVersion splits a transaction version back into its
// timestamp components.
func TimestampFromVersion(version uint64) Timestamp {
	return Timestamp{
		Physical: int64(version >> physicalShiftBits),
		Logical:  int64(version & logicalMask),
	}
}

func (ts Timestamp) Version() uint64 {
	return uint64(ts.Physical)<<physicalShiftBits | uint64(ts.Logical)&logicalMask
}

func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(ts.Physical)
}

// Compare orders timestamps by physical then logical component.
func (ts Timestamp) Compare(o Timestamp) int {
	switch {
	case ts.Physical < o.Physical:
		return -1
	case ts.Physical > o.Physical:
		return 1
	case ts.Logical < o.Logical:
		return -1
	case ts.Logical > o.Logical:
		return 1
	}
	return 0
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%d.%d", ts.Physical, ts.Logical)
}

// lockExpired reports whether a lock taken by the transaction startVersion
// has outlived ttlMs as seen at now. Only the physical component is
// compared. TTLs beyond math.MaxInt64 never expire.
func lockExpired(now Timestamp, startVersion uint64, ttlMs uint64) bool {
	if ttlMs > math.MaxInt64 {
		ttlMs = math.MaxInt64
	}
	return now.Physical-TimestampFromVersion(startVersion).Physical >= int64(ttlMs)
}
