package zaputils

import (
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

type loggableKey []byte

func (k loggableKey) String() string {
	return hex.EncodeToString(k)
}

// Key logs a store key as hex, keys are arbitrary bytes.
func Key(key string, val []byte) zap.Field {
	return zap.Stringer(key, loggableKey(val))
}

type LoggableRegionVer struct {
	ID      uint64
	ConfVer uint64
	Ver     uint64
}

func (e LoggableRegionVer) String() string {
	return fmt.Sprintf("%d@%d/%d", e.ID, e.ConfVer, e.Ver)
}

func RegionVer(key string, id, confVer, ver uint64) zap.Field {
	return zap.Stringer(key, LoggableRegionVer{
		ID:      id,
		ConfVer: confVer,
		Ver:     ver,
	})
}

func TxnVersion(key string, version uint64) zap.Field {
	return zap.Uint64(key, version)
}
