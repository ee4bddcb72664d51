package kvrpcx

// LockInfo describes a lock left on Key by the transaction that started at
// LockVersion. LockTTL is in milliseconds.
type LockInfo struct {
	Key         []byte `json:"key"`
	PrimaryLock []byte `json:"primary_lock"`
	LockVersion uint64 `json:"lock_version"`
	LockTTL     uint64 `json:"lock_ttl"`
}

type KvPair struct {
	Error *KeyError `json:"error,omitempty"`
	Key   []byte    `json:"key"`
	Value []byte    `json:"value"`
}

type GetRequest struct {
	Context *Context `json:"context"`
	Key     []byte   `json:"key"`
	Version uint64   `json:"version"`
}

type GetResponse struct {
	RegionError *RegionError `json:"region_error,omitempty"`
	Error       *KeyError    `json:"error,omitempty"`
	Value       []byte       `json:"value"`
	NotFound    bool         `json:"not_found"`
}

type BatchGetRequest struct {
	Context *Context `json:"context"`
	Keys    [][]byte `json:"keys"`
	Version uint64   `json:"version"`
}

type BatchGetResponse struct {
	RegionError *RegionError `json:"region_error,omitempty"`
	Pairs       []*KvPair    `json:"pairs"`
}

type ScanRequest struct {
	Context  *Context `json:"context"`
	StartKey []byte   `json:"start_key"`
	EndKey   []byte   `json:"end_key"`
	Limit    uint32   `json:"limit"`
	Version  uint64   `json:"version"`
	KeyOnly  bool     `json:"key_only"`
}

type ScanResponse struct {
	RegionError *RegionError `json:"region_error,omitempty"`
	Pairs       []*KvPair    `json:"pairs"`
}

// CleanupRequest asks the store to determine the fate of the transaction
// owning the primary lock on Key, rolling it back if it has not committed.
type CleanupRequest struct {
	Context      *Context `json:"context"`
	Key          []byte   `json:"key"`
	StartVersion uint64   `json:"start_version"`
	CurrentTs    uint64   `json:"current_ts"`
}

// CleanupResponse carries the commit version of the transaction, or 0 if it
// was rolled back.
type CleanupResponse struct {
	RegionError   *RegionError `json:"region_error,omitempty"`
	Error         *KeyError    `json:"error,omitempty"`
	CommitVersion uint64       `json:"commit_version"`
}

// ResolveLockRequest commits (CommitVersion != 0) or rolls back
// (CommitVersion == 0) every lock of the transaction StartVersion in the
// region. When Keys is set only those keys are resolved.
type ResolveLockRequest struct {
	Context       *Context `json:"context"`
	StartVersion  uint64   `json:"start_version"`
	CommitVersion uint64   `json:"commit_version"`
	Keys          [][]byte `json:"keys,omitempty"`
}

type ResolveLockResponse struct {
	RegionError *RegionError `json:"region_error,omitempty"`
	Error       *KeyError    `json:"error,omitempty"`
}
