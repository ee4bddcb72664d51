package kvrpcx

// Fully qualified gRPC method names served by stores and by the placement
// service.
const (
	MethodKvGet         = "/shardkv.Kv/KvGet"
	MethodKvBatchGet    = "/shardkv.Kv/KvBatchGet"
	MethodKvScan        = "/shardkv.Kv/KvScan"
	MethodKvCleanup     = "/shardkv.Kv/KvCleanup"
	MethodKvResolveLock = "/shardkv.Kv/KvResolveLock"

	MethodPdTso       = "/shardkv.Pd/Tso"
	MethodPdGetRegion = "/shardkv.Pd/GetRegion"
	MethodPdGetStore  = "/shardkv.Pd/GetStore"
)
