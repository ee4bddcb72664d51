package kvrpcx

type PdError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ResponseHeader struct {
	ClusterID uint64   `json:"cluster_id"`
	Error     *PdError `json:"error,omitempty"`
}

type TsoRequest struct {
	Count uint32 `json:"count"`
}

type TsoTimestamp struct {
	Physical int64 `json:"physical"`
	Logical  int64 `json:"logical"`
}

type TsoResponse struct {
	Header    *ResponseHeader `json:"header"`
	Count     uint32          `json:"count"`
	Timestamp *TsoTimestamp   `json:"timestamp"`
}

type GetRegionRequest struct {
	RegionKey []byte `json:"region_key"`
}

type GetRegionResponse struct {
	Header *ResponseHeader `json:"header"`
	Region *Region         `json:"region"`
	Leader *Peer           `json:"leader"`
}

type GetStoreRequest struct {
	StoreID uint64 `json:"store_id"`
}

type GetStoreResponse struct {
	Header *ResponseHeader `json:"header"`
	Store  *Store          `json:"store"`
}
