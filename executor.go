package shardkvx

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/kvshard/shardkvx/zaputils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrTxnLockAlive is returned by Cleanup when the store still considers the
// primary lock of the transaction to be alive.
var ErrTxnLockAlive = errors.New("transaction lock is still alive")

type txnLockAliveError struct {
	Lock *kvrpcx.LockInfo
}

func (e txnLockAliveError) Error() string {
	return fmt.Sprintf("primary lock of transaction %d is still alive (ttl %dms)", e.Lock.LockVersion, e.Lock.LockTTL)
}

func (e txnLockAliveError) Unwrap() error {
	return ErrTxnLockAlive
}

// isRoutingError reports whether err means the request was sent using
// routing information which is no longer valid.
func isRoutingError(err error) bool {
	var dispatchErr KvClientDispatchError
	return errors.Is(err, kvrpcx.ErrRegionError) ||
		errors.Is(err, ErrNoLeader) ||
		errors.As(err, &dispatchErr)
}

// orchestrateRegionAttempt sends one request to the leader of region. If the
// attempt fails because the routing was stale, the region is invalidated so
// the next lookup fetches fresh information.
func orchestrateRegionAttempt[RespT any](
	ctx context.Context,
	placement PlacementOracle,
	cm KvClientManager,
	region *Region,
	fn func(rpcCtx *RpcContext, client KvClient) (RespT, error),
) (RespT, error) {
	rpcCtx, err := region.Context()
	if err != nil {
		placement.InvalidateRegion(region.VerID())
		var emptyResp RespT
		return emptyResp, err
	}

	res, err := OrchestrateKvClient(ctx, cm, rpcCtx.Endpoint, func(client KvClient) (RespT, error) {
		return fn(rpcCtx, client)
	})
	if err != nil && isRoutingError(err) {
		placement.InvalidateRegion(region.VerID())
	}
	return res, err
}

// OrchestrateRegionRequest routes a request for key to the leader of its
// region, re-routing and retrying as allowed by rs when the routing turns out
// to be stale.
func OrchestrateRegionRequest[RespT any](
	ctx context.Context,
	rs RetryManager,
	placement PlacementOracle,
	cm KvClientManager,
	key []byte,
	fn func(rpcCtx *RpcContext, client KvClient) (RespT, error),
) (RespT, error) {
	return OrchestrateRetries(ctx, rs, func() (RespT, error) {
		region, err := placement.RegionForKey(ctx, key)
		if err != nil {
			var emptyResp RespT
			return emptyResp, err
		}

		return orchestrateRegionAttempt(ctx, placement, cm, region, fn)
	})
}

type CommandExecutorOptions struct {
	Logger        *zap.Logger
	ClientManager KvClientManager

	// RetryManager controls retries of routed requests. Defaults to
	// NewRetryManagerDefault(nil).
	RetryManager RetryManager
}

// CommandExecutor sends typed commands to the stores owning their keys.
type CommandExecutor struct {
	logger  *zap.Logger
	clients KvClientManager
	retries RetryManager
}

var _ LockCommandExecutor = (*CommandExecutor)(nil)

func NewCommandExecutor(opts *CommandExecutorOptions) (*CommandExecutor, error) {
	if opts == nil || opts.ClientManager == nil {
		return nil, invalidArgumentError{"command executor requires a client manager"}
	}

	retries := opts.RetryManager
	if retries == nil {
		retries = NewRetryManagerDefault(nil)
	}

	return &CommandExecutor{
		logger:  loggerOrNop(opts.Logger),
		clients: opts.ClientManager,
		retries: retries,
	}, nil
}

// Cleanup determines the outcome of the transaction startVersion by cleaning
// up its primary lock, rolling the transaction back if it has not committed.
// It returns the commit version, or 0 if the transaction was rolled back.
func (e *CommandExecutor) Cleanup(
	ctx context.Context,
	placement PlacementOracle,
	primary []byte,
	startVersion uint64,
) (uint64, error) {
	ctx, span := tracer.Start(ctx, "Cleanup",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	commitVersion, err := OrchestrateRegionRequest(ctx, e.retries, placement, e.clients, primary,
		func(rpcCtx *RpcContext, client KvClient) (uint64, error) {
			resp, err := client.Cleanup(ctx, &kvrpcx.CleanupRequest{
				Context:      rpcCtx.Meta,
				Key:          primary,
				StartVersion: startVersion,
			})
			if err != nil {
				return 0, err
			}

			if locks := resp.TakeLocks(); len(locks) > 0 {
				return 0, txnLockAliveError{Lock: locks[0]}
			}
			if resp.Error != nil {
				return 0, &kvrpcx.ServerKeyError{Detail: resp.Error}
			}

			return resp.CommitVersion, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("shardkv.commit_version", int64(commitVersion)))
	return commitVersion, nil
}

// ResolveLock commits (commitVersion != 0) or rolls back every lock of the
// transaction startVersion in the region addressed by rpcCtx. The request is
// sent once, routing errors are returned to the caller.
func (e *CommandExecutor) ResolveLock(
	ctx context.Context,
	rpcCtx *RpcContext,
	startVersion, commitVersion uint64,
) error {
	ctx, span := tracer.Start(ctx, "ResolveLock",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	_, err := OrchestrateKvClient(ctx, e.clients, rpcCtx.Endpoint,
		func(client KvClient) (*kvrpcx.ResolveLockResponse, error) {
			resp, err := client.ResolveLock(ctx, &kvrpcx.ResolveLockRequest{
				Context:       rpcCtx.Meta,
				StartVersion:  startVersion,
				CommitVersion: commitVersion,
			})
			if err != nil {
				return nil, err
			}

			if resp.Error != nil {
				return nil, &kvrpcx.ServerKeyError{Detail: resp.Error}
			}

			return resp, nil
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// Get reads key at version. Key errors, including locks, are left on the
// response.
func (e *CommandExecutor) Get(
	ctx context.Context,
	placement PlacementOracle,
	key []byte,
	version uint64,
) (*kvrpcx.GetResponse, error) {
	return OrchestrateRegionRequest(ctx, e.retries, placement, e.clients, key,
		func(rpcCtx *RpcContext, client KvClient) (*kvrpcx.GetResponse, error) {
			return client.Get(ctx, &kvrpcx.GetRequest{
				Context: rpcCtx.Meta,
				Key:     key,
				Version: version,
			})
		})
}

// BatchGet reads keys at version, sending one request per region. Key
// errors are left on the responses.
func (e *CommandExecutor) BatchGet(
	ctx context.Context,
	placement PlacementOracle,
	keys [][]byte,
	version uint64,
) ([]*kvrpcx.BatchGetResponse, error) {
	pending := keys
	var resps []*kvrpcx.BatchGetResponse

	return OrchestrateRetries(ctx, e.retries, func() ([]*kvrpcx.BatchGetResponse, error) {
		for len(pending) > 0 {
			region, err := placement.RegionForKey(ctx, pending[0])
			if err != nil {
				return nil, err
			}

			var regionKeys, rest [][]byte
			for _, key := range pending {
				if region.Contains(key) {
					regionKeys = append(regionKeys, key)
				} else {
					rest = append(rest, key)
				}
			}

			resp, err := orchestrateRegionAttempt(ctx, placement, e.clients, region,
				func(rpcCtx *RpcContext, client KvClient) (*kvrpcx.BatchGetResponse, error) {
					return client.BatchGet(ctx, &kvrpcx.BatchGetRequest{
						Context: rpcCtx.Meta,
						Keys:    regionKeys,
						Version: version,
					})
				})
			if err != nil {
				return nil, err
			}

			resps = append(resps, resp)
			pending = rest
		}

		return resps, nil
	})
}

// Scan reads up to limit pairs in [startKey, endKey) at version, walking the
// regions covering the range in key order. An empty endKey scans to the end
// of the keyspace.
func (e *CommandExecutor) Scan(
	ctx context.Context,
	placement PlacementOracle,
	startKey, endKey []byte,
	limit uint32,
	version uint64,
) ([]*kvrpcx.ScanResponse, error) {
	cursor := startKey
	remaining := limit
	var resps []*kvrpcx.ScanResponse

	return OrchestrateRetries(ctx, e.retries, func() ([]*kvrpcx.ScanResponse, error) {
		for remaining > 0 {
			region, err := placement.RegionForKey(ctx, cursor)
			if err != nil {
				return nil, err
			}

			reqEnd := endKey
			regionEnd := region.EndKey()
			if len(regionEnd) > 0 && (len(reqEnd) == 0 || bytes.Compare(regionEnd, reqEnd) < 0) {
				reqEnd = regionEnd
			}

			resp, err := orchestrateRegionAttempt(ctx, placement, e.clients, region,
				func(rpcCtx *RpcContext, client KvClient) (*kvrpcx.ScanResponse, error) {
					return client.Scan(ctx, &kvrpcx.ScanRequest{
						Context:  rpcCtx.Meta,
						StartKey: cursor,
						EndKey:   reqEnd,
						Limit:    remaining,
						Version:  version,
					})
				})
			if err != nil {
				return nil, err
			}

			resps = append(resps, resp)
			if uint32(len(resp.Pairs)) >= remaining {
				remaining = 0
				break
			}
			remaining -= uint32(len(resp.Pairs))

			if len(regionEnd) == 0 || (len(endKey) > 0 && bytes.Compare(regionEnd, endKey) >= 0) {
				break
			}
			cursor = regionEnd

			e.logger.Debug("scan continuing into next region",
				zaputils.Key("cursor", cursor),
				zap.Uint32("remaining", remaining))
		}

		return resps, nil
	})
}
