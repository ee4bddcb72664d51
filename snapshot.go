package shardkvx

import (
	"context"
	"fmt"

	"github.com/kvshard/shardkvx/kvrpcx"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type KvPair struct {
	Key   []byte
	Value []byte
}

type SnapshotOptions struct {
	Logger    *zap.Logger
	Placement PlacementOracle
	Executor  *CommandExecutor
	Resolver  *LockResolver

	// RetryManager controls how reads are retried after meeting locks.
	// Defaults to NewRetryManagerDefault(nil).
	RetryManager RetryManager
}

// Snapshot is a read-only view of the store at a fixed timestamp. Locks met
// while reading are handed to the lock resolver and the read is retried.
type Snapshot struct {
	logger    *zap.Logger
	version   Timestamp
	placement PlacementOracle
	executor  *CommandExecutor
	resolver  *LockResolver
	retries   RetryManager
}

func NewSnapshot(version Timestamp, opts *SnapshotOptions) (*Snapshot, error) {
	if opts == nil || opts.Placement == nil || opts.Executor == nil || opts.Resolver == nil {
		return nil, invalidArgumentError{"snapshot requires placement, executor and resolver"}
	}

	retries := opts.RetryManager
	if retries == nil {
		retries = NewRetryManagerDefault(nil)
	}

	return &Snapshot{
		logger:    loggerOrNop(opts.Logger),
		version:   version,
		placement: opts.Placement,
		executor:  opts.Executor,
		resolver:  opts.Resolver,
		retries:   retries,
	}, nil
}

func (s *Snapshot) Timestamp() Timestamp {
	return s.version
}

type encounteredLocksError struct {
	NumLocks int
}

func (e encounteredLocksError) Error() string {
	return fmt.Sprintf("read encountered %d locks", e.NumLocks)
}

func (e encounteredLocksError) Unwrap() error {
	return kvrpcx.ErrKeyIsLocked
}

// resolveEncounteredLocks drains the locks carried by resps and resolves
// them. It returns an error matching kvrpcx.ErrKeyIsLocked if there were any,
// since the read has to be repeated.
func resolveEncounteredLocks[RespT kvrpcx.HasLocks](ctx context.Context, s *Snapshot, resps ...RespT) error {
	var locks []*kvrpcx.LockInfo
	for _, resp := range resps {
		locks = append(locks, resp.TakeLocks()...)
	}
	if len(locks) == 0 {
		return nil
	}

	s.logger.Debug("read encountered locks",
		zap.Int("numLocks", len(locks)),
		zap.Stringer("snapshotTs", s.version))

	err := s.resolver.ResolveLocks(ctx, locks, s.placement)
	if err != nil {
		return err
	}

	return encounteredLocksError{NumLocks: len(locks)}
}

func pairsFrom(pairs []*kvrpcx.KvPair) ([]KvPair, error) {
	out := make([]KvPair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Error != nil {
			return nil, &kvrpcx.ServerKeyError{Detail: pair.Error}
		}
		out = append(out, KvPair{
			Key:   pair.Key,
			Value: pair.Value,
		})
	}
	return out, nil
}

// Get returns the value of key, or ErrKeyNotFound.
func (s *Snapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "SnapshotGet")
	defer span.End()

	resp, err := OrchestrateRetries(ctx, s.retries, func() (*kvrpcx.GetResponse, error) {
		resp, err := s.executor.Get(ctx, s.placement, key, s.version.Version())
		if err != nil {
			return nil, err
		}

		if err := resolveEncounteredLocks(ctx, s, resp); err != nil {
			return nil, err
		}

		return resp, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if resp.Error != nil {
		return nil, &kvrpcx.ServerKeyError{Detail: resp.Error}
	}
	if resp.NotFound {
		return nil, ErrKeyNotFound
	}

	return resp.Value, nil
}

// BatchGet returns the pairs for the keys which exist.
func (s *Snapshot) BatchGet(ctx context.Context, keys [][]byte) ([]KvPair, error) {
	ctx, span := tracer.Start(ctx, "SnapshotBatchGet")
	defer span.End()

	resps, err := OrchestrateRetries(ctx, s.retries, func() ([]*kvrpcx.BatchGetResponse, error) {
		resps, err := s.executor.BatchGet(ctx, s.placement, keys, s.version.Version())
		if err != nil {
			return nil, err
		}

		if err := resolveEncounteredLocks(ctx, s, resps...); err != nil {
			return nil, err
		}

		return resps, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out []KvPair
	for _, resp := range resps {
		pairs, err := pairsFrom(resp.Pairs)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}

	return out, nil
}

// Scan returns up to limit pairs in [startKey, endKey) in key order. An
// empty endKey scans to the end of the keyspace.
func (s *Snapshot) Scan(ctx context.Context, startKey, endKey []byte, limit uint32) ([]KvPair, error) {
	ctx, span := tracer.Start(ctx, "SnapshotScan")
	defer span.End()

	if limit == 0 {
		return nil, nil
	}

	resps, err := OrchestrateRetries(ctx, s.retries, func() ([]*kvrpcx.ScanResponse, error) {
		resps, err := s.executor.Scan(ctx, s.placement, startKey, endKey, limit, s.version.Version())
		if err != nil {
			return nil, err
		}

		if err := resolveEncounteredLocks(ctx, s, resps...); err != nil {
			return nil, err
		}

		return resps, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out []KvPair
	for _, resp := range resps {
		pairs, err := pairsFrom(resp.Pairs)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}

	if uint32(len(out)) > limit {
		out = out[:limit]
	}

	return out, nil
}
