package shardkvx

import (
	"context"
	"errors"

	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/kvshard/shardkvx/zaputils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// LockCommandExecutor sends the commands needed to resolve locks.
type LockCommandExecutor interface {
	// Cleanup learns, and if needed forces, the outcome of the transaction
	// startVersion through its primary lock. It returns the commit version,
	// or 0 if the transaction was rolled back.
	Cleanup(ctx context.Context, placement PlacementOracle, primary []byte, startVersion uint64) (uint64, error)

	// ResolveLock applies an outcome to the locks of the transaction
	// startVersion in the region addressed by rpcCtx.
	ResolveLock(ctx context.Context, rpcCtx *RpcContext, startVersion, commitVersion uint64) error
}

type LockResolverOptions struct {
	Logger   *zap.Logger
	Executor LockCommandExecutor

	// RetryManager controls how resolving a single lock is retried when its
	// region moves or has no leader. Defaults to NewRetryManagerDefault(nil).
	RetryManager RetryManager
}

// LockResolver cleans up locks left behind by stalled or crashed
// transactions. It holds no state between calls.
type LockResolver struct {
	logger   *zap.Logger
	executor LockCommandExecutor
	retries  RetryManager
}

func NewLockResolver(opts *LockResolverOptions) (*LockResolver, error) {
	if opts == nil || opts.Executor == nil {
		return nil, invalidArgumentError{"lock resolver requires an executor"}
	}

	retries := opts.RetryManager
	if retries == nil {
		retries = NewRetryManagerDefault(nil)
	}

	return &LockResolver{
		logger:   loggerOrNop(opts.Logger),
		executor: opts.Executor,
		retries:  retries,
	}, nil
}

// ResolveLocks resolves every lock whose TTL has expired, judged against a
// single timestamp fetched at the start of the call. The outcome of each
// transaction is decided once by its primary lock and applied to the region
// of every secondary. Locks are processed in order and the first
// non-retriable error is returned; locks resolved before it stay resolved.
func (lr *LockResolver) ResolveLocks(
	ctx context.Context,
	locks []*kvrpcx.LockInfo,
	placement PlacementOracle,
) error {
	ctx, span := tracer.Start(ctx, "ResolveLocks")
	defer span.End()

	span.SetAttributes(attribute.Int("shardkv.num_locks", len(locks)))

	err := lr.resolveLocks(ctx, locks, placement)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (lr *LockResolver) resolveLocks(
	ctx context.Context,
	locks []*kvrpcx.LockInfo,
	placement PlacementOracle,
) error {
	now, err := placement.CurrentTimestamp(ctx)
	if err != nil {
		return err
	}

	// lock version -> commit version, 0 meaning rolled back
	commitVersions := make(map[uint64]uint64)
	// lock version -> region incarnations already resolved
	cleanedRegions := make(map[uint64]map[RegionVerID]struct{})

	for _, lock := range locks {
		if !lockExpired(now, lock.LockVersion, lock.LockTTL) {
			lockResolverLocks.Add(ctx, 1, attrNotExpired)
			continue
		}
		lockResolverLocks.Add(ctx, 1, attrExpired)

		region, err := placement.RegionForKey(ctx, lock.Key)
		if err != nil {
			return err
		}

		// Keyed on the region of the lock's own key rather than its primary's,
		// since that is the region ResolveLock is sent to.
		if _, ok := cleanedRegions[lock.LockVersion][region.VerID()]; ok {
			continue
		}

		commitVersion, ok := commitVersions[lock.LockVersion]
		if !ok {
			lockResolverCleanups.Add(ctx, 1)

			commitVersion, err = lr.executor.Cleanup(ctx, placement, lock.PrimaryLock, lock.LockVersion)
			if err != nil {
				return err
			}

			lr.logger.Debug("determined transaction outcome",
				zaputils.TxnVersion("lockVersion", lock.LockVersion),
				zaputils.Key("primary", lock.PrimaryLock),
				zap.Uint64("commitVersion", commitVersion))

			commitVersions[lock.LockVersion] = commitVersion
		}

		cleanedRegion, err := lr.resolveLockWithRetry(ctx, placement, lock.Key, lock.LockVersion, commitVersion)
		if err != nil {
			return err
		}

		regions, ok := cleanedRegions[lock.LockVersion]
		if !ok {
			regions = make(map[RegionVerID]struct{})
			cleanedRegions[lock.LockVersion] = regions
		}
		regions[cleanedRegion] = struct{}{}
	}

	return nil
}

// resolveLockWithRetry applies the outcome of the transaction startVersion
// to the region currently owning key, returning the region incarnation the
// outcome was applied to.
func (lr *LockResolver) resolveLockWithRetry(
	ctx context.Context,
	placement PlacementOracle,
	key []byte,
	startVersion, commitVersion uint64,
) (RegionVerID, error) {
	return OrchestrateRetries(ctx, lr.retries, func() (RegionVerID, error) {
		region, err := placement.RegionForKey(ctx, key)
		if err != nil {
			return RegionVerID{}, err
		}

		rpcCtx, err := region.Context()
		if err != nil {
			if errors.Is(err, ErrNoLeader) {
				placement.InvalidateRegion(region.VerID())
				lockResolverRegionRetries.Add(ctx, 1)
			}
			return RegionVerID{}, err
		}

		err = lr.executor.ResolveLock(ctx, rpcCtx, startVersion, commitVersion)
		if err != nil {
			if isRoutingError(err) {
				lr.logger.Debug("resolve lock hit stale routing",
					zaputils.Key("key", key),
					zaputils.RegionVer("region", rpcCtx.Region.ID, rpcCtx.Region.ConfVer, rpcCtx.Region.Ver),
					zap.Error(err))

				placement.InvalidateRegion(region.VerID())
				lockResolverRegionRetries.Add(ctx, 1)
			}
			return RegionVerID{}, err
		}

		if commitVersion != 0 {
			lockResolverResolves.Add(ctx, 1, attrCommitted)
		} else {
			lockResolverResolves.Add(ctx, 1, attrRolledBack)
		}

		return rpcCtx.Region, nil
	})
}
