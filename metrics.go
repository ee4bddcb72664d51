package shardkvx

import (
	"github.com/kvshard/shardkvx/contrib/buildversion"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	buildVersion string = buildversion.GetVersion("github.com/kvshard/shardkvx")
	meter               = otel.Meter("github.com/kvshard/shardkvx",
		metric.WithInstrumentationVersion(buildVersion))
	tracer = otel.Tracer("github.com/kvshard/shardkvx")
)

var (
	// lockResolverLocks counts every lock handed to the lock resolver,
	// split by whether its TTL had expired.
	lockResolverLocks, _ = meter.Int64Counter("shardkvx.lockresolver.locks")

	// lockResolverCleanups counts cleanup commands sent to primary keys.
	lockResolverCleanups, _ = meter.Int64Counter("shardkvx.lockresolver.cleanups")

	// lockResolverResolves counts successful resolve commands, split by
	// whether the transaction was committed or rolled back.
	lockResolverResolves, _ = meter.Int64Counter("shardkvx.lockresolver.resolves")

	// lockResolverRegionRetries counts resolve attempts which had to be
	// routed again.
	lockResolverRegionRetries, _ = meter.Int64Counter("shardkvx.lockresolver.region_retries")
)

var (
	attrExpired    = metric.WithAttributes(attribute.Bool("expired", true))
	attrNotExpired = metric.WithAttributes(attribute.Bool("expired", false))
	attrCommitted  = metric.WithAttributes(attribute.String("outcome", "committed"))
	attrRolledBack = metric.WithAttributes(attribute.String("outcome", "rolled_back"))
)
