package shardkvx

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type KvClientConfig struct {
	Address   string
	TlsConfig *tls.Config

	// UseCompression enables snappy compression of request and response
	// payloads.
	UseCompression bool
}

type KvClientOptions struct {
	Logger      *zap.Logger
	DialOptions []grpc.DialOption
}

type KvClientOps interface {
	Get(ctx context.Context, req *kvrpcx.GetRequest) (*kvrpcx.GetResponse, error)
	BatchGet(ctx context.Context, req *kvrpcx.BatchGetRequest) (*kvrpcx.BatchGetResponse, error)
	Scan(ctx context.Context, req *kvrpcx.ScanRequest) (*kvrpcx.ScanResponse, error)
	Cleanup(ctx context.Context, req *kvrpcx.CleanupRequest) (*kvrpcx.CleanupResponse, error)
	ResolveLock(ctx context.Context, req *kvrpcx.ResolveLockRequest) (*kvrpcx.ResolveLockResponse, error)
}

// KvClient sends requests to a single store. Responses carrying a region
// error are returned together with a *kvrpcx.ServerRegionError, key errors
// are left on the response for the caller to inspect.
type KvClient interface {
	RemoteAddress() string
	Close() error

	KvClientOps
}

// KvClientDispatchError indicates a request could not be delivered to the
// store, the request may be retried on a new client.
type KvClientDispatchError struct {
	Cause error
}

func (e KvClientDispatchError) Error() string {
	return fmt.Sprintf("dispatch error: %s", e.Cause)
}

func (e KvClientDispatchError) Unwrap() error {
	return e.Cause
}

type kvClient struct {
	logger  *zap.Logger
	address string
	conn    *grpc.ClientConn

	closed atomic.Bool
}

var _ KvClient = (*kvClient)(nil)

func NewKvClient(config *KvClientConfig, opts *KvClientOptions) (*kvClient, error) {
	if config == nil || config.Address == "" {
		return nil, invalidArgumentError{"kv client address must be specified"}
	}
	if opts == nil {
		opts = &KvClientOptions{}
	}

	logger := loggerOrNop(opts.Logger)
	// We namespace the client to improve debugging,
	logger = logger.With(
		zap.String("clientId", uuid.NewString()[:8]),
	)

	var creds credentials.TransportCredentials
	if config.TlsConfig != nil {
		creds = credentials.NewTLS(config.TlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	callOpts := []grpc.CallOption{grpc.ForceCodec(jsonCodec{})}
	if config.UseCompression {
		callOpts = append(callOpts, grpc.UseCompressor(snappyCompressorName))
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(callOpts...),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(config.Address, dialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kv connection")
	}

	logger.Debug("created kv client",
		zap.String("address", config.Address),
		zap.Bool("compression", config.UseCompression))

	return &kvClient{
		logger:  logger,
		address: config.Address,
		conn:    conn,
	}, nil
}

func (c *kvClient) RemoteAddress() string {
	return c.address
}

func (c *kvClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Debug("closing kv client")
	return c.conn.Close()
}

func (c *kvClient) invoke(ctx context.Context, method string, req, resp any) error {
	if c.closed.Load() {
		return KvClientDispatchError{ErrClosed}
	}

	err := c.conn.Invoke(ctx, method, req, resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		switch status.Code(err) {
		case codes.Unavailable, codes.Canceled:
			return KvClientDispatchError{err}
		}

		return contextualError{
			Message: fmt.Sprintf("%s to %s failed", method, c.address),
			Cause:   err,
		}
	}

	return nil
}

func regionErrorOf(regionErr *kvrpcx.RegionError) error {
	if regionErr == nil {
		return nil
	}
	return kvrpcx.NewServerRegionError(regionErr)
}

func (c *kvClient) Get(ctx context.Context, req *kvrpcx.GetRequest) (*kvrpcx.GetResponse, error) {
	resp := &kvrpcx.GetResponse{}
	if err := c.invoke(ctx, kvrpcx.MethodKvGet, req, resp); err != nil {
		return nil, err
	}
	return resp, regionErrorOf(resp.RegionError)
}

func (c *kvClient) BatchGet(ctx context.Context, req *kvrpcx.BatchGetRequest) (*kvrpcx.BatchGetResponse, error) {
	resp := &kvrpcx.BatchGetResponse{}
	if err := c.invoke(ctx, kvrpcx.MethodKvBatchGet, req, resp); err != nil {
		return nil, err
	}
	return resp, regionErrorOf(resp.RegionError)
}

func (c *kvClient) Scan(ctx context.Context, req *kvrpcx.ScanRequest) (*kvrpcx.ScanResponse, error) {
	resp := &kvrpcx.ScanResponse{}
	if err := c.invoke(ctx, kvrpcx.MethodKvScan, req, resp); err != nil {
		return nil, err
	}
	return resp, regionErrorOf(resp.RegionError)
}

func (c *kvClient) Cleanup(ctx context.Context, req *kvrpcx.CleanupRequest) (*kvrpcx.CleanupResponse, error) {
	resp := &kvrpcx.CleanupResponse{}
	if err := c.invoke(ctx, kvrpcx.MethodKvCleanup, req, resp); err != nil {
		return nil, err
	}
	return resp, regionErrorOf(resp.RegionError)
}

func (c *kvClient) ResolveLock(ctx context.Context, req *kvrpcx.ResolveLockRequest) (*kvrpcx.ResolveLockResponse, error) {
	resp := &kvrpcx.ResolveLockResponse{}
	if err := c.invoke(ctx, kvrpcx.MethodKvResolveLock, req, resp); err != nil {
		return nil, err
	}
	return resp, regionErrorOf(resp.RegionError)
}
