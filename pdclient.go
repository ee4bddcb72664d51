package shardkvx

import (
	"context"
	"crypto/tls"

	"github.com/google/uuid"
	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/kvshard/shardkvx/zaputils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// PdClient talks to the placement service.
type PdClient interface {
	GetTimestamp(ctx context.Context) (Timestamp, error)
	GetRegion(ctx context.Context, key []byte) (*kvrpcx.Region, *kvrpcx.Peer, error)
	GetStore(ctx context.Context, storeID uint64) (*kvrpcx.Store, error)
	Close() error
}

type PdClientConfig struct {
	Address   string
	TlsConfig *tls.Config
}

type PdClientOptions struct {
	Logger *zap.Logger

	// DialOptions are appended to the options used to create the
	// underlying connection.
	DialOptions []grpc.DialOption
}

type pdClient struct {
	logger *zap.Logger
	conn   *grpc.ClientConn
}

var _ PdClient = (*pdClient)(nil)

func NewPdClient(config *PdClientConfig, opts *PdClientOptions) (*pdClient, error) {
	if config == nil || config.Address == "" {
		return nil, invalidArgumentError{"placement service address must be specified"}
	}
	if opts == nil {
		opts = &PdClientOptions{}
	}

	logger := loggerOrNop(opts.Logger)
	logger = logger.With(
		zap.String("pdClientId", uuid.NewString()[:8]),
	)

	var creds credentials.TransportCredentials
	if config.TlsConfig != nil {
		creds = credentials.NewTLS(config.TlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(config.Address, dialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create placement service connection")
	}

	logger.Debug("created placement service client",
		zap.String("address", config.Address))

	return &pdClient{
		logger: logger,
		conn:   conn,
	}, nil
}

func (c *pdClient) invoke(ctx context.Context, op, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, method, req, resp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrapf(ctxErr, "placement %s interrupted", op)
		}
		return placementError{Op: op, Cause: err}
	}
	return nil
}

func checkPdHeader(op string, header *kvrpcx.ResponseHeader) error {
	if header != nil && header.Error != nil {
		return placementError{
			Op:    op,
			Cause: errors.Errorf("%s: %s", header.Error.Type, header.Error.Message),
		}
	}
	return nil
}

func (c *pdClient) GetTimestamp(ctx context.Context) (Timestamp, error) {
	resp := &kvrpcx.TsoResponse{}
	err := c.invoke(ctx, "tso", kvrpcx.MethodPdTso, &kvrpcx.TsoRequest{Count: 1}, resp)
	if err != nil {
		return Timestamp{}, err
	}
	if err := checkPdHeader("tso", resp.Header); err != nil {
		return Timestamp{}, err
	}
	if resp.Timestamp == nil {
		return Timestamp{}, placementError{Op: "tso", Cause: errors.New("response missing timestamp")}
	}

	return Timestamp{
		Physical: resp.Timestamp.Physical,
		Logical:  resp.Timestamp.Logical,
	}, nil
}

func (c *pdClient) GetRegion(ctx context.Context, key []byte) (*kvrpcx.Region, *kvrpcx.Peer, error) {
	resp := &kvrpcx.GetRegionResponse{}
	err := c.invoke(ctx, "get region", kvrpcx.MethodPdGetRegion, &kvrpcx.GetRegionRequest{RegionKey: key}, resp)
	if err != nil {
		return nil, nil, err
	}
	if err := checkPdHeader("get region", resp.Header); err != nil {
		return nil, nil, err
	}
	if resp.Region == nil {
		c.logger.Debug("placement service returned no region",
			zaputils.Key("key", key))
		return nil, nil, placementError{Op: "get region", Cause: errors.New("no region found for key")}
	}

	return resp.Region, resp.Leader, nil
}

func (c *pdClient) GetStore(ctx context.Context, storeID uint64) (*kvrpcx.Store, error) {
	resp := &kvrpcx.GetStoreResponse{}
	err := c.invoke(ctx, "get store", kvrpcx.MethodPdGetStore, &kvrpcx.GetStoreRequest{StoreID: storeID}, resp)
	if err != nil {
		return nil, err
	}
	if err := checkPdHeader("get store", resp.Header); err != nil {
		return nil, err
	}
	if resp.Store == nil {
		return nil, placementError{Op: "get store", Cause: errors.Errorf("store %d not found", storeID)}
	}

	return resp.Store, nil
}

func (c *pdClient) Close() error {
	c.logger.Debug("closing placement service client")
	return c.conn.Close()
}
