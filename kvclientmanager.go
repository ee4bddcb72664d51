package shardkvx

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dispatch failures are retried on a fresh client this many times before
// being returned to the caller.
const maxDispatchAttempts = 2

type KvClientManager interface {
	GetClient(ctx context.Context, endpoint string) (KvClient, error)
	ShutdownClient(endpoint string, client KvClient)
	Close() error
}

type NewKvClientFunc func(config *KvClientConfig) (KvClient, error)

type KvClientManagerConfig struct {
	TlsConfig      *tls.Config
	UseCompression bool
}

type KvClientManagerOptions struct {
	Logger        *zap.Logger
	NewKvClientFn NewKvClientFunc
}

type kvClientManager struct {
	logger        *zap.Logger
	config        KvClientManagerConfig
	newKvClientFn NewKvClientFunc

	lock    sync.Mutex
	clients map[string]KvClient
	closed  bool
}

var _ KvClientManager = (*kvClientManager)(nil)

func NewKvClientManager(
	config *KvClientManagerConfig,
	opts *KvClientManagerOptions,
) (*kvClientManager, error) {
	if config == nil {
		return nil, errors.New("must pass config for KvClientManager")
	}
	if opts == nil {
		opts = &KvClientManagerOptions{}
	}

	logger := loggerOrNop(opts.Logger)
	logger = logger.With(
		zap.String("mgrId", uuid.NewString()[:8]),
	)

	return &kvClientManager{
		logger:        logger,
		config:        *config,
		newKvClientFn: opts.NewKvClientFn,
		clients:       make(map[string]KvClient),
	}, nil
}

func (m *kvClientManager) newKvClient(endpoint string) (KvClient, error) {
	clientConfig := &KvClientConfig{
		Address:        endpoint,
		TlsConfig:      m.config.TlsConfig,
		UseCompression: m.config.UseCompression,
	}

	if m.newKvClientFn != nil {
		return m.newKvClientFn(clientConfig)
	}
	return NewKvClient(clientConfig, &KvClientOptions{
		Logger: m.logger.Named("client"),
	})
}

func (m *kvClientManager) GetClient(ctx context.Context, endpoint string) (KvClient, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if client, ok := m.clients[endpoint]; ok {
		return client, nil
	}

	client, err := m.newKvClient(endpoint)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("created client for endpoint",
		zap.String("endpoint", endpoint))

	m.clients[endpoint] = client
	return client, nil
}

func (m *kvClientManager) ShutdownClient(endpoint string, client KvClient) {
	m.lock.Lock()
	current, ok := m.clients[endpoint]
	if ok && current == client {
		delete(m.clients, endpoint)
	}
	m.lock.Unlock()

	if !ok || current != client {
		// someone else already replaced this client
		return
	}

	m.logger.Debug("shutting down client",
		zap.String("endpoint", endpoint))

	if err := client.Close(); err != nil {
		m.logger.Debug("failed to close client", zap.Error(err))
	}
}

func (m *kvClientManager) Close() error {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return illegalStateError{"kv client manager already closed"}
	}
	m.closed = true
	clients := m.clients
	m.clients = nil
	m.lock.Unlock()

	m.logger.Info("closing kv client manager")

	for endpoint, client := range clients {
		if err := client.Close(); err != nil {
			m.logger.Debug("failed to close kv client",
				zap.String("endpoint", endpoint),
				zap.Error(err))
		}
	}

	return nil
}

func OrchestrateKvClient[RespT any](
	ctx context.Context,
	cm KvClientManager,
	endpoint string,
	fn func(client KvClient) (RespT, error),
) (RespT, error) {
	var attempts int
	for {
		cli, err := cm.GetClient(ctx, endpoint)
		if err != nil {
			var emptyResp RespT
			return emptyResp, err
		}

		res, err := fn(cli)
		if err != nil {
			var dispatchErr KvClientDispatchError
			if errors.As(err, &dispatchErr) {
				// this was a dispatch error, so we can just try with
				// a different client instead...
				cm.ShutdownClient(endpoint, cli)

				attempts++
				if attempts < maxDispatchAttempts {
					continue
				}
			}

			return res, err
		}

		return res, nil
	}
}
