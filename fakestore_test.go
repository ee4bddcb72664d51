package shardkvx

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/kvshard/shardkvx/testutils"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const fakeConnBufferSize = 1 << 20

// fakeStore serves the kv service in-process. Handlers left nil reply with
// codes.Unimplemented.
type fakeStore struct {
	get         func(req *kvrpcx.GetRequest) *kvrpcx.GetResponse
	batchGet    func(req *kvrpcx.BatchGetRequest) *kvrpcx.BatchGetResponse
	scan        func(req *kvrpcx.ScanRequest) *kvrpcx.ScanResponse
	cleanup     func(req *kvrpcx.CleanupRequest) *kvrpcx.CleanupResponse
	resolveLock func(req *kvrpcx.ResolveLockRequest) *kvrpcx.ResolveLockResponse

	numGets      atomic.Int64
	numCleanups  atomic.Int64
	numResolves  atomic.Int64
	lastResolveM sync.Mutex
	lastResolve  *kvrpcx.ResolveLockRequest
}

func fakeHandler[SrvT any, ReqT any, RespT any](
	serve func(s SrvT, req *ReqT) (*RespT, bool),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(ReqT)
		if err := dec(req); err != nil {
			return nil, err
		}

		resp, ok := serve(srv.(SrvT), req)
		if !ok {
			return nil, status.Error(codes.Unimplemented, "not implemented by fake store")
		}
		return resp, nil
	}
}

var fakeKvServiceDesc = grpc.ServiceDesc{
	ServiceName: "shardkv.Kv",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "KvGet",
			Handler: fakeHandler(func(s *fakeStore, req *kvrpcx.GetRequest) (*kvrpcx.GetResponse, bool) {
				if s.get == nil {
					return nil, false
				}
				s.numGets.Inc()
				return s.get(req), true
			}),
		},
		{
			MethodName: "KvBatchGet",
			Handler: fakeHandler(func(s *fakeStore, req *kvrpcx.BatchGetRequest) (*kvrpcx.BatchGetResponse, bool) {
				if s.batchGet == nil {
					return nil, false
				}
				return s.batchGet(req), true
			}),
		},
		{
			MethodName: "KvScan",
			Handler: fakeHandler(func(s *fakeStore, req *kvrpcx.ScanRequest) (*kvrpcx.ScanResponse, bool) {
				if s.scan == nil {
					return nil, false
				}
				return s.scan(req), true
			}),
		},
		{
			MethodName: "KvCleanup",
			Handler: fakeHandler(func(s *fakeStore, req *kvrpcx.CleanupRequest) (*kvrpcx.CleanupResponse, bool) {
				if s.cleanup == nil {
					return nil, false
				}
				s.numCleanups.Inc()
				return s.cleanup(req), true
			}),
		},
		{
			MethodName: "KvResolveLock",
			Handler: fakeHandler(func(s *fakeStore, req *kvrpcx.ResolveLockRequest) (*kvrpcx.ResolveLockResponse, bool) {
				if s.resolveLock == nil {
					return nil, false
				}
				s.numResolves.Inc()
				s.lastResolveM.Lock()
				s.lastResolve = req
				s.lastResolveM.Unlock()
				return s.resolveLock(req), true
			}),
		},
	},
}

// fakeCluster routes connections for store addresses to in-process
// servers.
type fakeCluster struct {
	lock      sync.Mutex
	listeners map[string]*bufconn.Listener

	numClients atomic.Int64
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		listeners: make(map[string]*bufconn.Listener),
	}
}

func (c *fakeCluster) serve(t *testing.T, addr string, desc *grpc.ServiceDesc, impl any) {
	lis := bufconn.Listen(fakeConnBufferSize)
	server := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	server.RegisterService(desc, impl)

	c.lock.Lock()
	c.listeners[addr] = lis
	c.lock.Unlock()

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(func() {
		server.Stop()
	})
}

func (c *fakeCluster) AddStore(t *testing.T, addr string, store *fakeStore) {
	c.serve(t, addr, &fakeKvServiceDesc, store)
}

// RemoveStore makes further connections to addr fail.
func (c *fakeCluster) RemoveStore(addr string) {
	c.lock.Lock()
	delete(c.listeners, addr)
	c.lock.Unlock()
}

func (c *fakeCluster) dial(ctx context.Context, addr string) (net.Conn, error) {
	c.lock.Lock()
	lis, ok := c.listeners[addr]
	c.lock.Unlock()
	if !ok {
		return nil, errors.New("connection refused")
	}

	return lis.DialContext(ctx)
}

func (c *fakeCluster) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithContextDialer(c.dial)}
}

func (c *fakeCluster) NewKvClient(config *KvClientConfig) (KvClient, error) {
	c.numClients.Inc()

	clientConfig := *config
	if !strings.Contains(clientConfig.Address, "://") {
		clientConfig.Address = "passthrough:///" + clientConfig.Address
	}
	return NewKvClient(&clientConfig, &KvClientOptions{
		DialOptions: c.DialOptions(),
	})
}

func (c *fakeCluster) NewClientManager(t *testing.T) KvClientManager {
	mgr, err := NewKvClientManager(&KvClientManagerConfig{}, &KvClientManagerOptions{
		Logger:        testutils.MakeTestLogger(t),
		NewKvClientFn: c.NewKvClient,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = mgr.Close()
	})

	return mgr
}

func (c *fakeCluster) NewExecutor(t *testing.T, retries RetryManager) *CommandExecutor {
	executor, err := NewCommandExecutor(&CommandExecutorOptions{
		Logger:        testutils.MakeTestLogger(t),
		ClientManager: c.NewClientManager(t),
		RetryManager:  retries,
	})
	require.NoError(t, err)
	return executor
}

// fakeValues serves reads from a sorted set of committed values.
type fakeValues struct {
	keys   []string
	values map[string]string
}

func newFakeValues(kvs ...string) *fakeValues {
	v := &fakeValues{values: make(map[string]string)}
	for i := 0; i+1 < len(kvs); i += 2 {
		v.keys = append(v.keys, kvs[i])
		v.values[kvs[i]] = kvs[i+1]
	}
	return v
}

func (v *fakeValues) Get(req *kvrpcx.GetRequest) *kvrpcx.GetResponse {
	value, ok := v.values[string(req.Key)]
	if !ok {
		return &kvrpcx.GetResponse{NotFound: true}
	}
	return &kvrpcx.GetResponse{Value: []byte(value)}
}

func (v *fakeValues) BatchGet(req *kvrpcx.BatchGetRequest) *kvrpcx.BatchGetResponse {
	resp := &kvrpcx.BatchGetResponse{}
	for _, key := range req.Keys {
		value, ok := v.values[string(key)]
		if !ok {
			continue
		}
		resp.Pairs = append(resp.Pairs, &kvrpcx.KvPair{Key: key, Value: []byte(value)})
	}
	return resp
}

// Scan assumes keys were added in order.
func (v *fakeValues) Scan(req *kvrpcx.ScanRequest) *kvrpcx.ScanResponse {
	resp := &kvrpcx.ScanResponse{}
	for _, key := range v.keys {
		if uint32(len(resp.Pairs)) >= req.Limit {
			break
		}
		if key < string(req.StartKey) {
			continue
		}
		if len(req.EndKey) > 0 && key >= string(req.EndKey) {
			break
		}
		resp.Pairs = append(resp.Pairs, &kvrpcx.KvPair{Key: []byte(key), Value: []byte(v.values[key])})
	}
	return resp
}
