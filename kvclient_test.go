package shardkvx

import (
	"context"
	"errors"
	"testing"

	"github.com/kvshard/shardkvx/kvrpcx"
	"github.com/kvshard/shardkvx/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKvClient(t *testing.T, cluster *fakeCluster, addr string, useCompression bool) *kvClient {
	cli, err := NewKvClient(&KvClientConfig{
		Address:        "passthrough:///" + addr,
		UseCompression: useCompression,
	}, &KvClientOptions{
		Logger:      testutils.MakeTestLogger(t),
		DialOptions: cluster.DialOptions(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cli.Close()
	})

	return cli
}

func TestNewKvClientRequiresAddress(t *testing.T) {
	_, err := NewKvClient(&KvClientConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestKvClientGet(t *testing.T) {
	for _, useCompression := range []bool{false, true} {
		cluster := newFakeCluster()
		values := newFakeValues("apple", "red", "banana", "yellow")
		cluster.AddStore(t, "store1", &fakeStore{get: values.Get})

		cli := newTestKvClient(t, cluster, "store1", useCompression)
		assert.Equal(t, "passthrough:///store1", cli.RemoteAddress())

		resp, err := cli.Get(context.Background(), &kvrpcx.GetRequest{Key: []byte("banana")})
		require.NoError(t, err)
		assert.Equal(t, []byte("yellow"), resp.Value)
		assert.False(t, resp.NotFound)

		resp, err = cli.Get(context.Background(), &kvrpcx.GetRequest{Key: []byte("cherry")})
		require.NoError(t, err)
		assert.True(t, resp.NotFound)
	}
}

func TestKvClientRegionError(t *testing.T) {
	cluster := newFakeCluster()
	cluster.AddStore(t, "store1", &fakeStore{
		scan: func(req *kvrpcx.ScanRequest) *kvrpcx.ScanResponse {
			return &kvrpcx.ScanResponse{
				RegionError: &kvrpcx.RegionError{
					Message: "key out of range",
					KeyNotInRegion: &kvrpcx.KeyNotInRegion{
						Key:      req.StartKey,
						RegionID: req.Context.RegionID,
					},
				},
			}
		},
	})

	cli := newTestKvClient(t, cluster, "store1", false)

	resp, err := cli.Scan(context.Background(), &kvrpcx.ScanRequest{
		Context:  &kvrpcx.Context{RegionID: 9},
		StartKey: []byte("a"),
		Limit:    10,
	})
	require.ErrorIs(t, err, kvrpcx.ErrRegionError)
	require.ErrorIs(t, err, kvrpcx.ErrKeyNotInRegion)

	var regionErr *kvrpcx.ServerRegionError
	require.ErrorAs(t, err, &regionErr)
	assert.Equal(t, uint64(9), regionErr.Detail.KeyNotInRegion.RegionID)

	// the response is still handed back for inspection
	require.NotNil(t, resp)
}

func TestKvClientLockedKeyStaysOnResponse(t *testing.T) {
	cluster := newFakeCluster()
	cluster.AddStore(t, "store1", &fakeStore{
		batchGet: func(req *kvrpcx.BatchGetRequest) *kvrpcx.BatchGetResponse {
			return &kvrpcx.BatchGetResponse{
				Pairs: []*kvrpcx.KvPair{
					{Key: []byte("a"), Value: []byte("1")},
					{Key: []byte("b"), Error: &kvrpcx.KeyError{Locked: makeTestLock("b", "a", testExpiredTxn)}},
				},
			}
		},
	})

	cli := newTestKvClient(t, cluster, "store1", true)

	resp, err := cli.BatchGet(context.Background(), &kvrpcx.BatchGetRequest{
		Keys: [][]byte{[]byte("a"), []byte("b")},
	})
	require.NoError(t, err)

	locks := resp.TakeLocks()
	require.Len(t, locks, 1)
	assert.Equal(t, []byte("b"), locks[0].Key)
	assert.Equal(t, testExpiredTxn, locks[0].LockVersion)
}

func TestKvClientUnimplementedIsNotDispatchError(t *testing.T) {
	cluster := newFakeCluster()
	cluster.AddStore(t, "store1", &fakeStore{})

	cli := newTestKvClient(t, cluster, "store1", false)

	_, err := cli.Cleanup(context.Background(), &kvrpcx.CleanupRequest{Key: []byte("a")})
	require.Error(t, err)

	var dispatchErr KvClientDispatchError
	assert.False(t, errors.As(err, &dispatchErr))
	assert.False(t, isRoutingError(err))
}

func TestKvClientClosed(t *testing.T) {
	cluster := newFakeCluster()
	cluster.AddStore(t, "store1", &fakeStore{})

	cli := newTestKvClient(t, cluster, "store1", false)
	require.NoError(t, cli.Close())
	require.NoError(t, cli.Close())

	_, err := cli.ResolveLock(context.Background(), &kvrpcx.ResolveLockRequest{})
	require.ErrorIs(t, err, ErrClosed)

	var dispatchErr KvClientDispatchError
	require.ErrorAs(t, err, &dispatchErr)
}
