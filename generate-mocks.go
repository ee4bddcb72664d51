//go:generate moq -out mock_placementoracle_test.go . PlacementOracle
//go:generate moq -out mock_lockcommandexecutor_test.go . LockCommandExecutor
//go:generate moq -out mock_pdclient_test.go . PdClient
//go:generate moq -out mock_kvclient_test.go . KvClient
//go:generate moq -out mock_kvclientmanager_test.go . KvClientManager
//go:generate moq -out mock_retrymanager_test.go . RetryManager RetryController

package shardkvx
