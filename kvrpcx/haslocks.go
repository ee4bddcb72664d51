package kvrpcx

// HasLocks is implemented by responses which may carry locks encountered
// while serving the request. TakeLocks removes the locks from the response,
// so each lock is reported once.
type HasLocks interface {
	TakeLocks() []*LockInfo
}

var (
	_ HasLocks = (*GetResponse)(nil)
	_ HasLocks = (*BatchGetResponse)(nil)
	_ HasLocks = (*ScanResponse)(nil)
	_ HasLocks = (*CleanupResponse)(nil)
	_ HasLocks = (*ResolveLockResponse)(nil)
	_ HasLocks = (*TsoResponse)(nil)
	_ HasLocks = (*GetRegionResponse)(nil)
	_ HasLocks = (*GetStoreResponse)(nil)
)

// takeLock drains the lock from a key error, dropping the error entirely if
// the lock was its only content.
func takeLock(errp **KeyError) *LockInfo {
	keyErr := *errp
	if keyErr == nil || keyErr.Locked == nil {
		return nil
	}

	lock := keyErr.Locked
	keyErr.Locked = nil
	if keyErr.Retryable == "" && keyErr.Abort == "" {
		*errp = nil
	}
	return lock
}

func takePairLocks(pairs []*KvPair) []*LockInfo {
	var locks []*LockInfo
	for _, pair := range pairs {
		if pair == nil {
			continue
		}
		if lock := takeLock(&pair.Error); lock != nil {
			locks = append(locks, lock)
		}
	}
	return locks
}

func (r *GetResponse) TakeLocks() []*LockInfo {
	if r == nil {
		return nil
	}
	if lock := takeLock(&r.Error); lock != nil {
		return []*LockInfo{lock}
	}
	return nil
}

func (r *BatchGetResponse) TakeLocks() []*LockInfo {
	if r == nil {
		return nil
	}
	return takePairLocks(r.Pairs)
}

func (r *ScanResponse) TakeLocks() []*LockInfo {
	if r == nil {
		return nil
	}
	return takePairLocks(r.Pairs)
}

func (r *CleanupResponse) TakeLocks() []*LockInfo {
	if r == nil {
		return nil
	}
	if lock := takeLock(&r.Error); lock != nil {
		return []*LockInfo{lock}
	}
	return nil
}

func (r *ResolveLockResponse) TakeLocks() []*LockInfo { return nil }
func (r *TsoResponse) TakeLocks() []*LockInfo         { return nil }
func (r *GetRegionResponse) TakeLocks() []*LockInfo   { return nil }
func (r *GetStoreResponse) TakeLocks() []*LockInfo    { return nil }

// TakeAllLocks drains the locks of every response, in order. Nil responses,
// typed or not, carry no locks.
func TakeAllLocks(resps ...HasLocks) []*LockInfo {
	var locks []*LockInfo
	for _, resp := range resps {
		if resp == nil {
			continue
		}
		locks = append(locks, resp.TakeLocks()...)
	}
	return locks
}
