package droid

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "DroidRelay/internal/errors"
)

// MemoryStore 以内存方式保存账号，适用于开发与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account)}
}

// List 实现 Store 接口，按创建时间升序返回。
func (m *MemoryStore) List(_ context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		result = append(result, account.Clone())
	}
	SortAccounts(result)
	return result, nil
}

// Get 实现 Store 接口。
func (m *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Insert 实现 Store 接口。
func (m *MemoryStore) Insert(_ context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return ErrAccountConflict
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

// Save 实现 Store 接口，仅更新已存在的账号。
func (m *MemoryStore) Save(_ context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// SortAccounts 按创建时间升序排列，时间相同时按 ID 排序。
func SortAccounts(accounts []*Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := accounts[i].CreatedAt, accounts[j].CreatedAt
		if a.Equal(b) {
			return accounts[i].ID < accounts[j].ID
		}
		return a.Before(b)
	})
}

// truncate 对齐到毫秒，保证不同后端读回的时间一致。
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

var _ Store = (*MemoryStore)(nil)
