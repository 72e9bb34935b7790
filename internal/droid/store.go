package droid

import "context"

// Store 抽象了账号记录的持久化。传入和返回的 APIKeys 均为密文。
// 实现必须支持并发访问。
type Store interface {
	List(ctx context.Context) ([]*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	Insert(ctx context.Context, account *Account) error
	Save(ctx context.Context, account *Account) error
	Close() error
}
