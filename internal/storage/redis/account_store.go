package redis

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// AccountStore 使用 Redis 保存 Droid 账号。
type AccountStore struct {
	client redis.UniversalClient
	prefix string
}

// record 是账号在 Redis 中的存储格式，时间以毫秒保存。
type record struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	APIKeys              []string `json:"apiKeys"`
	AuthenticationMethod string   `json:"authenticationMethod"`
	EndpointType         string   `json:"endpointType"`
	IsActive             bool     `json:"isActive"`
	Priority             int      `json:"priority"`
	Schedulable          bool     `json:"schedulable"`
	CreatedAt            int64    `json:"createdAt"`
	UpdatedAt            int64    `json:"updatedAt"`
}

// NewAccountStore 创建客户端并检查连通性。
func NewAccountStore(ctx context.Context, cfg Config) (*AccountStore, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewAccountStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewAccountStoreWithClient 复用已有客户端。
func NewAccountStoreWithClient(client redis.UniversalClient, prefix string) *AccountStore {
	if prefix == "" {
		prefix = "droid:"
	}
	return &AccountStore{client: client, prefix: prefix}
}

func (s *AccountStore) indexKey() string {
	return s.prefix + "accounts"
}

func (s *AccountStore) accountKey(id string) string {
	return s.prefix + "account:" + id
}

// List 实现 droid.Store 接口。
func (s *AccountStore) List(ctx context.Context) ([]*droid.Account, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取账号索引失败")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.accountKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取账号失败")
	}

	accounts := make([]*droid.Account, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// 索引中残留但文档已被删除的账号直接跳过。
			continue
		}
		account, err := decodeAccount([]byte(raw))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	droid.SortAccounts(accounts)
	return accounts, nil
}

// Get 实现 droid.Store 接口。
func (s *AccountStore) Get(ctx context.Context, id string) (*droid.Account, error) {
	raw, err := s.client.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, droid.ErrAccountNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取账号失败")
	}
	return decodeAccount(raw)
}

// Insert 实现 droid.Store 接口。先写索引再写文档：索引写入失败时不留下
// List 看不到的孤立文档，文档写入失败时残留的索引 ID 会被 List 跳过。
func (s *AccountStore) Insert(ctx context.Context, account *droid.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	payload, err := encodeAccount(account)
	if err != nil {
		return err
	}
	added, err := s.client.SAdd(ctx, s.indexKey(), account.ID).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新账号索引失败")
	}
	created, err := s.client.SetNX(ctx, s.accountKey(account.ID), payload, 0).Result()
	if err != nil {
		if added > 0 {
			_ = s.client.SRem(ctx, s.indexKey(), account.ID).Err()
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入账号失败")
	}
	if !created {
		return droid.ErrAccountConflict
	}
	return nil
}

// Save 实现 droid.Store 接口，仅覆盖已存在的账号。
func (s *AccountStore) Save(ctx context.Context, account *droid.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	payload, err := encodeAccount(account)
	if err != nil {
		return err
	}
	updated, err := s.client.SetXX(ctx, s.accountKey(account.ID), payload, redis.KeepTTL).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新账号失败")
	}
	if !updated {
		return droid.ErrAccountNotFound
	}
	return nil
}

// Close 关闭 Redis 客户端。
func (s *AccountStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func encodeAccount(account *droid.Account) ([]byte, error) {
	payload, err := json.Marshal(record{
		ID:                   account.ID,
		Name:                 account.Name,
		APIKeys:              account.APIKeys,
		AuthenticationMethod: string(account.AuthenticationMethod),
		EndpointType:         string(account.EndpointType),
		IsActive:             account.IsActive,
		Priority:             account.Priority,
		Schedulable:          account.Schedulable,
		CreatedAt:            account.CreatedAt.UnixMilli(),
		UpdatedAt:            account.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码账号失败")
	}
	return payload, nil
}

func decodeAccount(raw []byte) (*droid.Account, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析账号失败")
	}
	return &droid.Account{
		ID:                   rec.ID,
		Name:                 rec.Name,
		APIKeys:              rec.APIKeys,
		AuthenticationMethod: droid.AuthMethod(rec.AuthenticationMethod),
		EndpointType:         droid.EndpointType(rec.EndpointType),
		IsActive:             rec.IsActive,
		Priority:             rec.Priority,
		Schedulable:          rec.Schedulable,
		CreatedAt:            time.UnixMilli(rec.CreatedAt).UTC(),
		UpdatedAt:            time.UnixMilli(rec.UpdatedAt).UTC(),
	}, nil
}

var _ droid.Store = (*AccountStore)(nil)
