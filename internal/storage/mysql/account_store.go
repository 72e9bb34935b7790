package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
)

const (
	errDuplicateEntry = 1062

	accountColumns = `id, name, api_keys, authentication_method, endpoint_type, is_active, priority, schedulable, created_at, updated_at`

	selectAccountsSQL = `SELECT ` + accountColumns + ` FROM droid_accounts ORDER BY created_at ASC, id ASC`
	selectAccountSQL  = `SELECT ` + accountColumns + ` FROM droid_accounts WHERE id = ?`
	insertAccountSQL  = `INSERT INTO droid_accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	updateAccountSQL  = `UPDATE droid_accounts SET name = ?, api_keys = ?, authentication_method = ?, endpoint_type = ?, is_active = ?, priority = ?, schedulable = ?, updated_at = ? WHERE id = ?`
	existsAccountSQL  = `SELECT 1 FROM droid_accounts WHERE id = ?`
)

// AccountStore 使用 MySQL 保存 Droid 账号。
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore 建立连接并执行迁移。
func NewAccountStore(ctx context.Context, cfg Config) (*AccountStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &AccountStore{db: db}, nil
}

// NewAccountStoreWithDB 复用已有连接，不执行迁移。
func NewAccountStoreWithDB(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Close 释放连接池。
func (s *AccountStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// List 实现 droid.Store 接口。
func (s *AccountStore) List(ctx context.Context) ([]*droid.Account, error) {
	rows, err := s.db.QueryContext(ctx, selectAccountsSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账号列表失败")
	}
	defer rows.Close()

	var accounts []*droid.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历账号列表失败")
	}
	return accounts, nil
}

// Get 实现 droid.Store 接口。
func (s *AccountStore) Get(ctx context.Context, id string) (*droid.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, selectAccountSQL, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, droid.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// Insert 实现 droid.Store 接口。
func (s *AccountStore) Insert(ctx context.Context, account *droid.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	keys, err := json.Marshal(account.APIKeys)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码账号凭据失败")
	}
	_, err = s.db.ExecContext(ctx, insertAccountSQL,
		account.ID,
		account.Name,
		string(keys),
		string(account.AuthenticationMethod),
		string(account.EndpointType),
		boolToInt(account.IsActive),
		account.Priority,
		boolToInt(account.Schedulable),
		account.CreatedAt.UnixMilli(),
		account.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
			return droid.ErrAccountConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入账号失败")
	}
	return nil
}

// Save 实现 droid.Store 接口。
func (s *AccountStore) Save(ctx context.Context, account *droid.Account) error {
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号 ID 不能为空")
	}
	keys, err := json.Marshal(account.APIKeys)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码账号凭据失败")
	}
	res, err := s.db.ExecContext(ctx, updateAccountSQL,
		account.Name,
		string(keys),
		string(account.AuthenticationMethod),
		string(account.EndpointType),
		boolToInt(account.IsActive),
		account.Priority,
		boolToInt(account.Schedulable),
		account.UpdatedAt.UnixMilli(),
		account.ID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新账号失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取受影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	// MySQL 在值未变化时同样返回 0，需要再确认记录是否存在。
	var one int
	if err := s.db.QueryRowContext(ctx, existsAccountSQL, account.ID).Scan(&one); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return droid.ErrAccountNotFound
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账号失败")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*droid.Account, error) {
	var (
		account              droid.Account
		keys                 string
		method, endpoint     string
		active, schedulable  int
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&account.ID,
		&account.Name,
		&keys,
		&method,
		&endpoint,
		&active,
		&account.Priority,
		&schedulable,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析账号失败")
	}
	if err := json.Unmarshal([]byte(keys), &account.APIKeys); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析账号凭据失败",
			xerrors.WithMetadata("account_id", account.ID))
	}
	account.AuthenticationMethod = droid.AuthMethod(method)
	account.EndpointType = droid.EndpointType(endpoint)
	account.IsActive = active == 1
	account.Schedulable = schedulable == 1
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	account.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &account, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ droid.Store = (*AccountStore)(nil)
