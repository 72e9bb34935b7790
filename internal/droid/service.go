package droid

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"DroidRelay/internal/crypto"
	xerrors "DroidRelay/internal/errors"
	"DroidRelay/internal/events"
	"DroidRelay/pkg/logger"
)

// Service 提供账号的增改查，负责校验、凭据加解密与变更通知。
type Service struct {
	store     Store
	cipher    crypto.Cipher
	publisher events.Publisher
	now       func() time.Time
	newID     func() string
	log       *slog.Logger
	audit     *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithCipher 指定凭据加密方式，默认不加密。
func WithCipher(c crypto.Cipher) Option {
	return func(s *Service) {
		if c != nil {
			s.cipher = c
		}
	}
}

// WithPublisher 指定账号变更事件的发布者。
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator 替换账号 ID 生成方式。
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger 指定运行日志与审计日志。
func WithLogger(log, audit *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
		if audit != nil {
			s.audit = audit
		}
	}
}

// NewService 构造账号服务。
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "account store 未配置")
	}
	s := &Service{
		store:     store,
		cipher:    crypto.Plain{},
		publisher: events.NopPublisher{},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.log == nil {
		s.log = logger.Named("droid")
	}
	if s.audit == nil {
		s.audit = logger.Audit()
	}
	return s, nil
}

// GetAllAccounts 返回全部账号，凭据为明文。
func (s *Service) GetAllAccounts(ctx context.Context) ([]*Account, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]*Account, 0, len(stored))
	for _, account := range stored {
		plain, err := s.reveal(account)
		if err != nil {
			return nil, err
		}
		result = append(result, plain)
	}
	SortAccounts(result)
	return result, nil
}

// GetAccount 返回指定账号，凭据为明文。
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	stored, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return s.reveal(stored)
}

// CreateAccount 校验请求并持久化新账号。
func (s *Service) CreateAccount(ctx context.Context, req CreateRequest) (*Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerrors.New(CodeAccountValidation, "account name is required")
	}
	keys := normalizeKeys(req.APIKeys)
	if len(keys) == 0 {
		return nil, xerrors.New(CodeAccountValidation, "at least one api key is required",
			xerrors.WithMetadata("account_name", name))
	}
	endpoint, err := ParseEndpointType(string(req.EndpointType))
	if err != nil {
		return nil, err
	}
	method, err := ParseAuthMethod(string(req.AuthenticationMethod))
	if err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority <= 0 {
		priority = DefaultPriority
	}

	now := truncate(s.now())
	account := &Account{
		ID:                   s.newID(),
		Name:                 name,
		APIKeys:              keys,
		AuthenticationMethod: method,
		EndpointType:         endpoint,
		IsActive:             req.IsActive,
		Priority:             priority,
		Schedulable:          req.Schedulable,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	sealed, err := s.seal(account)
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, sealed); err != nil {
		return nil, err
	}

	s.audit.Info("account.created",
		slog.String("account_id", account.ID),
		slog.String("account_name", account.Name),
		slog.String("endpoint_type", string(account.EndpointType)),
		slog.Int("api_keys", len(account.APIKeys)),
	)
	s.notify(ctx, events.TypeAccountCreated, account)
	return account, nil
}

// UpdateAccount 对账号执行部分更新，未设置的字段保持原值。
func (s *Service) UpdateAccount(ctx context.Context, id string, req UpdateRequest) (*Account, error) {
	stored, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	account, err := s.reveal(stored)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, 7)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, xerrors.New(CodeAccountValidation, "account name is required")
		}
		account.Name = name
		changed = append(changed, "name")
	}
	if req.APIKeys != nil {
		keys := normalizeKeys(req.APIKeys)
		if len(keys) == 0 {
			return nil, xerrors.New(CodeAccountValidation, "at least one api key is required",
				xerrors.WithMetadata("account_id", account.ID))
		}
		account.APIKeys = keys
		changed = append(changed, "apiKeys")
	}
	if req.AuthenticationMethod != nil {
		method, err := ParseAuthMethod(string(*req.AuthenticationMethod))
		if err != nil {
			return nil, err
		}
		account.AuthenticationMethod = method
		changed = append(changed, "authenticationMethod")
	}
	if req.EndpointType != nil {
		endpoint, err := ParseEndpointType(string(*req.EndpointType))
		if err != nil {
			return nil, err
		}
		account.EndpointType = endpoint
		changed = append(changed, "endpointType")
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
		changed = append(changed, "isActive")
	}
	if req.Priority != nil {
		account.Priority = *req.Priority
		changed = append(changed, "priority")
	}
	if req.Schedulable != nil {
		account.Schedulable = *req.Schedulable
		changed = append(changed, "schedulable")
	}
	account.UpdatedAt = truncate(s.now())

	sealed, err := s.seal(account)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sealed); err != nil {
		return nil, err
	}

	s.audit.Info("account.updated",
		slog.String("account_id", account.ID),
		slog.String("account_name", account.Name),
		slog.Any("fields", changed),
	)
	s.notify(ctx, events.TypeAccountUpdated, account)
	return account, nil
}

// notify 发布变更事件。账号已经落库，发布失败只记录日志。
func (s *Service) notify(ctx context.Context, typ events.Type, account *Account) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:         typ,
		AccountID:    account.ID,
		AccountName:  account.Name,
		EndpointType: string(account.EndpointType),
		IsActive:     account.IsActive,
		OccurredAt:   account.UpdatedAt,
	})
	if err != nil {
		s.log.Warn("publish account event failed",
			append([]any{slog.String("event", string(typ)), slog.String("account_id", account.ID)}, xerrors.LogAttrs(err)...)...)
	}
}

func (s *Service) seal(account *Account) (*Account, error) {
	sealed := account.Clone()
	for i, key := range account.APIKeys {
		enc, err := s.cipher.Encrypt(key)
		if err != nil {
			return nil, err
		}
		sealed.APIKeys[i] = enc
	}
	return sealed, nil
}

func (s *Service) reveal(stored *Account) (*Account, error) {
	plain := stored.Clone()
	for i, key := range stored.APIKeys {
		dec, err := s.cipher.Decrypt(key)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeCryptoFailure, err, "解密账号凭据失败",
				xerrors.WithMetadata("account_id", stored.ID))
		}
		plain.APIKeys[i] = dec
	}
	return plain, nil
}
