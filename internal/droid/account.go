package droid

import (
	"strings"
	"time"

	xerrors "DroidRelay/internal/errors"
)

// EndpointType 选择账号凭据所对应的上游 API 方言。
type EndpointType string

const (
	EndpointAnthropic EndpointType = "anthropic"
	EndpointOpenAI    EndpointType = "openai"
)

// AuthMethod 描述账号的认证方式。
type AuthMethod string

const (
	AuthAPIKey AuthMethod = "api_key"
	AuthOAuth  AuthMethod = "oauth"
)

// DefaultPriority 是未指定优先级时使用的调度优先级，数值越小越优先。
const DefaultPriority = 50

// Account 表示一个 Droid 上游账号。
type Account struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	APIKeys              []string     `json:"apiKeys"`
	AuthenticationMethod AuthMethod   `json:"authenticationMethod"`
	EndpointType         EndpointType `json:"endpointType"`
	IsActive             bool         `json:"isActive"`
	Priority             int          `json:"priority"`
	Schedulable          bool         `json:"schedulable"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// CreateRequest 描述新建账号所需的完整属性。
type CreateRequest struct {
	Name                 string
	APIKeys              []string
	AuthenticationMethod AuthMethod
	EndpointType         EndpointType
	IsActive             bool
	Priority             int
	Schedulable          bool
}

// UpdateRequest 描述部分更新，nil 字段保持不变。
type UpdateRequest struct {
	Name                 *string
	APIKeys              []string
	AuthenticationMethod *AuthMethod
	EndpointType         *EndpointType
	IsActive             *bool
	Priority             *int
	Schedulable          *bool
}

var (
	// ErrAccountNotFound 表示指定账号不存在。
	ErrAccountNotFound = xerrors.New(CodeAccountNotFound, "account not found")
	// ErrAccountConflict 表示账号 ID 已存在。
	ErrAccountConflict = xerrors.New(CodeAccountConflict, "account already exists")
)

const (
	CodeAccountNotFound   xerrors.Code = "ACCOUNT_NOT_FOUND"
	CodeAccountConflict   xerrors.Code = "ACCOUNT_CONFLICT"
	CodeAccountValidation xerrors.Code = "ACCOUNT_VALIDATION_FAILED"
)

func init() {
	xerrors.Register(CodeAccountNotFound, xerrors.Attributes{
		Message:  "account not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeAccountConflict, xerrors.Attributes{
		Message:  "account already exists",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeAccountValidation, xerrors.Attributes{
		Message:  "account validation failed",
		Severity: xerrors.SeverityInfo,
	})
}

// ParseEndpointType 解析端点类型，大小写不敏感，空值视为 anthropic。
func ParseEndpointType(raw string) (EndpointType, error) {
	switch EndpointType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", EndpointAnthropic:
		return EndpointAnthropic, nil
	case EndpointOpenAI:
		return EndpointOpenAI, nil
	default:
		return "", xerrors.New(CodeAccountValidation, "unsupported endpoint type",
			xerrors.WithMetadata("endpoint_type", raw))
	}
}

// ParseAuthMethod 解析认证方式，空值视为 api_key。
func ParseAuthMethod(raw string) (AuthMethod, error) {
	switch AuthMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AuthAPIKey:
		return AuthAPIKey, nil
	case AuthOAuth:
		return AuthOAuth, nil
	default:
		return "", xerrors.New(CodeAccountValidation, "unsupported authentication method",
			xerrors.WithMetadata("authentication_method", raw))
	}
}

// Clone 返回账号的深拷贝。
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.APIKeys = append([]string(nil), a.APIKeys...)
	return &clone
}

// Masked 返回隐藏了凭据内容的副本，可用于日志或 API 输出。
func (a *Account) Masked() *Account {
	clone := a.Clone()
	if clone == nil {
		return nil
	}
	for i, key := range clone.APIKeys {
		clone.APIKeys[i] = MaskKey(key)
	}
	return clone
}

// MaskKey 仅保留凭据首尾各四个字符。
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}
