// Package bootstrap provisions accounts from the process environment before
// the rest of the relay starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
	"DroidRelay/pkg/logger"
)

// AccountService is the subset of droid.Service the bootstrap relies on.
type AccountService interface {
	GetAllAccounts(ctx context.Context) ([]*droid.Account, error)
	CreateAccount(ctx context.Context, req droid.CreateRequest) (*droid.Account, error)
	UpdateAccount(ctx context.Context, id string, req droid.UpdateRequest) (*droid.Account, error)
}

// BootstrapPriority is the scheduling priority given to accounts created
// from the environment.
const BootstrapPriority = 10

// Outcome names what a bootstrap run did.
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

// Result reports a bootstrap run. Err is set only for OutcomeFailed.
type Result struct {
	Outcome      Outcome
	AccountID    string
	AccountName  string
	EndpointType string
	KeySource    string
	Err          error
}

// OK reports whether the run finished without a collaborator failure.
func (r Result) OK() bool {
	return r.Outcome != OutcomeFailed
}

// EnvBootstrap creates or refreshes the Droid account described by the
// environment.
type EnvBootstrap struct {
	accounts AccountService
	lookup   LookupFunc
	timeout  time.Duration
	log      *slog.Logger
}

// Option configures an EnvBootstrap.
type Option func(*EnvBootstrap)

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup LookupFunc) Option {
	return func(b *EnvBootstrap) {
		if lookup != nil {
			b.lookup = lookup
		}
	}
}

// WithTimeout bounds the collaborator calls of a single run.
func WithTimeout(d time.Duration) Option {
	return func(b *EnvBootstrap) {
		b.timeout = d
	}
}

// WithLogger sets the logger used for progress and outcome lines.
func WithLogger(l *slog.Logger) Option {
	return func(b *EnvBootstrap) {
		if l != nil {
			b.log = l
		}
	}
}

// New builds an EnvBootstrap around the account service.
func New(accounts AccountService, opts ...Option) *EnvBootstrap {
	b := &EnvBootstrap{accounts: accounts}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.log == nil {
		b.log = logger.Named("bootstrap")
	}
	return b
}

// Initialize runs every environment bootstrap step and logs the result.
// It never fails; callers may inspect the returned Result.
func (b *EnvBootstrap) Initialize(ctx context.Context) Result {
	result := b.BootstrapDroidAccount(ctx)
	b.logResult(result)
	return result
}

// BootstrapDroidAccount ensures an account named after DROID_ACCOUNT_NAME
// holds the key from FACTORY_API_KEY or DROID_API_KEY.
func (b *EnvBootstrap) BootstrapDroidAccount(ctx context.Context) Result {
	settings := ResolveSettings(b.lookup)
	result := Result{
		AccountName:  settings.AccountName,
		EndpointType: settings.EndpointType,
		KeySource:    settings.KeySource,
	}
	if settings.APIKey == "" {
		result.Outcome = OutcomeSkipped
		return result
	}
	if b.accounts == nil {
		return failed(result, xerrors.New(xerrors.CodeInitializationFailure, "account service not configured"))
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	accounts, err := b.accounts.GetAllAccounts(ctx)
	if err != nil {
		return failed(result, fmt.Errorf("list accounts: %w", err))
	}

	if existing := findByName(accounts, settings.AccountName); existing != nil {
		b.log.Info("droid account already exists, updating keys from environment",
			slog.String("account_name", settings.AccountName),
			slog.String("account_id", existing.ID),
		)
		active := true
		endpoint := droid.EndpointType(settings.EndpointType)
		updated, err := b.accounts.UpdateAccount(ctx, existing.ID, droid.UpdateRequest{
			APIKeys:      []string{settings.APIKey},
			IsActive:     &active,
			EndpointType: &endpoint,
		})
		if err != nil {
			result.AccountID = existing.ID
			return failed(result, fmt.Errorf("update account %s: %w", existing.ID, err))
		}
		result.Outcome = OutcomeUpdated
		result.AccountID = accountID(updated, existing.ID)
		return result
	}

	b.log.Info("creating droid account from environment",
		slog.String("account_name", settings.AccountName),
	)
	created, err := b.accounts.CreateAccount(ctx, droid.CreateRequest{
		Name:                 settings.AccountName,
		APIKeys:              []string{settings.APIKey},
		AuthenticationMethod: droid.AuthAPIKey,
		EndpointType:         droid.EndpointType(settings.EndpointType),
		IsActive:             true,
		Priority:             BootstrapPriority,
		Schedulable:          true,
	})
	if err != nil {
		return failed(result, fmt.Errorf("create account: %w", err))
	}
	result.Outcome = OutcomeCreated
	result.AccountID = accountID(created, "")
	return result
}

func (b *EnvBootstrap) logResult(r Result) {
	attrs := []any{
		slog.String("outcome", string(r.Outcome)),
		slog.String("account_name", r.AccountName),
	}
	if r.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", r.AccountID))
	}
	switch r.Outcome {
	case OutcomeSkipped:
		b.log.Info("no FACTORY_API_KEY or DROID_API_KEY found in environment, skipping droid account bootstrap")
	case OutcomeCreated:
		b.log.Info("droid account created from environment",
			append(attrs, slog.String("endpoint_type", r.EndpointType), slog.String("key_source", r.KeySource))...)
	case OutcomeUpdated:
		b.log.Info("droid account updated from environment",
			append(attrs, slog.String("endpoint_type", r.EndpointType), slog.String("key_source", r.KeySource))...)
	case OutcomeFailed:
		b.log.Error("failed to bootstrap droid account from environment",
			append(attrs, xerrors.LogAttrs(r.Err)...)...)
	}
}

// findByName returns the first account whose name matches exactly.
func findByName(accounts []*droid.Account, name string) *droid.Account {
	for _, account := range accounts {
		if account != nil && account.Name == name {
			return account
		}
	}
	return nil
}

func accountID(account *droid.Account, fallback string) string {
	if account == nil || account.ID == "" {
		return fallback
	}
	return account.ID
}

func failed(r Result, err error) Result {
	r.Outcome = OutcomeFailed
	r.Err = err
	return r
}
