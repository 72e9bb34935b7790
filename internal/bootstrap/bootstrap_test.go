package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"DroidRelay/internal/droid"
	xerrors "DroidRelay/internal/errors"
)

type updateCall struct {
	id  string
	req droid.UpdateRequest
}

type fakeAccounts struct {
	accounts []*droid.Account
	listErr  error
	creErr   error
	updErr   error

	listCalls int
	creates   []droid.CreateRequest
	updates   []updateCall
}

func (f *fakeAccounts) GetAllAccounts(ctx context.Context) ([]*droid.Account, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

func (f *fakeAccounts) CreateAccount(ctx context.Context, req droid.CreateRequest) (*droid.Account, error) {
	f.creates = append(f.creates, req)
	if f.creErr != nil {
		return nil, f.creErr
	}
	return &droid.Account{ID: "new-id", Name: req.Name}, nil
}

func (f *fakeAccounts) UpdateAccount(ctx context.Context, id string, req droid.UpdateRequest) (*droid.Account, error) {
	f.updates = append(f.updates, updateCall{id: id, req: req})
	if f.updErr != nil {
		return nil, f.updErr
	}
	return &droid.Account{ID: id}, nil
}

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSkipsWithoutAPIKey(t *testing.T) {
	fake := &fakeAccounts{}
	var buf bytes.Buffer
	b := New(fake,
		WithLookup(envMap(map[string]string{EnvDroidAccountName: "ignored", EnvFactoryAPIKey: "  "})),
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
	)

	result := b.Initialize(context.Background())
	if result.Outcome != OutcomeSkipped || !result.OK() {
		t.Fatalf("expected skip, got %+v", result)
	}
	if fake.listCalls != 0 || len(fake.creates) != 0 || len(fake.updates) != 0 {
		t.Fatalf("collaborator must not be called: %+v", fake)
	}
	if !strings.Contains(buf.String(), `"level":"INFO"`) || !strings.Contains(buf.String(), "skipping droid account bootstrap") {
		t.Fatalf("expected informational skip line, got %s", buf.String())
	}
}

func TestCreatesAccountWhenMissing(t *testing.T) {
	fake := &fakeAccounts{accounts: []*droid.Account{{ID: "other", Name: "env factory account"}}}
	b := New(fake,
		WithLookup(envMap(map[string]string{EnvFactoryAPIKey: "fk-123", EnvDroidEndpointType: "openai"})),
		WithLogger(quietLogger()),
	)

	result := b.Initialize(context.Background())
	if result.Outcome != OutcomeCreated || result.AccountID != "new-id" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fake.updates) != 0 {
		t.Fatalf("no update expected: %+v", fake.updates)
	}
	if len(fake.creates) != 1 {
		t.Fatalf("expected exactly one create, got %d", len(fake.creates))
	}
	req := fake.creates[0]
	if req.Name != DefaultAccountName {
		t.Fatalf("expected default name, got %q", req.Name)
	}
	if len(req.APIKeys) != 1 || req.APIKeys[0] != "fk-123" {
		t.Fatalf("unexpected keys: %v", req.APIKeys)
	}
	if !req.IsActive || !req.Schedulable || req.Priority != 10 {
		t.Fatalf("unexpected scheduling attributes: %+v", req)
	}
	if req.AuthenticationMethod != droid.AuthAPIKey || req.EndpointType != droid.EndpointOpenAI {
		t.Fatalf("unexpected auth/endpoint: %+v", req)
	}
}

func TestUpdatesExistingAccount(t *testing.T) {
	fake := &fakeAccounts{accounts: []*droid.Account{
		{ID: "a1", Name: "other"},
		{ID: "a2", Name: "Team Droid", Priority: 99, Schedulable: false},
		{ID: "a3", Name: "Team Droid"},
	}}
	b := New(fake,
		WithLookup(envMap(map[string]string{EnvDroidAPIKey: "dk-9", EnvDroidAccountName: "Team Droid"})),
		WithLogger(quietLogger()),
	)

	result := b.Initialize(context.Background())
	if result.Outcome != OutcomeUpdated || result.AccountID != "a2" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fake.creates) != 0 {
		t.Fatalf("no create expected: %+v", fake.creates)
	}
	if len(fake.updates) != 1 || fake.updates[0].id != "a2" {
		t.Fatalf("expected one update of first match, got %+v", fake.updates)
	}
	req := fake.updates[0].req
	if len(req.APIKeys) != 1 || req.APIKeys[0] != "dk-9" {
		t.Fatalf("unexpected keys: %v", req.APIKeys)
	}
	if req.IsActive == nil || !*req.IsActive {
		t.Fatalf("expected isActive=true")
	}
	if req.EndpointType == nil || *req.EndpointType != droid.EndpointAnthropic {
		t.Fatalf("expected default endpoint type, got %v", req.EndpointType)
	}
	if req.Priority != nil || req.Schedulable != nil || req.AuthenticationMethod != nil || req.Name != nil {
		t.Fatalf("update must leave scheduling attributes untouched: %+v", req)
	}
}

func TestFactoryKeyTakesPrecedence(t *testing.T) {
	fake := &fakeAccounts{}
	b := New(fake,
		WithLookup(envMap(map[string]string{EnvFactoryAPIKey: "factory", EnvDroidAPIKey: "droid"})),
		WithLogger(quietLogger()),
	)
	result := b.BootstrapDroidAccount(context.Background())
	if result.KeySource != EnvFactoryAPIKey {
		t.Fatalf("unexpected key source: %s", result.KeySource)
	}
	if fake.creates[0].APIKeys[0] != "factory" {
		t.Fatalf("expected FACTORY_API_KEY to win, got %v", fake.creates[0].APIKeys)
	}
}

func TestCollaboratorFailuresAreLoggedNotPropagated(t *testing.T) {
	boom := xerrors.New(xerrors.CodeStorageFailure, "redis unavailable")
	cases := map[string]*fakeAccounts{
		"list":   {listErr: boom},
		"create": {creErr: boom},
		"update": {accounts: []*droid.Account{{ID: "a1", Name: DefaultAccountName}}, updErr: boom},
	}
	for name, fake := range cases {
		var buf bytes.Buffer
		b := New(fake,
			WithLookup(envMap(map[string]string{EnvFactoryAPIKey: "fk"})),
			WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))),
		)
		result := b.Initialize(context.Background())
		if result.Outcome != OutcomeFailed || result.OK() {
			t.Fatalf("%s: expected failure result, got %+v", name, result)
		}
		if !errors.Is(result.Err, boom) {
			t.Fatalf("%s: cause lost: %v", name, result.Err)
		}
		logged := buf.String()
		if !strings.Contains(logged, `"level":"ERROR"`) || !strings.Contains(logged, `"code":"STORAGE_FAILURE"`) {
			t.Fatalf("%s: expected error log with code, got %s", name, logged)
		}
	}
}

func TestMissingServiceIsReportedAsFailure(t *testing.T) {
	b := New(nil, WithLookup(envMap(map[string]string{EnvFactoryAPIKey: "fk"})), WithLogger(quietLogger()))
	result := b.Initialize(context.Background())
	if result.Outcome != OutcomeFailed || xerrors.CodeOf(result.Err) != xerrors.CodeInitializationFailure {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type blockingAccounts struct {
	fakeAccounts
}

func (b *blockingAccounts) GetAllAccounts(ctx context.Context) ([]*droid.Account, error) {
	<-ctx.Done()
	return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "list accounts timed out")
}

func TestTimeoutBoundsCollaboratorCalls(t *testing.T) {
	b := New(&blockingAccounts{},
		WithLookup(envMap(map[string]string{EnvFactoryAPIKey: "fk"})),
		WithTimeout(20*time.Millisecond),
		WithLogger(quietLogger()),
	)
	result := b.Initialize(context.Background())
	if result.Outcome != OutcomeFailed || !errors.Is(result.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline failure, got %+v", result)
	}
}

func TestRepeatedRunsCreateThenUpdate(t *testing.T) {
	svc, err := droid.NewService(droid.NewMemoryStore(), droid.WithLogger(quietLogger(), quietLogger()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env := envMap(map[string]string{EnvFactoryAPIKey: "fk-abc"})
	b := New(svc, WithLookup(env), WithLogger(quietLogger()))
	ctx := context.Background()

	first := b.Initialize(ctx)
	second := b.Initialize(ctx)
	if first.Outcome != OutcomeCreated || second.Outcome != OutcomeUpdated {
		t.Fatalf("expected create then update, got %s then %s", first.Outcome, second.Outcome)
	}
	if first.AccountID != second.AccountID {
		t.Fatalf("update targeted a different account: %s vs %s", first.AccountID, second.AccountID)
	}

	all, err := svc.GetAllAccounts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single account, got %d", len(all))
	}
	account := all[0]
	if account.Priority != BootstrapPriority || !account.Schedulable || !account.IsActive || account.APIKeys[0] != "fk-abc" {
		t.Fatalf("unexpected stored account: %+v", account)
	}
}

func TestUpdateKeepsStoredSchedulingAttributes(t *testing.T) {
	svc, err := droid.NewService(droid.NewMemoryStore(), droid.WithLogger(quietLogger(), quietLogger()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	existing, err := svc.CreateAccount(ctx, droid.CreateRequest{
		Name:        DefaultAccountName,
		APIKeys:     []string{"fk-old"},
		Priority:    70,
		Schedulable: false,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	b := New(svc,
		WithLookup(envMap(map[string]string{EnvDroidAPIKey: "fk-new", EnvDroidEndpointType: "openai"})),
		WithLogger(quietLogger()),
	)
	if result := b.Initialize(ctx); result.Outcome != OutcomeUpdated {
		t.Fatalf("expected update, got %+v", result)
	}

	got, err := svc.GetAccount(ctx, existing.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Priority != 70 || got.Schedulable || !got.IsActive {
		t.Fatalf("scheduling attributes should be untouched: %+v", got)
	}
	if got.APIKeys[0] != "fk-new" || got.EndpointType != droid.EndpointOpenAI {
		t.Fatalf("credentials not refreshed: %+v", got)
	}
}
