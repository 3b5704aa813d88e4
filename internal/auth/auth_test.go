package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/password"
	"github.com/yourusername/authgate/internal/session"
	"github.com/yourusername/authgate/internal/users"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Record(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) kinds() []audit.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Kind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

// countingHasher は Verify の呼び出し回数を数えます。
type countingHasher struct {
	*password.Hasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	h.verifies.Add(1)
	return h.Hasher.Verify(ctx, plaintext, hashed)
}

type fixture struct {
	store  *users.GormStore
	hasher *countingHasher
	sink   *recordingSink
	authn  *Authenticator
	reg    *Registrar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := users.Open(context.Background(), users.Options{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "auth.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:  store,
		hasher: &countingHasher{Hasher: password.NewHasher(4, password.WithCost(bcrypt.MinCost))},
		sink:   &recordingSink{},
	}
	f.authn, err = NewAuthenticator(store, f.hasher, f.sink, zerolog.Nop())
	require.NoError(t, err)
	f.reg, err = NewRegistrar(store, f.hasher, f.sink, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.reg.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	res, err := f.authn.Authenticate(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, alice.ID, res.UserID)
	assert.Equal(t, "alice", res.Username)

	res, err = f.authn.Authenticate(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, res.Success)

	sessions, err := session.NewManager(session.NewMemoryRegistry())
	require.NoError(t, err)
	token, err := sessions.Establish(ctx, alice.ID)
	require.NoError(t, err)
	require.NoError(t, sessions.Terminate(ctx, token))

	_, ok, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []audit.Kind{
		audit.KindUserRegistered,
		audit.KindLoginSucceeded,
		audit.KindLoginFailed,
	}, f.sink.kinds())
}

func TestBobScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "bob", "x")
	require.NoError(t, err)

	_, err = f.reg.Register(ctx, "bob", "y")
	assert.ErrorIs(t, err, users.ErrConflict)

	count, err := f.store.CountByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	bob, err := f.store.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	ok, err := f.hasher.Verify(ctx, "x", bob.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []audit.Kind{audit.KindUserRegistered, audit.KindRegistrationConflict}, f.sink.kinds())
}

func TestRegisteredUsersAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	creds := map[string]string{"u1": "p1", "u2": "p2", "u3": "a longer passphrase"}
	for name, pw := range creds {
		_, err := f.reg.Register(ctx, name, pw)
		require.NoError(t, err)
	}
	for name, pw := range creds {
		res, err := f.authn.Authenticate(ctx, name, pw)
		require.NoError(t, err)
		assert.True(t, res.Success, name)

		res, err = f.authn.Authenticate(ctx, name, pw+"!")
		require.NoError(t, err)
		assert.False(t, res.Success, name)
	}
}

func TestUnknownUserHasSameShapeAsWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	before := f.hasher.verifies.Load()
	wrong, err := f.authn.Authenticate(ctx, "alice", "nope")
	require.NoError(t, err)
	afterWrong := f.hasher.verifies.Load()

	unknown, err := f.authn.Authenticate(ctx, "mallory", "nope")
	require.NoError(t, err)
	afterUnknown := f.hasher.verifies.Load()

	assert.Equal(t, wrong, unknown)
	assert.Equal(t, Result{}, unknown)
	// どちらの経路でもハッシュ照合は1回だけ行われる
	assert.EqualValues(t, 1, afterWrong-before)
	assert.EqualValues(t, 1, afterUnknown-afterWrong)
}

func TestMalformedStoredHashIsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Insert(ctx, "broken", "not-a-bcrypt-hash")
	require.NoError(t, err)

	res, err := f.authn.Authenticate(ctx, "broken", "anything")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []audit.Kind{audit.KindLoginFailed}, f.sink.kinds())
}

func TestAuditEventsNeverCarryPassword(t *testing.T) {
	f := newFixture(t)
	ctx := audit.WithRemoteAddr(context.Background(), "192.0.2.1")

	_, err := f.reg.Register(ctx, "alice", "s3cret-value")
	require.NoError(t, err)
	_, err = f.authn.Authenticate(ctx, "alice", "s3cret-value")
	require.NoError(t, err)
	_, err = f.authn.Authenticate(ctx, "alice", "other-s3cret")
	require.NoError(t, err)

	var buf []byte
	for _, e := range f.sink.events {
		assert.Equal(t, "192.0.2.1", e.RemoteAddr)
		assert.Equal(t, "alice", e.Username)
		buf = append(buf, []byte(string(e.Kind)+e.Username+e.RemoteAddr)...)
	}
	assert.NotContains(t, string(buf), "s3cret")
}

func TestRegisterRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tc := range []struct{ user, pw string }{
		{"", "pw"},
		{"   ", "pw"},
		{"carol", ""},
	} {
		_, err := f.reg.Register(ctx, tc.user, tc.pw)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Empty(t, f.sink.kinds())
}

func TestRegisterRejectsLongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "zed", strings.Repeat("a", password.MaxLength+1))
	assert.ErrorIs(t, err, password.ErrPasswordTooLong)
	assert.NotErrorIs(t, err, users.ErrStorage)

	_, err = f.store.FindByUsername(ctx, "zed")
	assert.ErrorIs(t, err, users.ErrNotFound)
	assert.Empty(t, f.sink.kinds())

	// 上限ちょうどは登録できる
	_, err = f.reg.Register(ctx, "zed", strings.Repeat("a", password.MaxLength))
	require.NoError(t, err)
	res, err := f.authn.Authenticate(ctx, "zed", strings.Repeat("a", password.MaxLength))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestAuthenticateLongPasswordIsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Register(ctx, "alice", "pw123")
	require.NoError(t, err)

	res, err := f.authn.Authenticate(ctx, "alice", strings.Repeat("a", 200))
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestUsernameSurroundingSpaceIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.reg.Register(ctx, "  alice\t", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)

	_, err = f.reg.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, users.ErrConflict)

	for _, name := range []string{"alice", " alice "} {
		res, err := f.authn.Authenticate(ctx, name, "pw123")
		require.NoError(t, err)
		assert.True(t, res.Success, "%q", name)
		assert.Equal(t, created.ID, res.UserID)
	}
	assert.Equal(t, "alice", NormalizeUsername("\n alice "))
}

func TestConcurrentRegisterSameUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		created   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Register(ctx, "dave", "pw")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, users.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, n-1, conflicts.Load())

	count, err := f.store.CountByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// racingStore は事前確認の後に他者が同名ユーザーを作った状況を再現します。
type racingStore struct {
	users.Store
}

func (racingStore) FindByUsername(context.Context, string) (*users.User, error) {
	return nil, users.ErrNotFound
}

func (racingStore) Insert(context.Context, string, string) (*users.User, error) {
	return nil, users.ErrConflict
}

func TestRegisterConstraintBackstop(t *testing.T) {
	sink := &recordingSink{}
	reg, err := NewRegistrar(racingStore{}, password.NewHasher(1, password.WithCost(bcrypt.MinCost)), sink, zerolog.Nop())
	require.NoError(t, err)

	_, err = reg.Register(context.Background(), "erin", "pw")
	assert.ErrorIs(t, err, users.ErrConflict)
	assert.Equal(t, []audit.Kind{audit.KindRegistrationConflict}, sink.kinds())
}

type brokenStore struct {
	users.Store
}

func (brokenStore) FindByUsername(context.Context, string) (*users.User, error) {
	return nil, &users.StorageError{Op: "find by username", Err: errors.New("db down")}
}

func TestStorageErrorsPropagate(t *testing.T) {
	hasher := password.NewHasher(1, password.WithCost(bcrypt.MinCost))
	sink := &recordingSink{}

	authn, err := NewAuthenticator(brokenStore{}, hasher, sink, zerolog.Nop())
	require.NoError(t, err)
	_, err = authn.Authenticate(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, users.ErrStorage)

	reg, err := NewRegistrar(brokenStore{}, hasher, sink, zerolog.Nop())
	require.NoError(t, err)
	_, err = reg.Register(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, users.ErrStorage)

	assert.Empty(t, sink.kinds())
}

func TestConstructorsRequireCollaborators(t *testing.T) {
	hasher := password.NewHasher(1)
	_, err := NewAuthenticator(nil, hasher, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewAuthenticator(brokenStore{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewRegistrar(nil, hasher, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewRegistrar(brokenStore{}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
