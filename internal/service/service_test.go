package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-service/internal/apperror"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/repository/memory"
	"github.com/iliyamo/account-service/internal/utils"
)

var testTokens = TokenConfig{
	AccessSecret:  "access-secret",
	AccessTTL:     15 * time.Minute,
	RefreshSecret: "refresh-secret",
	RefreshTTL:    30 * 24 * time.Hour,
}

type recorder struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) all() []queue.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.Event(nil), r.events...)
}

type fixture struct {
	store *memory.Store
	auth  *AuthService
	users *UserService
	ev    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	ev := &recorder{}
	return &fixture{
		store: st,
		auth:  NewAuthService(st.Users, st.Sessions, st.Resets, testTokens, bcrypt.MinCost, ev, nil),
		users: NewUserService(st.Users, bcrypt.MinCost, ev, nil),
		ev:    ev,
	}
}

func (f *fixture) register(t *testing.T, email, password, kind string) model.Account {
	t.Helper()
	a, err := f.users.Create(context.Background(), CreateUserInput{Name: "Test " + kind, Email: email, Password: password, UserType: kind})
	require.NoError(t, err)
	return a
}

func requireAppError(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %T: %v", err, err)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, message, ae.Message)
}

func TestLogin_IssuesTokensAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.io", "pw1", "client")

	before := time.Now().UTC()
	res, err := f.auth.Login(ctx, LoginInput{Email: "a@x.io", Password: "pw1", UserType: "client"})
	require.NoError(t, err)
	assert.Equal(t, model.PublicAccount{ID: a.ID, Name: a.Name, Email: "a@x.io"}, res.User)

	access, err := utils.ParseToken(testTokens.AccessSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, utils.TokenUser{ID: a.ID, Email: "a@x.io", UserType: "client"}, access.User)

	refresh, err := utils.ParseToken(testTokens.RefreshSecret, res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, a.ID, refresh.User.ID)
	_, err = utils.ParseToken(testTokens.AccessSecret, res.RefreshToken)
	assert.Error(t, err, "refresh token must not verify with the access secret")

	session, err := f.store.Sessions.GetByTokenHash(ctx, utils.HashRefreshRaw(res.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, a.ID, session.UserID)
	assert.WithinDuration(t, before.Add(testTokens.RefreshTTL), session.ExpiresAt, 5*time.Second)
}

func TestLogin_RejectsWithUniformMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw1", "client")

	cases := map[string]LoginInput{
		"unknown email":  {Email: "nobody@x.io", Password: "pw1", UserType: "client"},
		"wrong password": {Email: "a@x.io", Password: "nope", UserType: "client"},
		"wrong kind":     {Email: "a@x.io", Password: "pw1", UserType: "company"},
		"bogus kind":     {Email: "a@x.io", Password: "pw1", UserType: "admin"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, in)
			requireAppError(t, err, http.StatusUnauthorized, "Email, password or user type incorrect")
		})
	}

	_, err := f.auth.Login(ctx, LoginInput{Email: "a@x.io"})
	requireAppError(t, err, http.StatusBadRequest, "email, password and user_type are required")
}

func TestLogin_ScopedByUserType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.register(t, "same@x.io", "client-pw", "client")
	company := f.register(t, "same@x.io", "company-pw", "company")

	res, err := f.auth.Login(ctx, LoginInput{Email: "same@x.io", Password: "company-pw", UserType: "company"})
	require.NoError(t, err)
	assert.Equal(t, company.ID, res.User.ID)

	_, err = f.auth.Login(ctx, LoginInput{Email: "same@x.io", Password: "company-pw", UserType: "client"})
	requireAppError(t, err, http.StatusUnauthorized, "Email, password or user type incorrect")

	res, err = f.auth.Login(ctx, LoginInput{Email: "SAME@x.io", Password: "client-pw", UserType: "client"})
	require.NoError(t, err)
	assert.Equal(t, client.ID, res.User.ID)
}

// blockedUsers reports every account as administratively blocked.
type blockedUsers struct{ UserStore }

func (b blockedUsers) GetByEmailWithPassword(ctx context.Context, email string, t model.UserType) (model.Account, error) {
	a, err := b.UserStore.GetByEmailWithPassword(ctx, email, t)
	a.Blocked = true
	return a, err
}

// countingSessions counts created sessions.
type countingSessions struct {
	SessionStore
	created int
}

func (c *countingSessions) Create(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	c.created++
	return c.SessionStore.Create(ctx, userID, tokenHash, exp)
}

func TestLogin_Blocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "b@x.io", "pw", "client")
	sessions := &countingSessions{SessionStore: f.store.Sessions}
	f.auth.Users = blockedUsers{f.store.Users}
	f.auth.Sessions = sessions

	_, err := f.auth.Login(ctx, LoginInput{Email: "b@x.io", Password: "pw", UserType: "client"})
	requireAppError(t, err, http.StatusUnauthorized, "User is blocked")

	_, err = f.auth.Login(ctx, LoginInput{Email: "b@x.io", Password: "wrong", UserType: "client"})
	requireAppError(t, err, http.StatusUnauthorized, "Email, password or user type incorrect")
	assert.Zero(t, sessions.created)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")
	res, err := f.auth.Login(ctx, LoginInput{Email: "a@x.io", Password: "pw", UserType: "client"})
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, res.RefreshToken))
	_, err = f.store.Sessions.GetByTokenHash(ctx, utils.HashRefreshRaw(res.RefreshToken))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	requireAppError(t, f.auth.Logout(ctx, res.RefreshToken), http.StatusUnauthorized, "Invalid refresh token")
	requireAppError(t, f.auth.Logout(ctx, "  "), http.StatusBadRequest, "refresh_token is required")
}

func TestForgotPassword_IssuesCodeAndEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.io", "pw", "client")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.auth.Now = func() time.Time { return now }

	res, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)
	assert.Equal(t, "Password reset token generated successfully", res.Message)
	assert.Regexp(t, `^[1-9][0-9]{5}$`, res.Token)
	assert.Equal(t, now.Add(time.Hour), res.ExpiresAt)

	pr, err := f.store.Resets.GetByToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, pr.UserID)
	assert.False(t, pr.Used())

	events := f.ev.all()
	require.Len(t, events, 2)
	assert.Equal(t, queue.EventUserRegistered, events[0].Type)
	assert.Equal(t, queue.EventPasswordResetRequested, events[1].Type)
	assert.Equal(t, res.Token, events[1].Token)
	assert.Equal(t, "a@x.io", events[1].Email)
}

func TestForgotPassword_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")

	_, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "company"})
	requireAppError(t, err, http.StatusNotFound, "User not found")
	_, err = f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "ghost@x.io", UserType: "client"})
	requireAppError(t, err, http.StatusNotFound, "User not found")
	_, err = f.auth.ForgotPassword(ctx, ForgotPasswordInput{})
	requireAppError(t, err, http.StatusBadRequest, "email and user_type are required")
}

func TestForgotPassword_RetriesOnLiveCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")
	f.register(t, "b@x.io", "pw", "client")

	codes := []string{"111111", "111111", "222222"}
	f.auth.NewCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	first, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)
	assert.Equal(t, "111111", first.Token)

	second, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "b@x.io", UserType: "client"})
	require.NoError(t, err)
	assert.Equal(t, "222222", second.Token)
}

func TestForgotPassword_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@x.io", "pw", "client")
	f.ev.err = errors.New("broker down")

	res, err := f.auth.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
}

func TestResetPassword_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "old-pw", "client")
	before, err := f.auth.Login(ctx, LoginInput{Email: "a@x.io", Password: "old-pw", UserType: "client"})
	require.NoError(t, err)

	code, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)

	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: "new-pw"}))
	_, err = f.store.Sessions.GetByTokenHash(ctx, utils.HashRefreshRaw(before.RefreshToken))
	assert.ErrorIs(t, err, repository.ErrNotFound, "reset revokes existing sessions")

	_, err = f.auth.Login(ctx, LoginInput{Email: "a@x.io", Password: "old-pw", UserType: "client"})
	requireAppError(t, err, http.StatusUnauthorized, "Email, password or user type incorrect")
	_, err = f.auth.Login(ctx, LoginInput{Email: "a@x.io", Password: "new-pw", UserType: "client"})
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: "third-pw"})
	requireAppError(t, err, http.StatusBadRequest, "Token already used")
}

func TestResetPassword_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")
	code, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Token: "000000", NewPassword: "x"})
	requireAppError(t, err, http.StatusBadRequest, "Invalid token")

	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token})
	requireAppError(t, err, http.StatusBadRequest, "token and new_password are required")

	f.auth.Now = func() time.Time { return time.Now().Add(ResetCodeTTL + time.Minute) }
	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: "x"})
	requireAppError(t, err, http.StatusBadRequest, "Token expired")
}

func TestResetPassword_OverlongPasswordKeepsCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")
	code, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)

	err = f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: strings.Repeat("a", 80)})
	requireAppError(t, err, http.StatusBadRequest, "password must be at most 72 bytes")

	pr, err := f.store.Resets.GetByToken(ctx, code.Token)
	require.NoError(t, err)
	assert.False(t, pr.Used())
	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: strings.Repeat("a", 72)}))
}

// orphanResets returns a live code whose owner no longer exists.
type orphanResets struct{ ResetStore }

func (orphanResets) GetByToken(context.Context, string) (model.PasswordReset, error) {
	return model.PasswordReset{ID: 1, UserID: 999, Token: "123456", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func TestResetPassword_OwnerGone(t *testing.T) {
	f := newFixture(t)
	f.auth.Resets = orphanResets{f.store.Resets}

	err := f.auth.ResetPassword(context.Background(), ResetPasswordInput{Token: "123456", NewPassword: "x"})
	requireAppError(t, err, http.StatusNotFound, "User not found")
}

func TestResetPassword_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.io", "pw", "client")
	code, err := f.auth.ForgotPassword(ctx, ForgotPasswordInput{Email: "a@x.io", UserType: "client"})
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		used int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.auth.ResetPassword(ctx, ResetPasswordInput{Token: code.Token, NewPassword: "new"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			if ae, ok := apperror.As(err); ok && ae.Message == "Token already used" {
				used++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, used)
}

func TestUserService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.users.Create(ctx, CreateUserInput{Name: " Ann ", Email: "Ann@X.io", Password: "pw", UserType: "Client"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", a.Name)
	assert.Equal(t, "ann@x.io", a.Email)
	assert.Equal(t, model.UserTypeClient, a.UserType)
	assert.Empty(t, a.PasswordHash)

	stored, err := f.store.Users.GetByEmailWithPassword(ctx, "ann@x.io", model.UserTypeClient)
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)
	assert.True(t, utils.VerifyPassword(stored.PasswordHash, "pw"))

	_, err = f.users.Create(ctx, CreateUserInput{Name: "Dup", Email: "ann@x.io", Password: "pw", UserType: "client"})
	requireAppError(t, err, http.StatusConflict, "User with email ann@x.io and type client already exists")

	_, err = f.users.Create(ctx, CreateUserInput{Name: "Co", Email: "ann@x.io", Password: "pw", UserType: "company"})
	require.NoError(t, err)

	_, err = f.users.Create(ctx, CreateUserInput{Name: "X", Email: "x@x.io", Password: "pw", UserType: "admin"})
	requireAppError(t, err, http.StatusBadRequest, "user_type must be one of: client, company")

	_, err = f.users.Create(ctx, CreateUserInput{Email: "x@x.io", Password: "pw", UserType: "client"})
	requireAppError(t, err, http.StatusBadRequest, "name, email, password and user_type are required")

	_, err = f.users.Create(ctx, CreateUserInput{Name: "X", Email: "x@x.io", Password: strings.Repeat("a", 73), UserType: "client"})
	requireAppError(t, err, http.StatusBadRequest, "password must be at most 72 bytes")
}

func TestUserService_CreateRaceMapsToConflict(t *testing.T) {
	st := memory.New()
	svc := NewUserService(racingUsers{st.Users}, bcrypt.MinCost, nil, nil)

	_, err := svc.Create(context.Background(), CreateUserInput{Name: "A", Email: "a@x.io", Password: "pw", UserType: "client"})
	requireAppError(t, err, http.StatusConflict, "User with email a@x.io and type client already exists")
}

// racingUsers reports the pair as free, then loses the insert.
type racingUsers struct{ UserStore }

func (racingUsers) GetByEmailAndType(context.Context, string, model.UserType) (model.Account, error) {
	return model.Account{}, repository.ErrNotFound
}

func (racingUsers) Create(context.Context, model.NewAccount) (model.Account, error) {
	return model.Account{}, repository.ErrEmailExists
}

func TestUserService_GetListDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.io", "pw", "client")
	b := f.register(t, "b@x.io", "pw", "company")

	list, err := f.users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []uint64{a.ID, b.ID}, []uint64{list[0].ID, list[1].ID})

	got, err := f.users.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", got.Email)

	require.NoError(t, f.users.Delete(ctx, a.ID))
	_, err = f.users.Get(ctx, a.ID)
	requireAppError(t, err, http.StatusNotFound, "User not found")
	requireAppError(t, f.users.Delete(ctx, a.ID), http.StatusNotFound, "User not found")
}

func TestUserService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@x.io", "pw", "client")
	f.register(t, "b@x.io", "pw", "client")

	name, phone := "Renamed", "+100"
	got, err := f.users.Update(ctx, a.ID, UpdateUserInput{Name: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "+100", *got.Phone)

	same := "A@x.io"
	_, err = f.users.Update(ctx, a.ID, UpdateUserInput{Email: &same})
	require.NoError(t, err, "keeping the own email is not a conflict")

	taken := "b@x.io"
	_, err = f.users.Update(ctx, a.ID, UpdateUserInput{Email: &taken})
	requireAppError(t, err, http.StatusConflict, "Email b@x.io already in use for user type client")

	company := "company"
	got, err = f.users.Update(ctx, a.ID, UpdateUserInput{Email: &taken, UserType: &company})
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeCompany, got.UserType)

	bogus := "admin"
	_, err = f.users.Update(ctx, a.ID, UpdateUserInput{UserType: &bogus})
	requireAppError(t, err, http.StatusBadRequest, "user_type must be one of: client, company")

	blank := " "
	_, err = f.users.Update(ctx, a.ID, UpdateUserInput{Name: &blank})
	requireAppError(t, err, http.StatusBadRequest, "name must not be empty")

	_, err = f.users.Update(ctx, 9999, UpdateUserInput{Name: &name})
	requireAppError(t, err, http.StatusNotFound, "User not found")
}
