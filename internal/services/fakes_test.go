package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"blogapi/internal/dbx"
	"blogapi/internal/metrics"
	"blogapi/internal/models"
	"blogapi/internal/repositories"
)

// memStore is an in-memory repositories.Manager. The db handle passed to
// each accessor is ignored; memTx provides rollback by snapshot.
type memStore struct {
	mu sync.Mutex

	users    map[int64]models.User
	tokens   map[string]models.AccessToken
	resets   map[string]models.PasswordReset
	posts    map[int64]models.Post
	comments map[int64]models.Comment
	nextID   int64

	failUpsert error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]models.User{},
		tokens:   map[string]models.AccessToken{},
		resets:   map[string]models.PasswordReset{},
		posts:    map[int64]models.Post{},
		comments: map[int64]models.Comment{},
	}
}

type memSnapshot struct {
	users    map[int64]models.User
	tokens   map[string]models.AccessToken
	resets   map[string]models.PasswordReset
	posts    map[int64]models.Post
	comments map[int64]models.Comment
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		users:    copyMap(s.users),
		tokens:   copyMap(s.tokens),
		resets:   copyMap(s.resets),
		posts:    copyMap(s.posts),
		comments: copyMap(s.comments),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.tokens, s.resets, s.posts, s.comments = snap.users, snap.tokens, snap.resets, snap.posts, snap.comments
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) Users(dbx.DBTX) repositories.UserRepository               { return memUsers{s} }
func (s *memStore) AccessTokens(dbx.DBTX) repositories.AccessTokenRepository { return memTokens{s} }
func (s *memStore) PasswordResets(dbx.DBTX) repositories.PasswordResetRepository {
	return memResets{s}
}
func (s *memStore) Posts(dbx.DBTX) repositories.PostRepository       { return memPosts{s} }
func (s *memStore) Comments(dbx.DBTX) repositories.CommentRepository { return memComments{s} }

func (s *memStore) resetRow(email string) (models.PasswordReset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resets[email]
	return r, ok
}

func (s *memStore) tokenCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) deleteUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// memTx serialises transactions and restores the snapshot when fn fails.
type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *memTx) WithinTx(ctx context.Context, fn dbx.TxFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(ctx, nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return repositories.ErrDuplicate
		}
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r memUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.PasswordHash = hash
	r.s.users[id] = u
	return nil
}

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, t *models.AccessToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.CreatedAt = time.Now()
	r.s.tokens[t.ID] = *t
	return nil
}

func (r memTokens) GetByID(_ context.Context, id string) (*models.AccessToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &t, nil
}

func (r memTokens) Touch(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[id]; ok {
		t.LastUsedAt = &at
		r.s.tokens[id] = t
	}
	return nil
}

func (r memTokens) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, id)
	return nil
}

func (r memTokens) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}

type memResets struct{ s *memStore }

func (r memResets) Upsert(_ context.Context, pr *models.PasswordReset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failUpsert != nil {
		return r.s.failUpsert
	}
	r.s.resets[pr.Email] = *pr
	return nil
}

func (r memResets) GetForUpdate(_ context.Context, email string) (*models.PasswordReset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.resets[email]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &pr, nil
}

func (r memResets) Consume(_ context.Context, email, hash string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.resets[email]
	if !ok || pr.TokenHash != hash || !pr.ExpiresAt.After(now) {
		return false, nil
	}
	delete(r.s.resets, email)
	return true, nil
}

func (r memResets) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for email, pr := range r.s.resets {
		if !pr.ExpiresAt.After(now) {
			delete(r.s.resets, email)
			n++
		}
	}
	return n, nil
}

type memPosts struct{ s *memStore }

func (r memPosts) Create(_ context.Context, p *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p.ID = r.s.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.posts[p.ID] = *p
	return nil
}

func (r memPosts) GetByID(_ context.Context, id int64) (*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (r memPosts) List(_ context.Context) ([]*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Post
	for _, p := range r.s.posts {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPosts) Update(_ context.Context, p *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[p.ID]; !ok {
		return repositories.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	stored := *p
	stored.Comments = nil
	r.s.posts[p.ID] = stored
	return nil
}

func (r memPosts) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.posts, id)
	for cid, c := range r.s.comments {
		if c.PostID == id {
			delete(r.s.comments, cid)
		}
	}
	return nil
}

type memComments struct{ s *memStore }

func (r memComments) Create(_ context.Context, c *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID = r.s.id()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.comments[c.ID] = *c
	return nil
}

func (r memComments) GetByID(_ context.Context, id int64) (*models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &c, nil
}

func (r memComments) ListByPosts(_ context.Context, ids []int64) ([]*models.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.Comment
	for _, c := range r.s.comments {
		if want[c.PostID] {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memComments) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.s.comments, id)
	return nil
}

type sentMail struct {
	To, Subject, Body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *fakeNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no mail sent")
	return n.sent[len(n.sent)-1]
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var codePattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

func (n *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	m := codePattern.FindStringSubmatch(n.last(t).Body)
	require.Len(t, m, 2, "reset mail carries no code")
	return m[1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testSecret = "test-secret-key-with-at-least-32-bytes"

type testEnv struct {
	store    *memStore
	notifier *fakeNotifier
	clock    *fakeClock
	metrics  *metrics.Metrics

	users    UserService
	tokens   TokenService
	auth     AuthService
	resets   PasswordResetService
	posts    PostService
	comments CommentService
}

type envOption func(*PasswordResetOptions, *time.Duration)

func withRevokeOnReset() envOption {
	return func(o *PasswordResetOptions, _ *time.Duration) { o.RevokeTokensOnReset = true }
}

func withTokenTTL(ttl time.Duration) envOption {
	return func(_ *PasswordResetOptions, t *time.Duration) { *t = ttl }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	resetOpts := PasswordResetOptions{CodeTTL: time.Hour}
	var tokenTTL time.Duration
	for _, o := range opts {
		o(&resetOpts, &tokenTTL)
	}

	store := newMemStore()
	tx := &memTx{store: store}
	notifier := &fakeNotifier{}
	clock := &fakeClock{now: time.Now()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	users, err := NewUserService(nil, store, bcrypt.MinCost)
	require.NoError(t, err)

	tokens := NewTokenService(nil, store, []byte(testSecret), tokenTTL, logger)
	tokens.(*tokenService).now = clock.Now

	resets := NewPasswordResetService(nil, tx, store, users, tokens, notifier, resetOpts, logger, m)
	resets.(*passwordResetService).now = clock.Now

	return &testEnv{
		store:    store,
		notifier: notifier,
		clock:    clock,
		metrics:  m,
		users:    users,
		tokens:   tokens,
		auth:     NewAuthService(nil, tx, users, tokens, notifier, logger, m),
		resets:   resets,
		posts:    NewPostService(nil, store),
		comments: NewCommentService(nil, store, users, notifier, logger),
	}
}

// register creates a user and returns it with its first token and caller.
func (e *testEnv) register(t *testing.T, name, email string) (*models.User, string, *Caller) {
	t.Helper()
	user, token, err := e.auth.Register(context.Background(), name, email, "password123")
	require.NoError(t, err)
	caller, err := e.tokens.Authenticate(context.Background(), token)
	require.NoError(t, err)
	return user, token, caller
}

var errSMTPDown = errors.New("smtp: connection refused")
