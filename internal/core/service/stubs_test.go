package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matt-iam/iam-api/internal/core/domain"
	"github.com/matt-iam/iam-api/internal/core/ports"
)

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func cloneToken(t *domain.RefreshToken) *domain.RefreshToken {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// stubUserRepo keeps users in memory, returning clones so service-side
// mutations only become visible through Save.
type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	clone := cloneUser(user)
	if clone.ID == "" {
		clone.ID = user.Email
	}
	r.users[clone.Email] = clone
	return cloneUser(clone), nil
}

func (r *stubUserRepo) Save(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; !ok {
		return domain.ErrUserNotFound
	}
	r.users[user.Email] = cloneUser(user)
	return nil
}

type stubRoleRepo struct {
	roles map[string]*domain.Role
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{roles: map[string]*domain.Role{
		domain.DefaultRoleName: {Name: domain.DefaultRoleName, Permissions: []string{"READ_PRIVILEGES"}},
	}}
}

func (r *stubRoleRepo) FindByName(_ context.Context, name string) (*domain.Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return role, nil
}

// memLedger is an in-memory session ledger with the same conditional-update
// consumption semantics the Mongo repository provides.
type memLedger struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMemLedger() *memLedger {
	return &memLedger{tokens: make(map[string]*domain.RefreshToken)}
}

func (l *memLedger) Save(_ context.Context, t *domain.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[t.Token] = cloneToken(t)
	return nil
}

func (l *memLedger) FindActiveByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[token]
	if !ok || t.Revoked {
		return nil, domain.ErrTokenRevoked
	}
	return cloneToken(t), nil
}

func (l *memLedger) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[token]
	if !ok {
		return nil, domain.ErrTokenRevoked
	}
	return cloneToken(t), nil
}

func (l *memLedger) Consume(_ context.Context, token string, now time.Time) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[token]
	if !ok || t.Revoked {
		return nil, domain.ErrTokenRevoked
	}
	t.Revoked = true
	t.LastUsedAt = &now
	return cloneToken(t), nil
}

func (l *memLedger) Revoke(_ context.Context, token string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tokens[token]; ok {
		t.Revoked = true
	}
	return nil
}

func (l *memLedger) CountActive(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, t := range l.tokens {
		if t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n, nil
}

func (l *memLedger) OldestActive(ctx context.Context, userID string) (*domain.RefreshToken, error) {
	active, err := l.AllActiveByCreatedDesc(ctx, userID)
	if err != nil || len(active) == 0 {
		return nil, domain.ErrTokenRevoked
	}
	return cloneToken(&active[len(active)-1]), nil
}

func (l *memLedger) AllActiveByCreatedDesc(_ context.Context, userID string) ([]domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var active []domain.RefreshToken
	for _, t := range l.tokens {
		if t.UserID == userID && !t.Revoked {
			active = append(active, *t)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (l *memLedger) AllExpiredActive(_ context.Context, userID string, now time.Time) ([]domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var expired []domain.RefreshToken
	for _, t := range l.tokens {
		if t.UserID == userID && !t.Revoked && t.ExpiresAt.Before(now) {
			expired = append(expired, *t)
		}
	}
	return expired, nil
}

// setExpiry rewrites a stored token's expiry, for lazy-expiry tests.
func (l *memLedger) setExpiry(token string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tokens[token]; ok {
		t.ExpiresAt = at
	}
}

func (l *memLedger) setCreatedAt(token string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tokens[token]; ok {
		t.CreatedAt = at
	}
}

// memBlacklist mimics the unique-index insert semantics of the Mongo store.
type memBlacklist struct {
	mu     sync.Mutex
	tokens map[string]*domain.BlacklistedToken
	saves  int
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{tokens: make(map[string]*domain.BlacklistedToken)}
}

func (b *memBlacklist) Exists(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok, nil
}

func (b *memBlacklist) Save(_ context.Context, t *domain.BlacklistedToken) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if _, ok := b.tokens[t.Token]; ok {
		return nil
	}
	clone := *t
	b.tokens[t.Token] = &clone
	return nil
}

func (b *memBlacklist) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var deleted int64
	for token, t := range b.tokens {
		if t.ExpiresAt.Before(now) {
			delete(b.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}

// recordingAudit captures published events for assertions.
type recordingAudit struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (a *recordingAudit) Publish(_ context.Context, event ports.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	kinds := make([]string, 0, len(a.events))
	for _, e := range a.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// recordingScheduler captures sweep requests.
type recordingScheduler struct {
	mu    sync.Mutex
	users []*domain.User
}

func (s *recordingScheduler) EnqueueUserSweep(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user)
}
