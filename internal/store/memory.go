package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/rules"
)

// Memory is an in-process Store. Data is lost on restart.
type Memory struct {
	mu          sync.RWMutex
	credentials map[string]credential.Credential // by user id
	tokens      map[string]string                // access token -> user id
	rules       map[string]rules.Rule
	records     []classify.Record
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		credentials: make(map[string]credential.Credential),
		tokens:      make(map[string]string),
		rules:       make(map[string]rules.Rule),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) CredentialByToken(_ context.Context, accessToken string) (credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.tokens[accessToken]
	if !ok {
		return credential.Credential{}, apperr.NotFound("credential not found")
	}
	return m.credentials[userID], nil
}

// UpsertCredential stores c keyed on its user id. The creation time of an
// existing credential is kept.
func (m *Memory) UpsertCredential(_ context.Context, c credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.credentials[c.UserID]; ok {
		delete(m.tokens, prev.AccessToken)
		c.CreatedAt = prev.CreatedAt
	}
	m.credentials[c.UserID] = c
	m.tokens[c.AccessToken] = c.UserID
	return nil
}

func (m *Memory) DeleteCredentialByToken(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.tokens[accessToken]
	if !ok {
		return apperr.NotFound("credential not found")
	}
	delete(m.tokens, accessToken)
	delete(m.credentials, userID)
	return nil
}

// ListRules returns the user's rules, oldest first.
func (m *Memory) ListRules(_ context.Context, userID string, limit int) ([]rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]rules.Rule, 0)
	for _, r := range m.rules {
		if r.UserID == userID {
			out = append(out, cloneRule(r))
		}
	}
	slices.SortFunc(out, func(a, b rules.Rule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetRule(_ context.Context, userID, id string) (rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[id]
	if !ok || r.UserID != userID {
		return rules.Rule{}, apperr.NotFound("rule not found")
	}
	return cloneRule(r), nil
}

func (m *Memory) CreateRule(_ context.Context, r rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[r.ID]; ok {
		return apperr.InvalidRequest("rule already exists")
	}
	m.rules[r.ID] = cloneRule(r)
	return nil
}

func (m *Memory) UpdateRule(_ context.Context, r rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.rules[r.ID]
	if !ok || prev.UserID != r.UserID {
		return apperr.NotFound("rule not found")
	}
	r.CreatedAt = prev.CreatedAt
	m.rules[r.ID] = cloneRule(r)
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok || r.UserID != userID {
		return apperr.NotFound("rule not found")
	}
	delete(m.rules, id)
	return nil
}

func (m *Memory) AppendRecord(_ context.Context, r classify.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, r)
	return nil
}

// ListRecords returns the user's records, newest first.
func (m *Memory) ListRecords(_ context.Context, userID string, limit int) ([]classify.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]classify.Record, 0)
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
	}
	slices.SortStableFunc(out, func(a, b classify.Record) int {
		return b.ClassifiedAt.Compare(a.ClassifiedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountRecords(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GroupRecords(_ context.Context, userID string, by classify.Grouping, limit int) ([]classify.Count, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[string]int)
	for _, r := range m.records {
		if r.UserID == userID {
			totals[by.Field(r)]++
		}
	}

	counts := make([]classify.Count, 0, len(totals))
	for name, n := range totals {
		counts = append(counts, classify.Count{Name: name, Count: n})
	}
	classify.SortCounts(counts)
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func cloneRule(r rules.Rule) rules.Rule {
	r.Keywords = slices.Clone(r.Keywords)
	return r
}
