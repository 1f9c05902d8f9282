package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/logging"
)

// MaxRules caps how many rules are read for one user.
const MaxRules = 100

// Store persists rules. Every method is scoped to the owning user; rules of
// other users behave as missing and yield apperr.NotFound.
type Store interface {
	ListRules(ctx context.Context, userID string, limit int) ([]Rule, error)
	GetRule(ctx context.Context, userID, id string) (Rule, error)
	CreateRule(ctx context.Context, r Rule) error
	UpdateRule(ctx context.Context, r Rule) error
	DeleteRule(ctx context.Context, userID, id string) error
}

// Service manages a user's rules.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a rule Service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// List returns the user's rules.
func (s *Service) List(ctx context.Context, userID string) ([]Rule, error) {
	return s.store.ListRules(ctx, userID, MaxRules)
}

// Active returns the user's active rules. When ids is non-empty only those
// rules are considered.
func (s *Service) Active(ctx context.Context, userID string, ids []string) ([]Rule, error) {
	all, err := s.store.ListRules(ctx, userID, MaxRules)
	if err != nil {
		return nil, err
	}

	var wanted map[string]bool
	if len(ids) > 0 {
		wanted = make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}

	active := make([]Rule, 0, len(all))
	for _, r := range all {
		if !r.IsActive {
			continue
		}
		if wanted != nil && !wanted[r.ID] {
			continue
		}
		active = append(active, r)
	}
	return active, nil
}

// Create adds a new active rule.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Rule, error) {
	if err := in.Validate(); err != nil {
		return Rule{}, err
	}

	if err := s.ensureUniqueName(ctx, userID, "", in.Name); err != nil {
		return Rule{}, err
	}

	r := Rule{
		ID:        uuid.NewString(),
		UserID:    userID,
		IsActive:  true,
		CreatedAt: s.now().UTC(),
	}
	r.apply(in)

	if err := s.store.CreateRule(ctx, r); err != nil {
		return Rule{}, fmt.Errorf("creating rule: %w", err)
	}
	s.logger.InfoContext(ctx, "rule created", logging.Rule(r.Name), slog.String("rule_id", r.ID))
	return r, nil
}

// Update replaces the editable fields of a rule. The active flag is kept.
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (Rule, error) {
	if err := in.Validate(); err != nil {
		return Rule{}, err
	}

	r, err := s.get(ctx, userID, id)
	if err != nil {
		return Rule{}, err
	}
	if err := s.ensureUniqueName(ctx, userID, id, in.Name); err != nil {
		return Rule{}, err
	}
	r.apply(in)

	if err := s.store.UpdateRule(ctx, r); err != nil {
		return Rule{}, fmt.Errorf("updating rule: %w", err)
	}
	return r, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteRule(ctx, userID, id); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("Rule not found")
		}
		return fmt.Errorf("deleting rule: %w", err)
	}
	return nil
}

// Toggle flips the active flag and returns the new value.
func (s *Service) Toggle(ctx context.Context, userID, id string) (bool, error) {
	r, err := s.get(ctx, userID, id)
	if err != nil {
		return false, err
	}
	r.IsActive = !r.IsActive
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return false, fmt.Errorf("toggling rule: %w", err)
	}
	return r.IsActive, nil
}

// ensureUniqueName rejects a name that another rule of the user already
// carries, ignoring case. The rule identified by exceptID is skipped.
func (s *Service) ensureUniqueName(ctx context.Context, userID, exceptID, name string) error {
	existing, err := s.store.ListRules(ctx, userID, MaxRules)
	if err != nil {
		return fmt.Errorf("listing rules: %w", err)
	}
	for _, r := range existing {
		if r.ID != exceptID && strings.EqualFold(r.Name, name) {
			return apperr.InvalidRequest(fmt.Sprintf("a rule named %q already exists", r.Name))
		}
	}
	return nil
}

func (s *Service) get(ctx context.Context, userID, id string) (Rule, error) {
	r, err := s.store.GetRule(ctx, userID, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Rule{}, apperr.NotFound("Rule not found")
		}
		return Rule{}, fmt.Errorf("loading rule: %w", err)
	}
	return r, nil
}
