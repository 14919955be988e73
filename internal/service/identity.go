package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/echocast/internal/apperr"
	"github.com/lalith-99/echocast/internal/models"
	"github.com/lalith-99/echocast/internal/repository"
	"github.com/lalith-99/echocast/internal/textutil"
	"go.uber.org/zap"
)

const minUsernameLen = 2

// NameResolver turns a user id into a display name.
type NameResolver interface {
	ResolveName(ctx context.Context, userID string) string
}

// UserPatch carries the mutable fields of a profile. Nil means "leave as is".
type UserPatch struct {
	Name *string      `json:"name"`
	Role *models.Role `json:"role"`
}

type UserStats struct {
	TotalSubscriptions  int       `json:"total_subscriptions"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	MessagesSent        int       `json:"messages_sent"`
	MemberSince         time.Time `json:"member_since"`
	LastLogin           time.Time `json:"last_login"`
}

// IdentityService is the identity store: profiles created on first login
// by username and soft-deleted on deactivation.
type IdentityService struct {
	users    repository.UserRepository
	subs     repository.SubscriptionRepository
	messages repository.MessageRepository
	locks    *keyedMutex
	now      func() time.Time
	logger   *zap.Logger
}

var _ NameResolver = (*IdentityService)(nil)

func NewIdentityService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	messages repository.MessageRepository,
	logger *zap.Logger,
) *IdentityService {
	return &IdentityService{
		users:    users,
		subs:     subs,
		messages: messages,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Login returns the active user for username, creating it on first login.
// An empty role keeps the existing user's role (new users default to
// subscriber); a non-empty role switches it.
func (s *IdentityService) Login(ctx context.Context, username string, role models.Role) (*models.User, error) {
	display := strings.TrimSpace(username)
	if utf8.RuneCountInString(display) < minUsernameLen {
		return nil, apperr.Validation("username", "username must be at least 2 characters")
	}
	if role != "" && !role.Valid() {
		return nil, apperr.Validation("role", "role must be publisher or subscriber")
	}
	normalized := textutil.NormalizeUsername(display)

	// Two logins racing on one new username must not create two users.
	unlock := s.locks.Lock(normalized)
	defer unlock()

	now := s.now()
	user, err := s.users.GetByUsername(ctx, normalized)
	if err != nil {
		return nil, apperr.Internal("failed to look up user", err)
	}

	if user != nil {
		user.LastLogin = now
		if role != "" {
			user.Role = role
		}
		if err := s.users.Update(ctx, user); err != nil {
			return nil, apperr.Internal("failed to update user", err)
		}
		return user, nil
	}

	if role == "" {
		role = models.RoleSubscriber
	}
	id := fmt.Sprintf("user_%s_%d", normalized, now.UnixMilli())
	// A deactivated account may already hold this id if the username was
	// freed and reclaimed within the same millisecond.
	if prev, err := s.users.GetByID(ctx, id); err != nil {
		return nil, apperr.Internal("failed to look up user", err)
	} else if prev != nil {
		id = id + "_" + uuid.NewString()[:8]
	}

	user = &models.User{
		ID:        id,
		Name:      display,
		Role:      role,
		Username:  normalized,
		CreatedAt: now,
		LastLogin: now,
		IsActive:  true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperr.Internal("failed to create user", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Get returns an active user.
func (s *IdentityService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to get user", err)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

// lockUser takes the username lock Login holds and returns the user as read
// under it. Usernames never change, so the first read only finds the key.
func (s *IdentityService) lockUser(ctx context.Context, id string) (*models.User, func(), error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(user.Username)
	user, err = s.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return user, unlock, nil
}

func (s *IdentityService) Update(ctx context.Context, id string, patch UserPatch) (*models.User, error) {
	user, unlock, err := s.lockUser(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if utf8.RuneCountInString(name) < minUsernameLen {
			return nil, apperr.Validation("name", "name must be at least 2 characters")
		}
		user.Name = name
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return nil, apperr.Validation("role", "role must be publisher or subscriber")
		}
		user.Role = *patch.Role
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal("failed to update user", err)
	}
	return user, nil
}

// Deactivate soft-deletes the user. The username becomes free for a new
// account; messages keep pointing at the old id.
func (s *IdentityService) Deactivate(ctx context.Context, id string) error {
	user, unlock, err := s.lockUser(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	user.IsActive = false
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal("failed to deactivate user", err)
	}
	return nil
}

func (s *IdentityService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list users", err)
	}
	return users, nil
}

func (s *IdentityService) Stats(ctx context.Context, id string) (*UserStats, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	active, err := s.subs.ListByUser(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to list subscriptions", err)
	}
	total, err := s.subs.CountByUser(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to count subscriptions", err)
	}
	sent, err := s.messages.CountBySender(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to count messages", err)
	}

	return &UserStats{
		TotalSubscriptions:  total,
		ActiveSubscriptions: len(active),
		MessagesSent:        sent,
		MemberSince:         user.CreatedAt,
		LastLogin:           user.LastLogin,
	}, nil
}

// ResolveName returns the display name of an active user, or userID itself
// when there is none.
func (s *IdentityService) ResolveName(ctx context.Context, userID string) string {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("resolve user name", zap.String("user_id", userID), zap.Error(err))
		return userID
	}
	if user == nil || !user.IsActive || user.Name == "" {
		return userID
	}
	return user.Name
}

func (s *IdentityService) Exists(ctx context.Context, userID string) bool {
	user, err := s.users.GetByID(ctx, userID)
	return err == nil && user != nil && user.IsActive
}
