package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/pkg/events"
	"github.com/cassaevelyn/smartlib/pkg/logger"
)

// AccessService owns library access grants and the approval state derived
// from them. Grant mutations and the approval recompute commit together in
// the repository, so callers only see consistent states.
type AccessService interface {
	Apply(ctx context.Context, principal *domain.User, libraryID int64, notes string) (*domain.LibraryAccessGrant, error)
	Grant(ctx context.Context, principal *domain.User, grantID int64) (*domain.LibraryAccessGrant, error)
	GrantDirect(ctx context.Context, principal *domain.User, userID, libraryID int64, accessType string, expiresAt *time.Time, notes string) (*domain.LibraryAccessGrant, error)
	Revoke(ctx context.Context, principal *domain.User, grantID int64) error
	ListGrants(ctx context.Context, userID int64) ([]domain.LibraryAccessGrant, error)

	ApproveUser(ctx context.Context, principal *domain.User, userID int64) error
	RejectUser(ctx context.Context, principal *domain.User, userID int64, reason string) error
}

type accessService struct {
	users    repository.UserRepository
	grants   repository.AccessRepository
	activity repository.ActivityRepository
	eventBus events.Publisher
}

func NewAccessService(
	users repository.UserRepository,
	grants repository.AccessRepository,
	activity repository.ActivityRepository,
	eventBus events.Publisher,
) AccessService {
	return &accessService{
		users:    users,
		grants:   grants,
		activity: activity,
		eventBus: eventBus,
	}
}

// Apply files a pending application. No approval change happens until an
// admin activates it.
func (s *accessService) Apply(ctx context.Context, principal *domain.User, libraryID int64, notes string) (*domain.LibraryAccessGrant, error) {
	grant, err := s.grants.Apply(ctx, principal.ID, libraryID, notes)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AccessRequested, events.AccessChangedEvent{
		UserID:    principal.ID,
		LibraryID: libraryID,
		GrantID:   grant.ID,
		Active:    false,
		Approved:  principal.IsApproved,
		ChangedAt: time.Now(),
	})
	s.logActivity(ctx, principal.ID, domain.ActivityAccessApplied,
		fmt.Sprintf("Applied for access to library %d", libraryID))

	return grant, nil
}

// Grant activates a pending application.
func (s *accessService) Grant(ctx context.Context, principal *domain.User, grantID int64) (*domain.LibraryAccessGrant, error) {
	if !principal.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	res, err := s.grants.Activate(ctx, grantID, principal.ID)
	if err != nil {
		return nil, err
	}

	s.afterGrantChange(ctx, res, events.AccessGranted)
	s.logActivity(ctx, res.Grant.UserID, domain.ActivityAccessGranted,
		fmt.Sprintf("Access granted for library %d", res.Grant.LibraryID))

	return res.Grant, nil
}

// GrantDirect creates an active grant without a prior application.
func (s *accessService) GrantDirect(ctx context.Context, principal *domain.User, userID, libraryID int64, accessType string, expiresAt *time.Time, notes string) (*domain.LibraryAccessGrant, error) {
	if !principal.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if accessType == "" {
		accessType = domain.AccessStandard
	}

	res, err := s.grants.CreateActive(ctx, userID, libraryID, accessType, principal.ID, expiresAt, notes)
	if err != nil {
		return nil, err
	}

	s.afterGrantChange(ctx, res, events.AccessGranted)
	s.logActivity(ctx, userID, domain.ActivityAccessGranted,
		fmt.Sprintf("Access granted for library %d", libraryID))

	return res.Grant, nil
}

// Revoke deactivates a grant. When it was the user's last active grant the
// recompute drops a student's approval in the same transaction.
func (s *accessService) Revoke(ctx context.Context, principal *domain.User, grantID int64) error {
	if !principal.IsAdmin() {
		return domain.ErrForbidden
	}

	res, err := s.grants.Revoke(ctx, grantID)
	if err != nil {
		return err
	}

	s.afterGrantChange(ctx, res, events.AccessRevoked)
	s.logActivity(ctx, res.Grant.UserID, domain.ActivityAccessRevoked,
		fmt.Sprintf("Access revoked for library %d", res.Grant.LibraryID))

	return nil
}

func (s *accessService) ListGrants(ctx context.Context, userID int64) ([]domain.LibraryAccessGrant, error) {
	return s.grants.ListByUser(ctx, userID)
}

// ApproveUser records a manual admin approval, independent of grants.
func (s *accessService) ApproveUser(ctx context.Context, principal *domain.User, userID int64) error {
	if !principal.IsAdmin() {
		return domain.ErrForbidden
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	approvedBy := principal.ID
	if err := s.users.SetApproval(ctx, userID, true, &approvedBy); err != nil {
		return fmt.Errorf("failed to approve user: %w", err)
	}

	s.publish(ctx, events.UserApproved, map[string]any{"user_id": userID, "approved_by": principal.ID})
	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindApproval,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data:      map[string]string{"library": "Smart Lib"},
	})

	logger.InfoContext(ctx, "User approved", "user_id", userID, "approved_by", principal.ID)
	return nil
}

// RejectUser clears approval and deactivates the account.
func (s *accessService) RejectUser(ctx context.Context, principal *domain.User, userID int64, reason string) error {
	if !principal.IsAdmin() {
		return domain.ErrForbidden
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	if err := s.users.SetApproval(ctx, userID, false, nil); err != nil {
		return fmt.Errorf("failed to clear approval: %w", err)
	}
	if err := s.users.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}

	s.publish(ctx, events.UserRejected, map[string]any{"user_id": userID, "rejected_by": principal.ID, "reason": reason})
	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindRejection,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data:      map[string]string{"reason": reason},
	})

	logger.InfoContext(ctx, "User rejected", "user_id", userID, "rejected_by", principal.ID)
	return nil
}

func (s *accessService) afterGrantChange(ctx context.Context, res *repository.GrantResult, subject string) {
	s.publish(ctx, subject, events.AccessChangedEvent{
		UserID:    res.Grant.UserID,
		LibraryID: res.Grant.LibraryID,
		GrantID:   res.Grant.ID,
		Active:    res.Grant.IsActive,
		Approved:  res.Approved,
		ChangedAt: time.Now(),
	})
	if res.ApprovalChanged {
		logger.InfoContext(ctx, "Approval recomputed",
			"user_id", res.Grant.UserID,
			"approved", res.Approved,
		)
	}
}

func (s *accessService) publish(ctx context.Context, subject string, payload any) {
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}

func (s *accessService) logActivity(ctx context.Context, userID int64, activityType, description string) {
	err := s.activity.Append(ctx, &domain.ActivityLogEntry{
		UserID:      userID,
		Type:        activityType,
		Description: description,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to write activity log", "error", err, "user_id", userID, "activity", activityType)
	}
}
