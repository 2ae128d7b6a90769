package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/pkg/logger"
)

// SessionService tracks login sessions. Multiple concurrent sessions per user
// are allowed; ending a session only ever touches the caller's own rows.
type SessionService interface {
	Start(ctx context.Context, in *domain.StartSessionInput) (*domain.Session, error)
	End(ctx context.Context, principal, sessionID int64) error
	List(ctx context.Context, principal int64) ([]domain.Session, error)
}

type sessionService struct {
	sessions repository.SessionRepository
}

func NewSessionService(sessions repository.SessionRepository) SessionService {
	return &sessionService{sessions: sessions}
}

func (s *sessionService) Start(ctx context.Context, in *domain.StartSessionInput) (*domain.Session, error) {
	session, err := s.sessions.Create(ctx, uuid.NewString(), in)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// End is idempotent: ending an unknown, foreign, or already-ended session
// succeeds without effect.
func (s *sessionService) End(ctx context.Context, principal, sessionID int64) error {
	ended, err := s.sessions.End(ctx, principal, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if !ended {
		logger.DebugContext(ctx, "End matched no live session", "user_id", principal, "session_id", sessionID)
	}
	return nil
}

func (s *sessionService) List(ctx context.Context, principal int64) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, principal)
}
