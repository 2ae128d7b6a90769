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

// LoyaltyService fronts the append-only points ledger. Balances are derived
// by summing entries; a redemption is just a negative entry and is refused
// when it would push the balance below zero.
type LoyaltyService interface {
	Award(ctx context.Context, userID int64, points int, description, referenceID string) (*domain.LoyaltyTransaction, error)
	Redeem(ctx context.Context, userID int64, points int, description, referenceID string) (*domain.LoyaltyTransaction, error)
	Balance(ctx context.Context, userID int64) (int, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]domain.LoyaltyTransaction, error)
}

type loyaltyService struct {
	ledger   repository.LoyaltyRepository
	eventBus events.Publisher
}

func NewLoyaltyService(ledger repository.LoyaltyRepository, eventBus events.Publisher) LoyaltyService {
	return &loyaltyService{ledger: ledger, eventBus: eventBus}
}

func (s *loyaltyService) Award(ctx context.Context, userID int64, points int, description, referenceID string) (*domain.LoyaltyTransaction, error) {
	if points <= 0 {
		return nil, fmt.Errorf("award points must be positive, got %d", points)
	}

	entry, err := s.ledger.Append(ctx, &domain.LoyaltyTransaction{
		UserID:      userID,
		Points:      points,
		Type:        domain.LoyaltyEarned,
		Description: description,
		ReferenceID: referenceID,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.PointsAwarded, events.PointsEvent{
		UserID:    userID,
		Points:    points,
		Type:      domain.LoyaltyEarned,
		Reference: referenceID,
		CreatedAt: time.Now(),
	})
	return entry, nil
}

func (s *loyaltyService) Redeem(ctx context.Context, userID int64, points int, description, referenceID string) (*domain.LoyaltyTransaction, error) {
	if points <= 0 {
		return nil, fmt.Errorf("redeem points must be positive, got %d", points)
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if points > balance {
		return nil, domain.ErrInsufficientPoints
	}

	entry, err := s.ledger.Append(ctx, &domain.LoyaltyTransaction{
		UserID:      userID,
		Points:      -points,
		Type:        domain.LoyaltyRedeemed,
		Description: description,
		ReferenceID: referenceID,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.PointsRedeemed, events.PointsEvent{
		UserID:    userID,
		Points:    points,
		Type:      domain.LoyaltyRedeemed,
		Reference: referenceID,
		CreatedAt: time.Now(),
	})
	return entry, nil
}

func (s *loyaltyService) Balance(ctx context.Context, userID int64) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *loyaltyService) History(ctx context.Context, userID int64, limit, offset int) ([]domain.LoyaltyTransaction, error) {
	return s.ledger.ListByUser(ctx, userID, limit, offset)
}

func (s *loyaltyService) publish(ctx context.Context, subject string, payload any) {
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
