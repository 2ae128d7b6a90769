package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/service"
	"github.com/cassaevelyn/smartlib/pkg/events"
)

func TestAwardAndRedeem(t *testing.T) {
	ledger := newMockLoyaltyRepo()
	bus := &mockPublisher{}
	svc := service.NewLoyaltyService(ledger, bus)
	ctx := context.Background()

	if _, err := svc.Award(ctx, 1, 100, "Seat booking streak", "booking-17"); err != nil {
		t.Fatalf("Award: %v", err)
	}

	entry, err := svc.Redeem(ctx, 1, 40, "Late fee waiver", "")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if entry.Points != -40 {
		t.Errorf("redeem entry points = %d, want -40", entry.Points)
	}

	balance, err := svc.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 60 {
		t.Errorf("balance = %d, want 60", balance)
	}

	if len(bus.bySubject(events.PointsAwarded)) != 1 || len(bus.bySubject(events.PointsRedeemed)) != 1 {
		t.Error("missing loyalty events")
	}
}

func TestRedeemBeyondBalance(t *testing.T) {
	ledger := newMockLoyaltyRepo()
	svc := service.NewLoyaltyService(ledger, &mockPublisher{})
	ctx := context.Background()

	if _, err := svc.Award(ctx, 1, 30, "", ""); err != nil {
		t.Fatalf("Award: %v", err)
	}
	if _, err := svc.Redeem(ctx, 1, 31, "", ""); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Errorf("err = %v, want ErrInsufficientPoints", err)
	}

	// The refused redemption must not leave a ledger entry behind.
	balance, _ := svc.Balance(ctx, 1)
	if balance != 30 {
		t.Errorf("balance = %d, want 30", balance)
	}
}

func TestAwardRejectsNonPositivePoints(t *testing.T) {
	svc := service.NewLoyaltyService(newMockLoyaltyRepo(), &mockPublisher{})
	ctx := context.Background()

	if _, err := svc.Award(ctx, 1, 0, "", ""); err == nil {
		t.Error("expected error for zero points")
	}
	if _, err := svc.Redeem(ctx, 1, -5, "", ""); err == nil {
		t.Error("expected error for negative redemption")
	}
}
