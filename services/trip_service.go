// Package services holds the write-side orchestration between the HTTP
// surface and the storage collaborators. Reads flow through the engine's
// live subscriptions; writes go through here, validated, and come back to
// the reader as a push from the source.
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/internal/reminder"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxReceiptBytes caps receipt uploads.
const maxReceiptBytes = 10 << 20

// TripService validates and executes write operations against the storage
// collaborator, delegating reminder lifecycle changes to the scheduler and
// receipt images to the receipt storage. Receipts is optional; without it
// receipt uploads are rejected.
type TripService struct {
	trips     store.TripStore
	receipts  store.ReceiptStorage
	scheduler *reminder.Scheduler
	log       *zap.SugaredLogger
}

// NewTripService creates a TripService. receipts may be nil.
func NewTripService(trips store.TripStore, receipts store.ReceiptStorage, scheduler *reminder.Scheduler) *TripService {
	return &TripService{
		trips:     trips,
		receipts:  receipts,
		scheduler: scheduler,
		log:       logger.GetLogger().Named("trip_service"),
	}
}

// CreateTrip validates and stores a new trip. The created trip reaches the
// reader through the owner's subscription push, not through this return.
func (s *TripService) CreateTrip(ctx context.Context, ownerID string, params types.CreateTripParams) (string, error) {
	if strings.TrimSpace(params.Name) == "" {
		return "", apperrors.ValidationFailed("invalid trip", "name is required")
	}
	if params.StartDate.IsZero() || params.EndDate.IsZero() {
		return "", apperrors.ValidationFailed("invalid trip", "start and end dates are required")
	}
	if params.EndDate.Before(params.StartDate) {
		return "", apperrors.ValidationFailed("invalid trip", "end date cannot precede start date")
	}
	if params.Budget < 0 {
		return "", apperrors.ValidationFailed("invalid trip", "budget cannot be negative")
	}

	id, err := s.trips.CreateTrip(ctx, ownerID, params)
	if err != nil {
		return "", apperrors.NewStorageError(err, "failed to create trip")
	}
	s.log.Infow("Trip created", "tripId", id, "ownerId", ownerID)
	return id, nil
}

// UpdateTripBudget replaces the trip's budget.
func (s *TripService) UpdateTripBudget(ctx context.Context, ownerID, tripID string, budget float64) error {
	if budget < 0 {
		return apperrors.ValidationFailed("invalid budget", "budget cannot be negative")
	}
	if err := s.trips.UpdateTripBudget(ctx, ownerID, tripID, budget); err != nil {
		return apperrors.NewStorageError(err, "failed to update budget")
	}
	return nil
}

// SetTripReminder enables, re-tunes, or disables (nil interval) the trip's
// reminder. Enabling goes through the scheduler first so a permission denial
// leaves both the schedule and the stored trip field untouched.
func (s *TripService) SetTripReminder(ctx context.Context, ownerID, tripID, tripName string, intervalMinutes *int) error {
	if intervalMinutes == nil {
		if err := s.scheduler.Disable(ctx, tripID); err != nil {
			return err
		}
		if err := s.trips.UpdateTripReminder(ctx, ownerID, tripID, nil); err != nil {
			return apperrors.NewStorageError(err, "failed to clear reminder setting")
		}
		return nil
	}

	if err := s.scheduler.Enable(ctx, tripID, tripName, *intervalMinutes); err != nil {
		return err
	}
	if err := s.trips.UpdateTripReminder(ctx, ownerID, tripID, intervalMinutes); err != nil {
		return apperrors.NewStorageError(err, "failed to persist reminder setting")
	}
	return nil
}

// AddExpense validates and stores a new expense. When receipt data is
// provided it is uploaded first and the resulting URL attached to the
// expense record.
func (s *TripService) AddExpense(ctx context.Context, ownerID, tripID string, params types.CreateExpenseParams, receipt []byte) (string, error) {
	if params.Amount <= 0 {
		return "", apperrors.ValidationFailed("invalid expense", "amount must be positive")
	}
	if !params.Category.IsValid() {
		return "", apperrors.ValidationFailed("invalid expense", fmt.Sprintf("unknown category %q", params.Category))
	}
	if params.Timestamp.IsZero() {
		return "", apperrors.ValidationFailed("invalid expense", "timestamp is required")
	}

	if len(receipt) > 0 {
		url, err := s.saveReceipt(ctx, ownerID, tripID, receipt)
		if err != nil {
			return "", err
		}
		params.ImageURL = url
	}

	id, err := s.trips.AddExpense(ctx, ownerID, tripID, params)
	if err != nil {
		return "", apperrors.NewStorageError(err, "failed to add expense")
	}
	s.log.Infow("Expense added", "expenseId", id, "tripId", tripID, "amount", params.Amount)
	return id, nil
}

// DeleteExpense removes an expense and releases its receipt image, if any.
// A failed release is logged, not surfaced: the expense row is already gone
// and the orphaned object is harmless.
func (s *TripService) DeleteExpense(ctx context.Context, ownerID, tripID, expenseID string) error {
	imageURL, err := s.trips.DeleteExpense(ctx, ownerID, tripID, expenseID)
	if err != nil {
		return apperrors.NewStorageError(err, "failed to delete expense")
	}

	if imageURL != "" && s.receipts != nil {
		if err := s.receipts.Delete(ctx, imageURL); err != nil {
			s.log.Warnw("Failed to release receipt image", "expenseId", expenseID, "url", imageURL, "error", err)
		}
	}
	return nil
}

// ReceiptURL returns a short-lived download URL for a stored receipt.
func (s *TripService) ReceiptURL(ctx context.Context, key string) (string, error) {
	if s.receipts == nil {
		return "", apperrors.NotFound("receipt storage", key)
	}
	url, err := s.receipts.GetURL(ctx, key)
	if err != nil {
		return "", apperrors.NewStorageError(err, "failed to presign receipt")
	}
	return url, nil
}

func (s *TripService) saveReceipt(ctx context.Context, ownerID, tripID string, data []byte) (string, error) {
	if s.receipts == nil {
		return "", apperrors.ValidationFailed("receipts unavailable", "no receipt storage is configured")
	}
	if len(data) > maxReceiptBytes {
		return "", apperrors.ValidationFailed("receipt too large", "receipt images are limited to 10 MiB")
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", apperrors.ValidationFailed("invalid receipt", fmt.Sprintf("expected an image, got %s", mime.String()))
	}

	key := fmt.Sprintf("receipts/%s/%s/%s%s", ownerID, tripID, uuid.New().String(), mime.Extension())
	url, err := s.receipts.Save(ctx, key, data)
	if err != nil {
		return "", apperrors.NewStorageError(err, "failed to store receipt")
	}
	return url, nil
}
