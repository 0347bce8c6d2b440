package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/YatraLedger/yatra-ledger-backend/errors"
	"github.com/YatraLedger/yatra-ledger-backend/internal/engine"
	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/services"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"github.com/gin-gonic/gin"
)

// TripHandler exposes the engine's live views and the write operations over
// HTTP. Reads come straight from the engine's in-memory state; writes go
// through the service and flow back as subscription pushes.
type TripHandler struct {
	engine  *engine.Engine
	service *services.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(eng *engine.Engine, service *services.TripService) *TripHandler {
	return &TripHandler{engine: eng, service: service}
}

// CreateTripRequest is the request body for creating a trip.
type CreateTripRequest struct {
	Name         string    `json:"name" binding:"required"`
	Destination  string    `json:"destination"`
	StartDate    time.Time `json:"startDate" binding:"required"`
	EndDate      time.Time `json:"endDate" binding:"required"`
	Budget       float64   `json:"budget"`
	Currency     string    `json:"currency"`
	GradientSeed string    `json:"gradientSeed"`
}

// TripListResponse is the response body for the trip list. Stale marks a
// list retained from before a subscription failure.
type TripListResponse struct {
	Trips   []types.Trip `json:"trips"`
	Loading bool         `json:"loading"`
	Stale   bool         `json:"stale"`
	Error   string       `json:"error,omitempty"`
}

// ExpenseListResponse is the response body for the selected trip's expenses.
type ExpenseListResponse struct {
	TripID   string          `json:"tripId"`
	Expenses []types.Expense `json:"expenses"`
	Loading  bool            `json:"loading"`
	Stale    bool            `json:"stale"`
	Error    string          `json:"error,omitempty"`
}

// SnapshotSummary carries the derived headline figures alongside the
// snapshot itself.
type SnapshotSummary struct {
	AverageDailySpend float64 `json:"averageDailySpend"`
	PeakDailySpend    float64 `json:"peakDailySpend"`
	BudgetRemaining   float64 `json:"budgetRemaining"`
}

// SnapshotResponse is the snapshot plus its summary figures.
type SnapshotResponse struct {
	types.TripSnapshot
	Summary SnapshotSummary `json:"summary"`
}

// SetOwnerRequest selects the owner whose trips the engine follows.
type SetOwnerRequest struct {
	OwnerID string `json:"ownerId"`
}

// SelectTripRequest selects the trip whose expenses the engine follows. An
// empty tripId clears the selection.
type SelectTripRequest struct {
	TripID string `json:"tripId"`
}

// UpdateBudgetRequest replaces a trip's budget.
type UpdateBudgetRequest struct {
	Budget *float64 `json:"budget" binding:"required"`
}

// SetReminderRequest sets or clears (null) a trip's reminder interval.
type SetReminderRequest struct {
	IntervalMinutes *int `json:"intervalMinutes"`
}

// ownerID resolves the owner for a write: the X-Owner-ID header when given,
// otherwise the owner the engine is subscribed for.
func (h *TripHandler) ownerID(c *gin.Context) string {
	if owner := c.GetHeader("X-Owner-ID"); owner != "" {
		return owner
	}
	return h.engine.Owner()
}

// SetOwnerHandler handles PUT /owner.
func (h *TripHandler) SetOwnerHandler(c *gin.Context) {
	var req SetOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid request", err.Error()))
		return
	}
	if err := h.engine.Start(c.Request.Context(), req.OwnerID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ownerId": req.OwnerID})
}

// ListTripsHandler handles GET /trips.
func (h *TripHandler) ListTripsHandler(c *gin.Context) {
	state := h.engine.Trips()
	resp := TripListResponse{
		Trips:   state.Trips,
		Loading: state.Loading,
		Stale:   state.Err != nil,
	}
	if state.Trips == nil {
		resp.Trips = []types.Trip{}
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// CreateTripHandler handles POST /trips.
func (h *TripHandler) CreateTripHandler(c *gin.Context) {
	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid request", err.Error()))
		return
	}

	owner := h.ownerID(c)
	if owner == "" {
		_ = c.Error(apperrors.ValidationFailed("no owner", "set an owner before creating trips"))
		return
	}

	id, err := h.service.CreateTrip(c.Request.Context(), owner, types.CreateTripParams{
		Name:         req.Name,
		Destination:  req.Destination,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Budget:       req.Budget,
		Currency:     req.Currency,
		GradientSeed: req.GradientSeed,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// SelectTripHandler handles PUT /selection.
func (h *TripHandler) SelectTripHandler(c *gin.Context) {
	var req SelectTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid request", err.Error()))
		return
	}
	if err := h.engine.SelectTrip(c.Request.Context(), req.TripID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tripId": req.TripID})
}

// SnapshotHandler handles GET /snapshot. The snapshot is unavailable until
// the first expense push for the selected trip has been applied.
func (h *TripHandler) SnapshotHandler(c *gin.Context) {
	tripID := h.engine.SelectedTripID()
	if tripID == "" {
		_ = c.Error(apperrors.NotFound("selection", "none"))
		return
	}
	snapshot, ok := h.engine.Snapshot()
	if !ok {
		_ = c.Error(apperrors.NotFound("snapshot", tripID))
		return
	}
	c.JSON(http.StatusOK, SnapshotResponse{
		TripSnapshot: snapshot,
		Summary: SnapshotSummary{
			AverageDailySpend: snapshot.AverageDailySpend(),
			PeakDailySpend:    snapshot.PeakDailySpend(),
			BudgetRemaining:   snapshot.BudgetRemaining(),
		},
	})
}

// ListExpensesHandler handles GET /expenses for the selected trip.
func (h *TripHandler) ListExpensesHandler(c *gin.Context) {
	state := h.engine.Expenses()
	resp := ExpenseListResponse{
		TripID:   state.TripID,
		Expenses: state.Expenses,
		Loading:  state.Loading,
		Stale:    state.Err != nil,
	}
	if state.Expenses == nil {
		resp.Expenses = []types.Expense{}
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateBudgetHandler handles PUT /trips/:id/budget.
func (h *TripHandler) UpdateBudgetHandler(c *gin.Context) {
	var req UpdateBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid request", err.Error()))
		return
	}
	err := h.service.UpdateTripBudget(c.Request.Context(), h.ownerID(c), c.Param("id"), *req.Budget)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "budget": *req.Budget})
}

// SetReminderHandler handles PUT /trips/:id/reminder.
func (h *TripHandler) SetReminderHandler(c *gin.Context) {
	var req SetReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid request", err.Error()))
		return
	}

	tripID := c.Param("id")
	name := h.tripName(tripID)
	if name == "" && req.IntervalMinutes != nil {
		_ = c.Error(apperrors.NotFound("trip", tripID))
		return
	}

	err := h.service.SetTripReminder(c.Request.Context(), h.ownerID(c), tripID, name, req.IntervalMinutes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": tripID, "intervalMinutes": req.IntervalMinutes})
}

// AddExpenseHandler handles POST /trips/:id/expenses. The body is either
// JSON or a multipart form carrying an optional receipt image under the
// "receipt" field.
func (h *TripHandler) AddExpenseHandler(c *gin.Context) {
	tripID := c.Param("id")

	params, receipt, err := h.parseExpense(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	id, err := h.service.AddExpense(c.Request.Context(), h.ownerID(c), tripID, params, receipt)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DeleteExpenseHandler handles DELETE /trips/:id/expenses/:expenseId.
func (h *TripHandler) DeleteExpenseHandler(c *gin.Context) {
	err := h.service.DeleteExpense(c.Request.Context(), h.ownerID(c), c.Param("id"), c.Param("expenseId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReceiptURLHandler handles GET /receipts/url?key=...
func (h *TripHandler) ReceiptURLHandler(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		_ = c.Error(apperrors.ValidationFailed("invalid request", "key query parameter is required"))
		return
	}
	url, err := h.service.ReceiptURL(c.Request.Context(), key)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// tripName finds a trip's display name in the current trip view.
func (h *TripHandler) tripName(tripID string) string {
	for _, trip := range h.engine.Trips().Trips {
		if trip.ID == tripID {
			return trip.Name
		}
	}
	return ""
}

// parseExpense reads expense parameters from a JSON body or a multipart form.
func (h *TripHandler) parseExpense(c *gin.Context) (types.CreateExpenseParams, []byte, error) {
	var params types.CreateExpenseParams

	contentType := c.ContentType()
	if contentType == "application/json" {
		if err := c.ShouldBindJSON(&params); err != nil {
			return params, nil, apperrors.ValidationFailed("invalid request", err.Error())
		}
		return params, nil, nil
	}

	if err := c.Request.ParseMultipartForm(12 << 20); err != nil {
		return params, nil, apperrors.ValidationFailed("invalid request", "expected JSON or multipart form body")
	}

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		return params, nil, apperrors.ValidationFailed("invalid expense", "amount must be a number")
	}
	params.Amount = amount
	params.Category = types.ExpenseCategory(c.PostForm("category"))
	params.Notes = c.PostForm("notes")

	if ts := c.PostForm("timestamp"); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return params, nil, apperrors.ValidationFailed("invalid expense", "timestamp must be RFC 3339")
		}
		params.Timestamp = parsed
	}

	if label := c.PostForm("locationLabel"); label != "" || c.PostForm("lat") != "" {
		loc := &types.Location{Label: label}
		if lat, err := strconv.ParseFloat(c.PostForm("lat"), 64); err == nil {
			loc.Lat = &lat
		}
		if lng, err := strconv.ParseFloat(c.PostForm("lng"), 64); err == nil {
			loc.Lng = &lng
		}
		params.Location = loc
	}

	receipt, err := h.readReceipt(c)
	if err != nil {
		return params, nil, err
	}
	return params, receipt, nil
}

// readReceipt pulls the optional receipt file out of the multipart form.
func (h *TripHandler) readReceipt(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("receipt")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, apperrors.ValidationFailed("invalid receipt", err.Error())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, apperrors.ValidationFailed("invalid receipt", err.Error())
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logger.GetLogger().Warnw("Failed to close receipt upload", "error", cerr)
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.ValidationFailed("invalid receipt", err.Error())
	}
	return data, nil
}
