package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/YatraLedger/yatra-ledger-backend/internal/engine"
	"github.com/YatraLedger/yatra-ledger-backend/internal/reminder"
	"github.com/YatraLedger/yatra-ledger-backend/middleware"
	"github.com/YatraLedger/yatra-ledger-backend/services"
	"github.com/YatraLedger/yatra-ledger-backend/store/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type grantingNotifier struct{}

func (grantingNotifier) RequestPermission(ctx context.Context) (bool, error) { return true, nil }
func (grantingNotifier) Notify(ctx context.Context, title, body, tag string) error {
	return nil
}

type handlerFixture struct {
	router *gin.Engine
	source *memory.Source
	engine *engine.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	source := memory.NewSource()
	scheduler := reminder.NewScheduler(memory.NewReminderStore(), grantingNotifier{}, reminder.Config{
		PollInterval: time.Hour,
		Clock:        time.Now,
	})
	eng := engine.New(source, grantingNotifier{}, scheduler)
	require.NoError(t, eng.Start(context.Background(), "user-1"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})

	service := services.NewTripService(source, nil, scheduler)
	handler := NewTripHandler(eng, service)

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.PUT("/v1/owner", handler.SetOwnerHandler)
	r.PUT("/v1/selection", handler.SelectTripHandler)
	r.GET("/v1/snapshot", handler.SnapshotHandler)
	r.GET("/v1/expenses", handler.ListExpensesHandler)
	r.GET("/v1/trips", handler.ListTripsHandler)
	r.POST("/v1/trips", handler.CreateTripHandler)
	r.PUT("/v1/trips/:id/budget", handler.UpdateBudgetHandler)
	r.PUT("/v1/trips/:id/reminder", handler.SetReminderHandler)
	r.POST("/v1/trips/:id/expenses", handler.AddExpenseHandler)
	r.DELETE("/v1/trips/:id/expenses/:expenseId", handler.DeleteExpenseHandler)

	return &handlerFixture{router: r, source: source, engine: eng}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) createTrip(t *testing.T, name string, budget float64) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/trips", gin.H{
		"name":      name,
		"startDate": "2025-07-01T00:00:00Z",
		"endDate":   "2025-07-10T00:00:00Z",
		"budget":    budget,
		"currency":  "EUR",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func (f *handlerFixture) awaitTripCount(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.engine.Trips().Trips) == n
	}, time.Second, 5*time.Millisecond)
}

func TestCreateAndListTrips(t *testing.T) {
	f := newHandlerFixture(t)

	id := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w := f.do(t, http.MethodGet, "/v1/trips", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TripListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Trips, 1)
	assert.Equal(t, id, resp.Trips[0].ID)
	assert.Equal(t, "Rome", resp.Trips[0].Name)
	assert.False(t, resp.Stale)
}

func TestCreateTrip_ValidationErrorShape(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/v1/trips", gin.H{
		"name":      "Rome",
		"startDate": "2025-07-10T00:00:00Z",
		"endDate":   "2025-07-01T00:00:00Z",
		"budget":    500,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Type)
}

func TestSnapshotLifecycle(t *testing.T) {
	f := newHandlerFixture(t)

	// No selection yet.
	w := f.do(t, http.MethodGet, "/v1/snapshot", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	tripID := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w = f.do(t, http.MethodPut, "/v1/selection", gin.H{"tripId": tripID})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/v1/trips/"+tripID+"/expenses", gin.H{
		"amount":    120.0,
		"category":  "food",
		"timestamp": "2025-07-02T12:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		snapshot, ok := f.engine.Snapshot()
		return ok && snapshot.TotalSpend == 120
	}, time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodGet, "/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 120.0, snapshot["totalSpend"])
	assert.Equal(t, 24.0, snapshot["budgetUtilization"])

	summary, ok := snapshot["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 120.0, summary["averageDailySpend"])
	assert.Equal(t, 380.0, summary["budgetRemaining"])
}

func TestUpdateBudget(t *testing.T) {
	f := newHandlerFixture(t)
	tripID := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w := f.do(t, http.MethodPut, "/v1/trips/"+tripID+"/budget", gin.H{"budget": 800.0})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		trips := f.engine.Trips().Trips
		return len(trips) == 1 && trips[0].Budget == 800
	}, time.Second, 5*time.Millisecond)
}

func TestSetReminder_UnknownTripIs404(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPut, "/v1/trips/nope/reminder", gin.H{"intervalMinutes": 60})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetReminder_EnableThenDisable(t *testing.T) {
	f := newHandlerFixture(t)
	tripID := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w := f.do(t, http.MethodPut, "/v1/trips/"+tripID+"/reminder", gin.H{"intervalMinutes": 60})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		trips := f.engine.Trips().Trips
		return len(trips) == 1 && trips[0].ReminderEnabled()
	}, time.Second, 5*time.Millisecond)

	w = f.do(t, http.MethodPut, "/v1/trips/"+tripID+"/reminder", gin.H{"intervalMinutes": nil})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		trips := f.engine.Trips().Trips
		return len(trips) == 1 && !trips[0].ReminderEnabled()
	}, time.Second, 5*time.Millisecond)
}

func TestAddExpense_MultipartForm(t *testing.T) {
	f := newHandlerFixture(t)
	tripID := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("amount", "45.5"))
	require.NoError(t, form.WriteField("category", "drinks"))
	require.NoError(t, form.WriteField("timestamp", "2025-07-03T20:00:00Z"))
	require.NoError(t, form.WriteField("notes", "rooftop bar"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/trips/"+tripID+"/expenses", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDeleteExpense(t *testing.T) {
	f := newHandlerFixture(t)
	tripID := f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w := f.do(t, http.MethodPost, "/v1/trips/"+tripID+"/expenses", gin.H{
		"amount":    10.0,
		"category":  "food",
		"timestamp": "2025-07-02T12:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	path := fmt.Sprintf("/v1/trips/%s/expenses/%s", tripID, created.ID)
	w = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestSwitchOwnerClearsView(t *testing.T) {
	f := newHandlerFixture(t)
	f.createTrip(t, "Rome", 500)
	f.awaitTripCount(t, 1)

	w := f.do(t, http.MethodPut, "/v1/owner", gin.H{"ownerId": "user-2"})
	require.Equal(t, http.StatusOK, w.Code)

	f.awaitTripCount(t, 0)
	assert.Equal(t, "user-2", f.engine.Owner())
}
