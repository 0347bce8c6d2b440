package router

import (
	"github.com/YatraLedger/yatra-ledger-backend/config"
	"github.com/YatraLedger/yatra-ledger-backend/handlers"
	"github.com/YatraLedger/yatra-ledger-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies holds everything required for setting up routes.
type Dependencies struct {
	Config        *config.Config
	TripHandler   *handlers.TripHandler
	HealthHandler *handlers.HealthHandler
	Logger        *zap.SugaredLogger
}

// SetupRouter configures and returns the main Gin engine with all routes
// defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))

	// Health and metrics stay outside the versioned group.
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.PUT("/owner", deps.TripHandler.SetOwnerHandler)
		v1.PUT("/selection", deps.TripHandler.SelectTripHandler)
		v1.GET("/snapshot", deps.TripHandler.SnapshotHandler)
		v1.GET("/expenses", deps.TripHandler.ListExpensesHandler)
		v1.GET("/receipts/url", deps.TripHandler.ReceiptURLHandler)

		tripRoutes := v1.Group("/trips")
		{
			tripRoutes.GET("", deps.TripHandler.ListTripsHandler)
			tripRoutes.POST("", deps.TripHandler.CreateTripHandler)
			tripRoutes.PUT("/:id/budget", deps.TripHandler.UpdateBudgetHandler)
			tripRoutes.PUT("/:id/reminder", deps.TripHandler.SetReminderHandler)

			expenseRoutes := tripRoutes.Group("/:id/expenses")
			{
				expenseRoutes.POST("", deps.TripHandler.AddExpenseHandler)
				expenseRoutes.DELETE("/:expenseId", deps.TripHandler.DeleteExpenseHandler)
			}
		}
	}

	return r
}
