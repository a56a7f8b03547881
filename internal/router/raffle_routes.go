// Raffle API routes
package router

import (
	"raffle-backend/internal/handlers"
	"raffle-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRaffleRoutes mounts the public and admin raffle API
func SetupRaffleRoutes(r *gin.Engine, h Handlers, localhostOnly *middleware.LocalhostOnly, adminAuth *middleware.AdminAuthMiddleware) {
	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheckHandler)
		api.GET("/ready", handlers.ReadinessHandler(h.Readiness...))

		// ============ Raffle ============
		raffleGroup := api.Group("/raffle")
		{
			raffleGroup.GET("", h.Raffle.GetRaffleHandler)
			raffleGroup.GET("/players", h.Raffle.ListPlayersHandler)
			raffleGroup.GET("/players/:index", h.Raffle.GetPlayerHandler)
			raffleGroup.POST("/enter", h.Raffle.EnterRaffleHandler)

			// checkUpkeep / performUpkeep; perform is public like the keeper entry point
			raffleGroup.GET("/upkeep", h.Raffle.CheckUpkeepHandler)
			raffleGroup.POST("/upkeep", h.Raffle.PerformUpkeepHandler)

			// history (503 without a database)
			raffleGroup.GET("/winners", h.Raffle.ListWinnersHandler)
			raffleGroup.GET("/rounds/:round/entries", h.Raffle.ListRoundEntriesHandler)
			raffleGroup.GET("/requests/:id", h.Raffle.GetRandomnessRequestHandler)
		}

		// ============ Ledger ============
		api.GET("/ledger/:address", h.Raffle.GetLedgerBalanceHandler)

		// ============ Admin ============
		admin := api.Group("/admin")
		admin.Use(localhostOnly.Restrict())
		{
			admin.POST("/login", h.AdminAuth.AdminLoginHandler)
			admin.POST("/totp/setup", h.AdminAuth.GenerateTOTPSecretHandler)

			secured := admin.Group("")
			secured.Use(adminAuth.RequireAdminAuth())
			{
				secured.GET("/vrf/pending", h.Admin.ListPendingRequestsHandler)
				secured.POST("/vrf/fulfill", h.Admin.FulfillHandler)
				secured.POST("/ledger/credit", h.Admin.CreditHandler)
			}
		}
	}
}
