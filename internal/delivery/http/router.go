package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check and metrics
	app.Get("/health", handler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Dashboard endpoints
		api.Get("/dashboard", handler.GetDashboard)
		api.Get("/variables", handler.GetVariables)
		api.Get("/series", handler.GetSeries)
		api.Get("/outlook", handler.GetOutlook)
		api.Get("/probability", handler.GetProbability)
		api.Get("/indices", handler.GetIndices)
		api.Get("/trends", handler.GetTrends)
		api.Get("/events", handler.GetEvents)
		api.Get("/charts/:name", handler.GetChart)
		api.Get("/export/indices.xlsx", handler.ExportIndices)

		// Assistant
		api.Get("/chat", handler.GetChat)
		api.Post("/chat", handler.PostChat)

		// Classifier playground
		api.Get("/predict/defaults", handler.GetPredictDefaults)
		api.Post("/predict", handler.Predict)

		// Field reports
		api.Get("/reports", handler.GetReports)
		api.Post("/reports", handler.PostReport)

		api.Post("/admin/cache/purge", handler.PurgeCache)
	}
}

// ErrorHandler renders every error as the {"error": true, "message": ...} envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
