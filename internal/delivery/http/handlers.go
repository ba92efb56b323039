package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gonum.org/v1/plot"

	"github.com/sarida/backend/internal/assets"
	"github.com/sarida/backend/internal/climate"
	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/render"
	"github.com/sarida/backend/internal/service"
)

// SessionCookie carries the chat session id.
const SessionCookie = "sarida_session"

const (
	defaultReportLimit = 20
	maxReportLimit     = 500
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// User-facing messages
const (
	msgChatDisabled     = "Configura GEMINI_API_KEY para habilitar el chatbot."
	msgModelUnavailable = "No se pudo cargar el modelo de sequía. El playground no está disponible."
	msgEmptyReport      = "El mensaje del reporte no puede estar vacío."
	msgEmptyQuestion    = "Escribe una pregunta para el asistente."
)

// Handler contains all HTTP handlers
type Handler struct {
	dashboardSvc  *service.DashboardService
	playgroundSvc *service.PlaygroundService
	chatSvc       *service.ChatService
	reportSvc     *service.ReportService
	repo          service.DataRepository
	logger        *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(
	dashboardSvc *service.DashboardService,
	playgroundSvc *service.PlaygroundService,
	chatSvc *service.ChatService,
	reportSvc *service.ReportService,
	repo service.DataRepository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		dashboardSvc:  dashboardSvc,
		playgroundSvc: playgroundSvc,
		chatSvc:       chatSvc,
		reportSvc:     reportSvc,
		repo:          repo,
		logger:        logger,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	database := "ok"
	if err := h.repo.Health(c.Context()); err != nil {
		database = "unavailable"
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"service":    "sarida-backend",
		"version":    "1.0.0",
		"database":   database,
		"chat":       h.chatSvc.Enabled(),
		"classifier": h.playgroundSvc.Available(),
	})
}

// GetDashboard returns every dashboard section. Sections fail independently.
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	data := h.dashboardSvc.GetDashboardData(c.Context())
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// GetVariables returns the numeric dataset columns and year range
func (h *Handler) GetVariables(c *fiber.Ctx) error {
	summary, err := h.dashboardSvc.Variables(c.Context())
	return h.section(c, summary, err)
}

// GetSeries returns the monthly series of one dataset variable
func (h *Handler) GetSeries(c *fiber.Ctx) error {
	variable := c.Query("var", "tp")
	from, to := c.QueryInt("from", 0), c.QueryInt("to", 0)
	if from > 0 && to > 0 && from > to {
		return fiber.NewError(fiber.StatusBadRequest, "El año inicial debe ser menor o igual al año final.")
	}

	series, err := h.dashboardSvc.Series(c.Context(), variable, from, to)
	if errors.Is(err, climate.ErrUnknownVariable) {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("La variable '%s' no existe en el dataset.", variable))
	}
	return h.section(c, series, err)
}

// GetOutlook returns the last twelve months of precipitation and the projection
func (h *Handler) GetOutlook(c *fiber.Ctx) error {
	outlook, err := h.dashboardSvc.Outlook(c.Context())
	return h.section(c, outlook, err)
}

// GetProbability returns the monthly drought probability
func (h *Handler) GetProbability(c *fiber.Ctx) error {
	probs, err := h.dashboardSvc.Probability(c.Context())
	return h.section(c, probs, err)
}

// GetIndices returns the joined SPI/SPEI table
func (h *Handler) GetIndices(c *fiber.Ctx) error {
	a, err := h.dashboardSvc.Analysis(c.Context())
	return h.section(c, a.Rows, err)
}

// GetTrends returns the Mann-Kendall rows and the SPEI_12 trend line
func (h *Handler) GetTrends(c *fiber.Ctx) error {
	a, err := h.dashboardSvc.Analysis(c.Context())
	return h.section(c, fiber.Map{
		"trends":     a.Trends,
		"trend_of":   a.TrendOf,
		"trend_line": a.TrendLine,
	}, err)
}

// GetEvents returns the historical events catalogue
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	events := h.dashboardSvc.Events()
	return c.JSON(fiber.Map{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

// GetChart renders one dashboard chart as PNG
func (h *Handler) GetChart(c *fiber.Ctx) error {
	chart, err := render.ParseChart(trimExt(c.Params("name")))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Gráfica desconocida.")
	}

	p, err := h.buildChart(c.Context(), chart)
	if err != nil {
		return h.chartError(err)
	}

	var buf bytes.Buffer
	if err := render.WritePNG(&buf, p); err != nil {
		h.logger.Error("chart encoding failed", "chart", chart, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar la gráfica.")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

func (h *Handler) buildChart(ctx context.Context, chart render.Chart) (*plot.Plot, error) {
	switch chart {
	case render.ChartPrecipitation:
		obs, err := h.dashboardSvc.Converted(ctx)
		if err != nil {
			return nil, err
		}
		return render.PrecipitationChart(obs)
	case render.ChartProbability:
		probs, err := h.dashboardSvc.Probability(ctx)
		if err != nil {
			return nil, err
		}
		return render.ProbabilityChart(probs)
	}

	a, err := h.dashboardSvc.Analysis(ctx)
	if err != nil {
		return nil, err
	}
	switch chart {
	case render.ChartSPI:
		return render.IndexChart(a, domain.SPI, nil)
	case render.ChartSPEI:
		return render.IndexChart(a, domain.SPEI, nil)
	default:
		return render.SPEI12Chart(a, h.dashboardSvc.Events())
	}
}

// ExportIndices returns the index table and trend rows as an XLSX workbook
func (h *Handler) ExportIndices(c *fiber.Ctx) error {
	a, err := h.dashboardSvc.Analysis(c.Context())
	if err != nil {
		return h.chartError(err)
	}
	var buf bytes.Buffer
	if err := render.WorkbookXLSX(&buf, a); err != nil {
		h.logger.Error("workbook export failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el archivo Excel.")
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="indices_sequia_riohacha.xlsx"`)
	return c.Send(buf.Bytes())
}

type chatRequest struct {
	Message   string `json:"message"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
	Variable  string `json:"variable"`
}

// PostChat sends a question to the assistant within the caller's session
func (h *Handler) PostChat(c *fiber.Ctx) error {
	if !h.chatSvc.Enabled() {
		return unavailable(c, msgChatDisabled)
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	cctx := domain.ChatContext{StartYear: req.StartYear, EndYear: req.EndYear, Variable: req.Variable}
	if p, err := h.dashboardSvc.LatestProbability(c.Context()); err == nil {
		cctx.Probability = p
	}

	session, reply, err := h.chatSvc.Ask(c.Context(), c.Cookies(SessionCookie), req.Message, cctx)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return fiber.NewError(fiber.StatusBadRequest, msgEmptyQuestion)
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to process chat message")
	}

	setSessionCookie(c, session.ID)
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"session_id": session.ID,
			"reply":      reply,
			"history":    session.History(),
		},
	})
}

// GetChat returns the caller's chat history, starting a session when needed
func (h *Handler) GetChat(c *fiber.Ctx) error {
	session, err := h.chatSvc.Session(c.Cookies(SessionCookie))
	if errors.Is(err, service.ErrChatDisabled) {
		return unavailable(c, msgChatDisabled)
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load chat session")
	}

	setSessionCookie(c, session.ID)
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"session_id": session.ID,
			"history":    session.History(),
		},
	})
}

// Predict runs the drought classifier on the submitted features
func (h *Handler) Predict(c *fiber.Ctx) error {
	var req domain.PredictionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	prediction, err := h.playgroundSvc.Predict(c.Context(), req)
	switch {
	case errors.Is(err, service.ErrModelUnavailable):
		return unavailable(c, msgModelUnavailable)
	case errors.Is(err, service.ErrInvalidFeatures):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("Ocurrió un error al generar la predicción: %v", err))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    prediction,
		"model":   h.playgroundSvc.Model().Kind.String(),
	})
}

// GetPredictDefaults returns the playground form defaults
func (h *Handler) GetPredictDefaults(c *fiber.Ctx) error {
	defaults, err := h.dashboardSvc.Defaults(c.Context())
	return h.section(c, defaults, err)
}

type reportRequest struct {
	Name         string `json:"name"`
	Municipality string `json:"municipality"`
	Message      string `json:"message"`
}

// PostReport appends a field report to the report log
func (h *Handler) PostReport(c *fiber.Ctx) error {
	var req reportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	report, err := h.reportSvc.Submit(c.Context(), req.Name, req.Municipality, req.Message)
	if errors.Is(err, service.ErrEmptyReport) {
		return fiber.NewError(fiber.StatusBadRequest, msgEmptyReport)
	}
	if err != nil {
		h.logger.Error("report submission failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to save report")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

// GetReports returns the most recent field reports
func (h *Handler) GetReports(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultReportLimit)
	if limit < 1 || limit > maxReportLimit {
		limit = defaultReportLimit
	}

	reports, err := h.reportSvc.Recent(limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to read reports")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    reports,
		"count":   len(reports),
	})
}

// PurgeCache drops every memoised input so the next request reloads the files
func (h *Handler) PurgeCache(c *fiber.Ctx) error {
	h.dashboardSvc.Purge()
	return c.JSON(fiber.Map{"success": true})
}

// section writes data, or maps err onto the dashboard's degradation rules:
// schema problems halt the section with 422, missing optional files
// degrade it with an informational message.
func (h *Handler) section(c *fiber.Ctx, data any, err error) error {
	if err == nil {
		return c.JSON(fiber.Map{
			"success":   true,
			"available": true,
			"data":      data,
		})
	}

	var colErr *climate.ColumnError
	switch {
	case errors.As(err, &colErr), errors.Is(err, climate.ErrNoMonthlyData):
		h.logger.Warn("section halted", "path", c.Path(), "error", err)
		return fiber.NewError(fiber.StatusUnprocessableEntity, service.SectionMessage(err))
	case errors.Is(err, assets.ErrAssetUnavailable):
		h.logger.Info("section unavailable", "path", c.Path(), "error", err)
		return unavailable(c, service.SectionMessage(err))
	default:
		h.logger.Error("section failed", "path", c.Path(), "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, service.SectionMessage(err))
	}
}

func (h *Handler) chartError(err error) error {
	var colErr *climate.ColumnError
	switch {
	case errors.As(err, &colErr), errors.Is(err, climate.ErrNoMonthlyData):
		return fiber.NewError(fiber.StatusUnprocessableEntity, service.SectionMessage(err))
	case errors.Is(err, assets.ErrAssetUnavailable), errors.Is(err, render.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, service.SectionMessage(err))
	default:
		h.logger.Error("chart failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar la gráfica.")
	}
}

func unavailable(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"available": false,
		"message":   message,
	})
}

func setSessionCookie(c *fiber.Ctx, id string) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// trimExt accepts both /charts/spi and /charts/spi.png.
func trimExt(name string) string {
	return strings.TrimSuffix(name, ".png")
}
