// Package web provides the read-only admin HTTP API: job inspection,
// credential status and health.
package web

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/sourcepipe/sourcepipe/pkg/models"
	"github.com/sourcepipe/sourcepipe/pkg/persistence"
	"github.com/sourcepipe/sourcepipe/pkg/protocol"
)

const defaultJobListLimit = 50

type APIHandlers struct {
	persistence  persistence.Persistence
	integrations []string
	clock        protocol.Clock
	logger       *slog.Logger
}

func NewAPIHandlers(
	persist persistence.Persistence,
	integrations []string,
	clock protocol.Clock,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence:  persist,
		integrations: integrations,
		clock:        clock,
		logger:       logger.With("module", "web"),
	}
}

// NewApp builds the fiber application with all admin routes registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()

	app.Get("/health", handlers.Health)
	app.Get("/jobs", handlers.GetJobs)
	app.Get("/jobs/:id", handlers.GetJob)
	app.Get("/credentials", handlers.GetCredentials)

	return app
}

// jobSummary is a job record without its payload or configuration snapshot.
type jobSummary struct {
	ID          string           `json:"id"`
	FlowID      string           `json:"flow_id"`
	Owner       string           `json:"owner"`
	Status      models.JobStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// credentialSummary exposes presence and expiry only. Token material never
// leaves the persistence layer through this API.
type credentialSummary struct {
	Integration string `json:"integration"`
	Authorized  bool   `json:"authorized"`
	Identity    string `json:"identity,omitempty"`
	Scope       string `json:"scope,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Usable      bool   `json:"usable"`
	Refreshable bool   `json:"refreshable"`
}

func (h *APIHandlers) GetJobs(c fiber.Ctx) error {
	filter, err := parseJobFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	jobs, err := h.persistence.Jobs().List(c.Context(), *filter)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to list jobs", "error", err)

		return internalError(c, err)
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary{
			ID:          job.ID,
			FlowID:      job.FlowID,
			Owner:       job.Owner,
			Status:      job.Status,
			Error:       job.Error,
			CreatedAt:   job.CreatedAt,
			CompletedAt: job.CompletedAt,
		})
	}

	return c.JSON(fiber.Map{
		"jobs":  summaries,
		"count": len(summaries),
		"pagination": fiber.Map{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

func parseJobFilter(c fiber.Ctx) (*persistence.JobFilter, error) {
	filter := &persistence.JobFilter{
		FlowID: c.Query("flow_id"),
		Limit:  defaultJobListLimit,
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.JobStatus(statusStr)
		switch status {
		case models.JobStatusPending, models.JobStatusRunning,
			models.JobStatusCompleted, models.JobStatusFailed:
			filter.Status = status
		default:
			return nil, fmt.Errorf("unknown status %q", statusStr)
		}
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		if limit < 0 {
			return nil, fmt.Errorf("limit must not be negative")
		}

		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		if offset < 0 {
			return nil, fmt.Errorf("offset must not be negative")
		}

		filter.Offset = offset
	}

	return filter, nil
}

func (h *APIHandlers) GetJob(c fiber.Ctx) error {
	id := c.Params("id")

	job, err := h.persistence.Jobs().GetByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "job not found")
		}

		h.logger.ErrorContext(c.Context(), "Failed to load job", "job_id", id, "error", err)

		return internalError(c, err)
	}

	return c.JSON(job)
}

func (h *APIHandlers) GetCredentials(c fiber.Ctx) error {
	now := h.clock.Now()
	summaries := make([]credentialSummary, 0, len(h.integrations))

	for _, integration := range h.integrations {
		record, err := h.persistence.Credentials().Get(c.Context(), integration)
		if err != nil {
			if persistence.IsNotFound(err) {
				summaries = append(summaries, credentialSummary{Integration: integration})

				continue
			}

			h.logger.ErrorContext(c.Context(), "Failed to load credential",
				"integration", integration, "error", err)

			return internalError(c, err)
		}

		summaries = append(summaries, credentialSummary{
			Integration: integration,
			Authorized:  true,
			Identity:    record.Identity,
			Scope:       record.Scope,
			ExpiresAt:   time.Unix(record.ExpiresAt, 0).UTC().Format(time.RFC3339),
			Usable:      record.Usable(now),
			Refreshable: record.Refreshable(),
		})
	}

	return c.JSON(fiber.Map{"credentials": summaries})
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return unavailable(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
