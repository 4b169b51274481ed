// Package api serves the vote endpoint and tally queries over HTTP.
package api

import (
	"errors"
	"io"
	"os"

	"artvote/internal/ledger"
	"artvote/internal/vote"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = 64 * 1024

// Config for the HTTP application.
type Config struct {
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// AccessLog receives one line per request; nil means stderr.
	AccessLog io.Writer
}

type errorResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// New builds the fiber application around svc.
func New(svc *vote.Service, cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "artvote",
		BodyLimit:             maxBodySize,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	accessLog := cfg.AccessLog
	if accessLog == nil {
		accessLog = os.Stderr
	}
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${ip}:${port} ${status} - ${method} ${path} ${latency} ${error}\n",
		Output: accessLog,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"policy": svc.Policy(),
		})
	})

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &handler{svc: svc}
	app.Post("/vote", h.submitVote)
	app.Get("/votes", h.listVotes)

	return app
}

type handler struct {
	svc *vote.Service
}

func (h *handler) submitVote(c *fiber.Ctx) error {
	var req vote.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Status:  "error",
			Error:   vote.MsgInvalidRequest,
			Details: []string{"body must be a JSON object"},
		})
	}

	res, err := h.svc.Submit(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	if res.Policy == ledger.PolicyTally {
		return c.JSON(fiber.Map{
			"status":     "success",
			"message":    "vote recorded",
			"artwork_id": res.ArtworkID,
			"total":      res.Total,
		})
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "vote recorded",
		"vote":    res.Record,
		"total":   res.Total,
	})
}

func (h *handler) listVotes(c *fiber.Ctx) error {
	if artwork := c.Query("artwork_id"); artwork != "" {
		total, err := h.svc.Total(c.UserContext(), artwork)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{
			"artwork_id": artwork,
			"total":      total,
		})
	}
	totals, err := h.svc.Totals(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(totals)
}

// statusFor maps the service error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, vote.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, vote.ErrAuthentication):
		return fiber.StatusUnauthorized
	case errors.Is(err, vote.ErrConflict), errors.Is(err, vote.ErrForbidden):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	resp := errorResponse{Status: "error", Error: vote.MsgInternal}
	var verr *vote.Error
	if errors.As(err, &verr) {
		resp.Error = verr.Message
		resp.Details = verr.Problems
	}
	return c.Status(statusFor(err)).JSON(resp)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := vote.MsgInternal
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(errorResponse{Status: "error", Error: msg})
}
