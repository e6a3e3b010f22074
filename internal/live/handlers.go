package live

import (
	"errors"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/tracker"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	GhostPace float64 `json:"ghost_pace"`
}

type voiceRequest struct {
	Muted bool `json:"muted"`
}

func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(m.Snapshot(auth.UserID(c)))
	})

	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
			}
		}
		if req.GhostPace < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "ghost_pace must not be negative")
		}
		snap, err := m.Start(c.Context(), auth.UserID(c), req.GhostPace)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/ghost/best", authMiddleware, func(c *fiber.Ctx) error {
		snap, best, err := m.StartAgainstBest(c.Context(), auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"session": snap, "ghost_run": best})
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Pause(auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/resume", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Resume(auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/cancel", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Cancel(auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		run, err := m.Stop(c.Context(), auth.UserID(c))
		if errors.Is(err, tracker.ErrInvalidTransition) {
			return httpError(err)
		}
		if err != nil {
			// The run is kept and can be resubmitted through /pending/retry.
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"run":     run,
				"pending": true,
				"message": "Run saved locally, submission failed",
			})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"run": run, "pending": false})
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		fixes, err := ParseFixes(c.Body())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		snap, delivered := m.PushFixes(auth.UserID(c), fixes)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"received":  len(fixes),
			"delivered": delivered,
			"session":   snap,
		})
	})

	r.Get("/ghost", authMiddleware, func(c *fiber.Ctx) error {
		pos, ok := m.Ghost(auth.UserID(c))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "No ghost for this session")
		}
		return c.JSON(pos)
	})

	r.Get("/pending", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(m.Pending(auth.UserID(c)))
	})

	r.Post("/pending/retry", authMiddleware, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		submitted, err := m.RetryPending(c.Context(), userID)
		resp := fiber.Map{"submitted": submitted, "pending": len(m.Pending(userID))}
		if err != nil {
			resp["message"] = err.Error()
			return c.Status(fiber.StatusBadGateway).JSON(resp)
		}
		return c.JSON(resp)
	})

	r.Put("/voice", authMiddleware, func(c *fiber.Ctx) error {
		var req voiceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		m.SetMuted(auth.UserID(c), req.Muted)
		return c.JSON(fiber.Map{"muted": req.Muted})
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, tracker.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, runs.ErrNoBestRun):
		return fiber.NewError(fiber.StatusNotFound, "No runs found for ghost mode")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
