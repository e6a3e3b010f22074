package runs

import (
	"errors"

	"backend-runtracker/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/best", authMiddleware, func(c *fiber.Ctx) error {
		run, err := svc.Best(c.Context(), auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(run)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		runs, err := svc.List(c.Context(), auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(runs)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRunRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		run, err := svc.Create(c.Context(), auth.UserID(c), req)
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(verr)
		}
		if err != nil {
			return httpError(err)
		}
		if !run.Inserted {
			return c.JSON(run)
		}
		return c.Status(fiber.StatusCreated).JSON(run)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.SoftDelete(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Run moved to trash"})
	})

	r.Get("/history/trash", authMiddleware, func(c *fiber.Ctx) error {
		runs, err := svc.Trash(c.Context(), auth.UserID(c))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(runs)
	})

	r.Put("/:id/restore", authMiddleware, func(c *fiber.Ctx) error {
		run, err := svc.Restore(c.Context(), auth.UserID(c), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(run)
	})

	r.Put("/:id/post", authMiddleware, func(c *fiber.Ctx) error {
		var req PostRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		run, err := svc.Post(c.Context(), auth.UserID(c), c.Params("id"), req.Caption)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(run)
	})

	r.Delete("/:id/permanent", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.PermanentDelete(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Run permanently deleted"})
	})

	r.Delete("/", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := svc.DeleteAll(c.Context(), auth.UserID(c)); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "All runs deleted"})
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Run not found")
	case errors.Is(err, ErrNotAuthorized):
		return fiber.NewError(fiber.StatusUnauthorized, "User not authorized")
	case errors.Is(err, ErrNoBestRun):
		return fiber.NewError(fiber.StatusNotFound, "No runs found for ghost mode")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
