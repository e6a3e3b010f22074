package profile

import (
	"errors"

	"backend-runtracker/internal/auth"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		p, err := svc.Get(c.Context(), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})

	r.Put("/", authMiddleware, func(c *fiber.Ctx) error {
		var req UpdateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		p, err := svc.Update(c.Context(), auth.UserID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(p)
	})

	r.Get("/shoes", authMiddleware, func(c *fiber.Ctx) error {
		shoes, err := svc.Shoes(c.Context(), auth.UserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(shoes)
	})

	r.Post("/shoes", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateShoeRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		shoe, err := svc.AddShoe(c.Context(), auth.UserID(c), req)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(shoe)
	})

	r.Put("/shoes/:id/activate", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.ActivateShoe(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Shoe activated"})
	})

	r.Delete("/shoes/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeleteShoe(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return httpError(err)
		}
		return c.JSON(fiber.Map{"message": "Shoe removed"})
	})
}

func httpError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrShoeNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Shoe not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
