package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/travel-buddy/internal/favorites"
	"github.com/i474232898/travel-buddy/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, favs *favorites.Store, defaultUnit weather.UnitMode, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		q := weatherQuery{
			Destination: c.Query("destination"),
			Units:       c.Query("units", string(defaultUnit)),
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		unit, err := weather.ParseUnitMode(q.Units)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.Lookup(c.UserContext(), q.Destination, unit)
		if err != nil {
			if weather.IsNotFound(err) && res.Stage == weather.StageIdle {
				return fiber.NewError(fiber.StatusNotFound, "destination not found")
			}
			body := fiber.Map{
				"error":   true,
				"message": "weather lookup failed",
				"stage":   res.Stage.String(),
			}
			if res.Stage == weather.StageCurrentFetched {
				body["current"] = res.Current
				body["units"] = unitsView(res.Current.Unit)
			}
			return c.Status(fiber.StatusBadGateway).JSON(body)
		}

		return c.JSON(fiber.Map{
			"current":  res.Current,
			"forecast": res.Forecast,
			"chart":    weather.NewChart(res.Forecast),
			"units":    unitsView(res.Current.Unit),
		})
	})

	v1.Get("/favorites", func(c *fiber.Ctx) error {
		return c.JSON(listFavorites(c, favs, logger))
	})

	v1.Post("/favorites", func(c *fiber.Ctx) error {
		var req favoriteRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := favs.Add(c.UserContext(), req.Destination); err != nil {
			return storeError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(listFavorites(c, favs, logger))
	})

	v1.Delete("/favorites", func(c *fiber.Ctx) error {
		req := favoriteRequest{Destination: c.Query("destination")}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := favs.Remove(c.UserContext(), req.Destination); err != nil {
			return storeError(err)
		}
		return c.JSON(listFavorites(c, favs, logger))
	})
}

// NewErrorHandler returns the centralized JSON error handler.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError && logger != nil {
			logger.Error("HTTP error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}
}

// weatherQuery holds query parameters for the lookup endpoint.
type weatherQuery struct {
	Destination string `validate:"required"`
	Units       string `validate:"omitempty,oneof=metric imperial"`
}

// favoriteRequest identifies a favorite for add and remove.
type favoriteRequest struct {
	Destination string `json:"destination" validate:"required"`
}

func unitsView(u weather.UnitMode) fiber.Map {
	return fiber.Map{
		"mode":        u,
		"temperature": u.TemperatureSuffix(),
		"wind_speed":  u.WindSpeedSuffix(),
	}
}

// listFavorites renders the list, degrading to empty with a warning when the
// slot cannot be read.
func listFavorites(c *fiber.Ctx, favs *favorites.Store, logger *zap.Logger) fiber.Map {
	names, err := favs.List(c.UserContext())
	if err != nil {
		logger.Warn("favorites unavailable", zap.Error(err))
		return fiber.Map{
			"favorites": names,
			"warning":   "favorites could not be read",
		}
	}
	return fiber.Map{"favorites": names}
}

func storeError(err error) error {
	var ioErr *favorites.StoreIOError
	if errors.As(err, &ioErr) {
		return fiber.NewError(fiber.StatusInternalServerError, "favorites could not be saved")
	}
	return err
}
