package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/ecolage/core"
)

const unitCtxKey = "unit"

// unitMiddleware stores the cleaned `:unit` path param in the context.
// All ledger data is scoped to that unit.
func unitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			unit := core.CleanString(ctx.Param("unit"))
			if unit == "" {
				return errHttpNotFound
			}
			ctx.Set(unitCtxKey, unit)
			return next(ctx)
		}
	}
}

func contextUnit(ctx echo.Context) string {
	unit, _ := ctx.Get(unitCtxKey).(string)
	return unit
}
