package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tuition"
)

var (
	nowFunc = time.Now // mockable

	errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")
)

type (
	generateResponse struct {
		Created int `json:"created"`
	}

	dischargeResponse struct {
		ReceiptID string `json:"receipt_id"`
	}
)

type tuitionApi struct {
	svc      *tuition.Service
	validate *core.Validator
}

func registerTuitionAPI(g *echo.Group, svc *tuition.Service, v *core.Validator) {
	api := tuitionApi{svc: svc, validate: v}

	ig := g.Group("/units/:unit/installments", unitMiddleware())
	ig.GET("", api.query)
	ig.GET("/summary", api.summary)
	ig.POST("/generate", api.generate)
	ig.POST("/events", api.createEventCharge)
	ig.POST("/discharge", api.discharge)

	// detail endpoints
	ig.GET("/:id", api.retrieve)
	ig.GET("/:id/due", api.quoteDue)
	ig.POST("/:id/cancel", api.cancel)
	ig.DELETE("/:id", api.destroy)
}

// Handlers

func (api *tuitionApi) generate(ctx echo.Context) error {
	var data tuition.GenerateRequest
	if err := bindPayload(ctx, &data); err != nil {
		return err
	}

	n, err := api.svc.Generate(ctx.Request().Context(), contextUnit(ctx), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, generateResponse{Created: n})
}

func (api *tuitionApi) createEventCharge(ctx echo.Context) error {
	var data eventChargeRequest
	if err := bind(ctx, api.validate, &data); err != nil {
		return err
	}

	inst, err := api.svc.CreateEventCharge(ctx.Request().Context(), contextUnit(ctx), tuition.NewEventCharge{
		StudentID:      data.StudentID,
		Description:    data.Description,
		Value:          data.Value,
		DueDate:        parseDate(data.DueDate, time.Time{}),
		DocumentNumber: data.DocumentNumber,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, inst)
}

func (api *tuitionApi) discharge(ctx echo.Context) error {
	var data dischargeRequest
	if err := bind(ctx, api.validate, &data); err != nil {
		return err
	}

	receiptID, err := api.svc.Discharge(ctx.Request().Context(), contextUnit(ctx), tuition.DischargeRequest{
		InstallmentID:  data.InstallmentID,
		DocumentNumber: data.DocumentNumber,
		PaymentDate:    parseDate(data.PaymentDate, time.Time{}),
		Amounts:        data.Amounts,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, dischargeResponse{ReceiptID: receiptID})
}

func (api *tuitionApi) query(ctx echo.Context) error {
	var filter tuition.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}

	rows, err := api.svc.Query(ctx.Request().Context(), contextUnit(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *tuitionApi) summary(ctx echo.Context) error {
	var filter tuition.QueryFilter
	if err := bindQuery(ctx, &filter); err != nil {
		return err
	}

	sum, err := api.svc.Summarize(ctx.Request().Context(), contextUnit(ctx), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *tuitionApi) retrieve(ctx echo.Context) error {
	inst, err := api.svc.Get(ctx.Request().Context(), contextUnit(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *tuitionApi) quoteDue(ctx echo.Context) error {
	var q dueQuery
	if err := bindQuery(ctx, &q); err != nil {
		return err
	}
	if err := api.validate.Struct(q); err != nil {
		return err
	}

	due, err := api.svc.QuoteDue(ctx.Request().Context(), contextUnit(ctx), ctx.Param("id"), parseDate(q.AsOf, nowFunc()))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, due)
}

func (api *tuitionApi) cancel(ctx echo.Context) error {
	inst, err := api.svc.Cancel(ctx.Request().Context(), contextUnit(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inst)
}

func (api *tuitionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), contextUnit(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
