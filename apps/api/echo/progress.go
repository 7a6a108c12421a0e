package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core/progress"
)

type progressApi struct {
	svc        *progress.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerProgressAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *progress.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := progressApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	pg := g.Group("/progress", jwt)

	pg.POST("/materials/:id", api.submit)
	pg.GET("/materials/:id/history", api.history)
	pg.GET("/lessons/:id/summary", api.lessonSummary)
	pg.GET("/courses/:id/summary", api.courseSummary)
	pg.GET("/statistics", api.statistics)
	pg.GET("/streak", api.streak)
}

// Handlers

func (api *progressApi) submit(ctx echo.Context) error {
	var data progress.SubmitProgress
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitProgress")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.ActorEmail = claims.Email

	res, err := api.svc.Submit(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting progress")
	}

	return ctx.JSON(http.StatusOK, res)
}

func (api *progressApi) history(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var page Pagination
	if err = page.Bind(ctx); err != nil {
		return err
	}

	entries, err := api.svc.History(ctx.Request().Context(), claims.Subject, ctx.Param("id"), page.Limit, page.Offset)
	if err != nil {
		return errors.Wrap(err, "querying progress history")
	}

	return ctx.JSON(http.StatusOK, entries)
}

func (api *progressApi) lessonSummary(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	summary, err := api.svc.LessonSummaryFor(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting lesson summary")
	}

	return ctx.JSON(http.StatusOK, summary)
}

func (api *progressApi) courseSummary(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	summary, err := api.svc.CourseSummaryFor(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course summary")
	}

	return ctx.JSON(http.StatusOK, summary)
}

func (api *progressApi) statistics(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var rng DateRange
	if err = rng.Bind(ctx); err != nil {
		return err
	}

	points, err := api.svc.Statistics(ctx.Request().Context(), claims.Subject, rng.Start, rng.End, ctx.QueryParam("granularity"))
	if err != nil {
		return errors.Wrap(err, "building statistics")
	}

	return ctx.JSON(http.StatusOK, points)
}

func (api *progressApi) streak(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	streak, err := api.svc.Streak(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting streak")
	}

	return ctx.JSON(http.StatusOK, streak)
}
