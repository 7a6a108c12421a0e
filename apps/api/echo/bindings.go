package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

var (
	errDateRequired = errors.New("required")
	errBadDate      = errors.New("must be an RFC3339 timestamp or a YYYY-MM-DD date")

	limitParam  = "limit"
	offsetParam = "offset"
	startParam  = "start"
	endParam    = "end"

	defaultHistoryLimit = 50

	dateLayouts = []string{time.RFC3339, "2006-01-02"}
)

// Pagination binds optional `limit` and `offset` query params.
type Pagination struct {
	Limit  int
	Offset int
}

func (p *Pagination) Bind(ctx echo.Context) error {
	p.Limit = defaultHistoryLimit

	if val := ctx.QueryParam(limitParam); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return core.NewValidationError(nil, core.FieldError{Field: limitParam, Error: "must be a non-negative integer"})
		}
		p.Limit = limit
	}
	if val := ctx.QueryParam(offsetParam); val != "" {
		offset, err := strconv.Atoi(val)
		if err != nil || offset < 0 {
			return core.NewValidationError(nil, core.FieldError{Field: offsetParam, Error: "must be a non-negative integer"})
		}
		p.Offset = offset
	}
	return nil
}

// DateRange binds required `start` and `end` query params.
// Values are accepted as RFC3339 timestamps or bare dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (rng *DateRange) Bind(ctx echo.Context) error {
	var flds []core.FieldError

	start, err := parseDateParam(ctx.QueryParam(startParam))
	if err != nil {
		flds = append(flds, core.FieldError{Field: startParam, Error: err.Error()})
	}
	end, err := parseDateParam(ctx.QueryParam(endParam))
	if err != nil {
		flds = append(flds, core.FieldError{Field: endParam, Error: err.Error()})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	rng.Start = start
	rng.End = end
	return nil
}

func parseDateParam(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, errDateRequired
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errBadDate
}
