// Package importer applies bulk provisioning and assignment files through the
// same service calls the HTTP surface uses.
package importer

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	obscontext "github.com/smallbiznis/numberpool/internal/observability/context"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ColumnFullNumber      = "full_number"
	ColumnIsGolden        = "is_golden"
	ColumnSubscriberName  = "subscriber_name"
	ColumnCompanyName     = "company_name"
	ColumnGateway         = "gateway"
	ColumnGatewayUsername = "gateway_username"
	ColumnNotes           = "notes"
)

const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

var Module = fx.Module("importer",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Numbers   phonenumberdomain.Service
	Lifecycle lifecycledomain.Service
}

type Importer struct {
	log       *zap.Logger
	numbers   phonenumberdomain.Service
	lifecycle lifecycledomain.Service
	validate  *validator.Validate
}

type RowResult struct {
	Line   int    `json:"line"`
	Number string `json:"number"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Summary reports per-row outcomes. A failed row never aborts the file.
type Summary struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Rows      []RowResult `json:"rows"`
}

func (s *Summary) record(line int, number, result string, err error) {
	s.Total++
	row := RowResult{Line: line, Number: number, Result: result}
	if err != nil {
		row.Error = err.Error()
	}
	switch result {
	case ResultOK:
		s.Succeeded++
	case ResultSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
	s.Rows = append(s.Rows, row)
}

type provisionRow struct {
	FullNumber string `validate:"required,max=32"`
	IsGolden   bool
}

type assignRow struct {
	FullNumber      string `validate:"required,max=32"`
	SubscriberName  string `validate:"required,max=255"`
	CompanyName     string `validate:"max=255"`
	Gateway         string `validate:"required,max=255"`
	GatewayUsername string `validate:"max=255"`
}

type unassignRow struct {
	FullNumber string `validate:"required,max=32"`
	Notes      string `validate:"required,max=2000"`
}

var errInvalidRow = errors.New("invalid_row")

func New(p Params) *Importer {
	return &Importer{
		log:       p.Log.Named("importer"),
		numbers:   p.Numbers,
		lifecycle: p.Lifecycle,
		validate:  validator.New(),
	}
}

// Provision creates every listed number. Numbers that already exist are skipped.
func (i *Importer) Provision(ctx context.Context, rows []Row) (Summary, error) {
	var summary Summary
	if err := RequireColumns(rows, ColumnFullNumber); err != nil {
		return summary, err
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row := provisionRow{FullNumber: r.Get(ColumnFullNumber)}
		if raw := r.Get(ColumnIsGolden); raw != "" {
			golden, err := strconv.ParseBool(raw)
			if err != nil {
				summary.record(r.Line, row.FullNumber, ResultFailed, errInvalidRow)
				continue
			}
			row.IsGolden = golden
		}
		if err := i.validate.Struct(row); err != nil {
			summary.record(r.Line, row.FullNumber, ResultFailed, errInvalidRow)
			continue
		}

		_, err := i.numbers.Provision(ctx, phonenumberdomain.ProvisionRequest{
			FullNumber: row.FullNumber,
			IsGolden:   row.IsGolden,
		})
		switch {
		case err == nil:
			summary.record(r.Line, row.FullNumber, ResultOK, nil)
		case errors.Is(err, phonenumberdomain.ErrDuplicateNumber):
			summary.record(r.Line, row.FullNumber, ResultSkipped, err)
		default:
			i.logRowError(ctx, "provision", r.Line, err)
			summary.record(r.Line, row.FullNumber, ResultFailed, err)
		}
	}
	return summary, nil
}

// Assign assigns each listed number through the lifecycle engine.
func (i *Importer) Assign(ctx context.Context, rows []Row, actor string) (Summary, error) {
	var summary Summary
	if err := RequireColumns(rows, ColumnFullNumber, ColumnSubscriberName, ColumnGateway); err != nil {
		return summary, err
	}
	ctx = obscontext.WithActor(ctx, actor)

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row := assignRow{
			FullNumber:      r.Get(ColumnFullNumber),
			SubscriberName:  r.Get(ColumnSubscriberName),
			CompanyName:     r.Get(ColumnCompanyName),
			Gateway:         r.Get(ColumnGateway),
			GatewayUsername: r.Get(ColumnGatewayUsername),
		}
		if err := i.validate.Struct(row); err != nil {
			summary.record(r.Line, row.FullNumber, ResultFailed, errInvalidRow)
			continue
		}

		number, err := i.numbers.GetByNumber(ctx, row.FullNumber)
		if err != nil {
			summary.record(r.Line, row.FullNumber, ResultFailed, err)
			continue
		}
		_, err = i.lifecycle.Assign(ctx, lifecycledomain.AssignRequest{
			NumberID:        number.ID.String(),
			SubscriberName:  row.SubscriberName,
			CompanyName:     row.CompanyName,
			Gateway:         row.Gateway,
			GatewayUsername: row.GatewayUsername,
			Actor:           actor,
		})
		i.recordTransition(ctx, &summary, "assign", r.Line, row.FullNumber, err)
	}
	return summary, nil
}

// Unassign releases each listed number into cooloff.
func (i *Importer) Unassign(ctx context.Context, rows []Row, actor string) (Summary, error) {
	var summary Summary
	if err := RequireColumns(rows, ColumnFullNumber, ColumnNotes); err != nil {
		return summary, err
	}
	ctx = obscontext.WithActor(ctx, actor)

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row := unassignRow{FullNumber: r.Get(ColumnFullNumber), Notes: r.Get(ColumnNotes)}
		if err := i.validate.Struct(row); err != nil {
			summary.record(r.Line, row.FullNumber, ResultFailed, errInvalidRow)
			continue
		}

		number, err := i.numbers.GetByNumber(ctx, row.FullNumber)
		if err != nil {
			summary.record(r.Line, row.FullNumber, ResultFailed, err)
			continue
		}
		_, err = i.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{
			NumberID: number.ID.String(),
			Notes:    row.Notes,
			Actor:    actor,
		})
		i.recordTransition(ctx, &summary, "unassign", r.Line, row.FullNumber, err)
	}
	return summary, nil
}

func (i *Importer) recordTransition(ctx context.Context, summary *Summary, op string, line int, number string, err error) {
	if err == nil {
		summary.record(line, number, ResultOK, nil)
		return
	}
	if !lifecycledomain.IsExpected(err) {
		i.logRowError(ctx, op, line, err)
	}
	summary.record(line, number, ResultFailed, err)
}

func (i *Importer) logRowError(ctx context.Context, op string, line int, err error) {
	i.log.Error("import row failed",
		zap.String("op", op),
		zap.Int("line", line),
		zap.String("actor", obscontext.ActorFromContext(ctx)),
		zap.Error(err),
	)
}
