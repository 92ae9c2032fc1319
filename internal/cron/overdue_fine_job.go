package cron

import (
	"context"
	"fmt"

	"github.com/rmolina-dev/libris-backend/pkg/db/models"
	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

type fineSweeper interface {
	ComputeOverdueFines(ctx context.Context) ([]models.Fine, error)
}

// OverdueFineJobParams configure the fine assessment job.
type OverdueFineJobParams struct {
	Logger *logger.Logger
	Fines  fineSweeper
}

// NewOverdueFineJob builds the job that assesses fines for overdue loans.
func NewOverdueFineJob(params OverdueFineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Fines == nil {
		return nil, fmt.Errorf("fine service required")
	}
	return &overdueFineJob{logg: params.Logger, fines: params.Fines}, nil
}

type overdueFineJob struct {
	logg  *logger.Logger
	fines fineSweeper
}

func (j *overdueFineJob) Name() string { return "overdue-fines" }

func (j *overdueFineJob) Run(ctx context.Context) error {
	assessed, err := j.fines.ComputeOverdueFines(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": len(assessed)})
	j.logg.Info(logCtx, "overdue fine sweep complete")
	if err != nil {
		return fmt.Errorf("compute overdue fines: %w", err)
	}
	return nil
}
