package cron

import (
	"context"
	"fmt"

	"github.com/rmolina-dev/libris-backend/pkg/logger"
)

type reservationExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ReservationExpiryJobParams configure the reservation expiry job.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations reservationExpirer
}

// NewReservationExpiryJob builds the job that closes lapsed reservations.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation service required")
	}
	return &reservationExpiryJob{logg: params.Logger, reservations: params.Reservations}, nil
}

type reservationExpiryJob struct {
	logg         *logger.Logger
	reservations reservationExpirer
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	closed, err := j.reservations.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": closed})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return nil
}
