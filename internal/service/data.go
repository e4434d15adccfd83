package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/healthos/internal/apperror"
	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

const (
	DefaultListLimit = 30
	MaxListLimit     = 100

	// DefaultDashboardDays is used when the requested range is not one of
	// DashboardRanges.
	DefaultDashboardDays = 30
	// ContextDays is how much history the chat context covers.
	ContextDays = 365
	// dashboardWorkouts caps the workouts shown on the dashboard.
	dashboardWorkouts = 20
)

// DashboardRanges are the accepted values for the dashboard "days" filter,
// besides "max" (full history).
var DashboardRanges = []int{30, 90, 180, 365, 730, 1095, 1825}

// DataService serves the read side of the local cache.
type DataService struct {
	repo   repository.QueryRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewDataService(repo repository.QueryRepository, logger *slog.Logger) *DataService {
	return &DataService{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// ListOptions normalizes paging input. A non-positive limit means the
// default and anything above MaxListLimit is capped.
func ListOptions(limit, offset int) (repository.ListOptions, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	if offset < 0 {
		return repository.ListOptions{}, apperror.ValidationFailed("offset", "offset must not be negative")
	}
	return repository.ListOptions{Limit: limit, Offset: offset}, nil
}

func (s *DataService) Cycles(ctx context.Context, limit, offset int) (*model.Page[model.CycleRow], error) {
	return page(ctx, s, model.DataCycles, limit, offset, s.repo.ListCycles)
}

func (s *DataService) Recoveries(ctx context.Context, limit, offset int) (*model.Page[model.RecoveryRow], error) {
	return page(ctx, s, model.DataRecovery, limit, offset, s.repo.ListRecoveries)
}

func (s *DataService) Sleeps(ctx context.Context, limit, offset int) (*model.Page[model.SleepRow], error) {
	return page(ctx, s, model.DataSleep, limit, offset, s.repo.ListSleeps)
}

func (s *DataService) Workouts(ctx context.Context, limit, offset int) (*model.Page[model.WorkoutRow], error) {
	return page(ctx, s, model.DataWorkouts, limit, offset, s.repo.ListWorkouts)
}

func page[T any](
	ctx context.Context,
	s *DataService,
	dt model.DataType,
	limit, offset int,
	list func(context.Context, repository.ListOptions) ([]T, error),
) (*model.Page[T], error) {
	opts, err := ListOptions(limit, offset)
	if err != nil {
		return nil, err
	}
	rows, err := list(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/data: listing %s: %w", dt, err)
	}
	total, err := s.repo.CountRecords(ctx, dt)
	if err != nil {
		return nil, fmt.Errorf("service/data: counting %s: %w", dt, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return &model.Page[T]{Data: rows, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// DashboardDays maps the raw "days" filter to a day count. "max" returns 0,
// meaning the full history. Anything else that is not one of DashboardRanges,
// including an empty value, falls back to DefaultDashboardDays. Callers pass
// "max" when the parameter is absent.
func DashboardDays(raw string) int {
	if raw == "max" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultDashboardDays
	}
	for _, d := range DashboardRanges {
		if n == d {
			return n
		}
	}
	return DefaultDashboardDays
}

// Dashboard returns the latest records plus chart series covering the last
// days days. days <= 0 covers the full history.
func (s *DataService) Dashboard(ctx context.Context, days int) (*model.Dashboard, error) {
	var (
		d   model.Dashboard
		err error
	)
	if d.LatestRecovery, err = s.repo.LatestRecovery(ctx); err != nil {
		return nil, fmt.Errorf("service/data: latest recovery: %w", err)
	}
	if d.LatestCycle, err = s.repo.LatestCycle(ctx); err != nil {
		return nil, fmt.Errorf("service/data: latest cycle: %w", err)
	}
	if d.LatestSleep, err = s.repo.LatestSleep(ctx); err != nil {
		return nil, fmt.Errorf("service/data: latest sleep: %w", err)
	}

	series, err := s.repo.Series(ctx, s.since(days), dashboardWorkouts)
	if err != nil {
		return nil, fmt.Errorf("service/data: dashboard series: %w", err)
	}
	d.Series = *series
	return &d, nil
}

// Context returns the profile, body measurements and a year of series for
// the chat assistant.
func (s *DataService) Context(ctx context.Context) (*model.HealthContext, error) {
	var (
		hc  model.HealthContext
		err error
	)
	if hc.Profile, err = s.repo.GetProfile(ctx); err != nil {
		return nil, fmt.Errorf("service/data: profile: %w", err)
	}
	if hc.BodyMeasurements, err = s.repo.GetBodyMeasurements(ctx); err != nil {
		return nil, fmt.Errorf("service/data: body measurements: %w", err)
	}
	series, err := s.repo.Series(ctx, s.since(ContextDays), -1)
	if err != nil {
		return nil, fmt.Errorf("service/data: context series: %w", err)
	}
	hc.Series = *series
	return &hc, nil
}

// Profile returns the cached profile and body measurements.
func (s *DataService) Profile(ctx context.Context) (*model.ProfileRow, *model.BodyMeasurementsRow, error) {
	p, err := s.repo.GetProfile(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("service/data: profile: %w", err)
	}
	b, err := s.repo.GetBodyMeasurements(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("service/data: body measurements: %w", err)
	}
	return p, b, nil
}

func (s *DataService) since(days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := s.now().AddDate(0, 0, -days)
	return &t
}
