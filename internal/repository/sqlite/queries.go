package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

var _ repository.QueryRepository = (*DB)(nil)

const (
	defaultListLimit = 30
	maxListLimit     = 100
)

// listQuery runs query and scans every row with scan.
// The rows are fully drained and closed before returning.
func listQuery[T any](ctx context.Context, db *DB, what, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s: %w", what, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", what, err)
	}
	return out, nil
}

// getOne returns (nil, nil) when the query has no row.
func getOne[T any](ctx context.Context, db *DB, what, query string, scan func(scanner) (T, error), args ...any) (*T, error) {
	v, err := scan(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting %s: %w", what, err)
	}
	return &v, nil
}

func clamp(opts repository.ListOptions) (int, int) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// sinceArg turns an optional cutoff into a start_time comparison value.
// Upstream timestamps are UTC ISO-8601, so string comparison orders them.
func sinceArg(since *time.Time) string {
	if since == nil {
		return ""
	}
	return since.UTC().Format("2006-01-02T15:04:05.000Z")
}

const cycleColumns = `id, start_time, end_time, timezone_offset, score_strain, score_kilojoule,
	score_average_heart_rate, score_max_heart_rate, raw_json`

func scanCycle(s scanner) (model.CycleRow, error) {
	var c model.CycleRow
	err := s.Scan(&c.ID, &c.StartTime, &c.EndTime, &c.TimezoneOffset, &c.ScoreStrain, &c.ScoreKilojoule,
		&c.ScoreAverageHeartRate, &c.ScoreMaxHeartRate, &c.RawJSON)
	return c, err
}

const recoveryColumns = `r.cycle_id, r.sleep_id, r.user_calibrating, r.recovery_score, r.resting_heart_rate,
	r.hrv_rmssd_milli, r.spo2_percentage, r.skin_temp_celsius, c.start_time, r.raw_json`

func scanRecovery(s scanner) (model.RecoveryRow, error) {
	var (
		r       model.RecoveryRow
		sleepID sql.NullString
	)
	err := s.Scan(&r.CycleID, &sleepID, &r.UserCalibrating, &r.RecoveryScore, &r.RestingHeartRate,
		&r.HrvRmssdMilli, &r.Spo2Percentage, &r.SkinTempCelsius, &r.CycleStart, &r.RawJSON)
	r.SleepID = sleepID.String
	return r, err
}

const sleepColumns = `id, nap,
	score_stage_summary_total_light_sleep_time_milli,
	score_stage_summary_total_slow_wave_sleep_time_milli,
	score_stage_summary_total_rem_sleep_time_milli,
	score_stage_summary_total_awake_time_milli,
	score_stage_summary_total_in_bed_time_milli,
	score_stage_summary_total_no_data_time_milli,
	score_sleep_needed_baseline_milli,
	score_sleep_needed_need_from_sleep_debt_milli,
	score_sleep_needed_need_from_recent_strain_milli,
	score_sleep_needed_need_from_recent_nap_milli,
	score_sleep_efficiency_percentage,
	score_sleep_performance_percentage,
	score_respiratory_rate,
	start_time, end_time, timezone_offset, raw_json`

func scanSleep(s scanner) (model.SleepRow, error) {
	var r model.SleepRow
	err := s.Scan(&r.ID, &r.Nap,
		&r.LightSleepMilli, &r.SlowWaveSleepMilli, &r.RemSleepMilli, &r.AwakeMilli, &r.InBedMilli, &r.NoDataMilli,
		&r.NeededBaselineMilli, &r.NeededSleepDebtMilli, &r.NeededRecentStrainMilli, &r.NeededRecentNapMilli,
		&r.SleepEfficiencyPercentage, &r.SleepPerformancePercentage, &r.RespiratoryRate,
		&r.StartTime, &r.EndTime, &r.TimezoneOffset, &r.RawJSON)
	return r, err
}

const workoutColumns = `id, sport_id, sport_name, start_time, end_time, timezone_offset,
	score_strain, score_average_heart_rate, score_max_heart_rate, score_kilojoule,
	score_distance_meter, score_altitude_gain_meter, score_altitude_change_meter,
	score_zone_durations, raw_json`

func scanWorkout(s scanner) (model.WorkoutRow, error) {
	var w model.WorkoutRow
	err := s.Scan(&w.ID, &w.SportID, &w.SportName, &w.StartTime, &w.EndTime, &w.TimezoneOffset,
		&w.ScoreStrain, &w.ScoreAverageHeartRate, &w.ScoreMaxHeartRate, &w.ScoreKilojoule,
		&w.ScoreDistanceMeter, &w.ScoreAltitudeGainMeter, &w.ScoreAltitudeChangeMeter,
		&w.ScoreZoneDurations, &w.RawJSON)
	return w, err
}

func (db *DB) ListCycles(ctx context.Context, opts repository.ListOptions) ([]model.CycleRow, error) {
	limit, offset := clamp(opts)
	return listQuery(ctx, db, "cycles",
		`SELECT `+cycleColumns+` FROM cycles ORDER BY start_time DESC LIMIT ? OFFSET ?`,
		scanCycle, limit, offset)
}

func (db *DB) ListRecoveries(ctx context.Context, opts repository.ListOptions) ([]model.RecoveryRow, error) {
	limit, offset := clamp(opts)
	return listQuery(ctx, db, "recoveries",
		`SELECT `+recoveryColumns+` FROM recovery r
		 LEFT JOIN cycles c ON r.cycle_id = c.id
		 ORDER BY c.start_time DESC LIMIT ? OFFSET ?`,
		scanRecovery, limit, offset)
}

// ListSleeps excludes naps.
func (db *DB) ListSleeps(ctx context.Context, opts repository.ListOptions) ([]model.SleepRow, error) {
	limit, offset := clamp(opts)
	return listQuery(ctx, db, "sleeps",
		`SELECT `+sleepColumns+` FROM sleep WHERE nap = 0 ORDER BY start_time DESC LIMIT ? OFFSET ?`,
		scanSleep, limit, offset)
}

func (db *DB) ListWorkouts(ctx context.Context, opts repository.ListOptions) ([]model.WorkoutRow, error) {
	limit, offset := clamp(opts)
	return listQuery(ctx, db, "workouts",
		`SELECT `+workoutColumns+` FROM workouts ORDER BY start_time DESC LIMIT ? OFFSET ?`,
		scanWorkout, limit, offset)
}

// CountRecords counts every row of the type's table, naps included.
func (db *DB) CountRecords(ctx context.Context, dt model.DataType) (int, error) {
	table, err := tableFor(dt)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting %s: %w", table, err)
	}
	return n, nil
}

func (db *DB) GetProfile(ctx context.Context) (*model.ProfileRow, error) {
	return getOne(ctx, db, "profile",
		`SELECT user_id, email, first_name, last_name, updated_at FROM profile LIMIT 1`,
		func(s scanner) (model.ProfileRow, error) {
			var (
				p                  model.ProfileRow
				email, first, last sql.NullString
				updatedAt          string
			)
			if err := s.Scan(&p.UserID, &email, &first, &last, &updatedAt); err != nil {
				return p, err
			}
			p.Email, p.FirstName, p.LastName = email.String, first.String, last.String
			t, err := parseTimestamp(updatedAt)
			p.UpdatedAt = t
			return p, err
		})
}

func (db *DB) GetBodyMeasurements(ctx context.Context) (*model.BodyMeasurementsRow, error) {
	return getOne(ctx, db, "body measurements",
		`SELECT height_meter, weight_kilogram, max_heart_rate, updated_at
		 FROM body_measurements ORDER BY id DESC LIMIT 1`,
		func(s scanner) (model.BodyMeasurementsRow, error) {
			var (
				b         model.BodyMeasurementsRow
				updatedAt string
			)
			if err := s.Scan(&b.HeightMeter, &b.WeightKilogram, &b.MaxHeartRate, &updatedAt); err != nil {
				return b, err
			}
			t, err := parseTimestamp(updatedAt)
			b.UpdatedAt = t
			return b, err
		})
}

func (db *DB) LatestRecovery(ctx context.Context) (*model.RecoveryRow, error) {
	return getOne(ctx, db, "latest recovery",
		`SELECT `+recoveryColumns+` FROM recovery r
		 LEFT JOIN cycles c ON r.cycle_id = c.id
		 ORDER BY c.start_time DESC LIMIT 1`,
		scanRecovery)
}

func (db *DB) LatestCycle(ctx context.Context) (*model.CycleRow, error) {
	return getOne(ctx, db, "latest cycle",
		`SELECT `+cycleColumns+` FROM cycles ORDER BY start_time DESC LIMIT 1`,
		scanCycle)
}

func (db *DB) LatestSleep(ctx context.Context) (*model.SleepRow, error) {
	return getOne(ctx, db, "latest sleep",
		`SELECT `+sleepColumns+` FROM sleep WHERE nap = 0 ORDER BY start_time DESC LIMIT 1`,
		scanSleep)
}

// Series returns the chart/context series since the cutoff.
// Workouts are the most recent workoutLimit entries (0 = all), oldest first.
func (db *DB) Series(ctx context.Context, since *time.Time, workoutLimit int) (*model.Series, error) {
	cutoff := sinceArg(since)
	var (
		s   model.Series
		err error
	)

	s.Recovery, err = listQuery(ctx, db, "recovery series",
		`SELECT c.start_time, r.recovery_score, r.hrv_rmssd_milli, r.resting_heart_rate,
		        r.spo2_percentage, r.skin_temp_celsius
		 FROM recovery r LEFT JOIN cycles c ON r.cycle_id = c.id
		 WHERE (? = '' OR c.start_time >= ?)
		 ORDER BY c.start_time ASC`,
		func(sc scanner) (model.RecoveryPoint, error) {
			var p model.RecoveryPoint
			err := sc.Scan(&p.StartTime, &p.RecoveryScore, &p.HrvRmssdMilli, &p.RestingHeartRate,
				&p.Spo2Percentage, &p.SkinTempCelsius)
			return p, err
		}, cutoff, cutoff)
	if err != nil {
		return nil, err
	}

	s.Cycles, err = listQuery(ctx, db, "cycle series",
		`SELECT start_time, score_strain, score_kilojoule, score_average_heart_rate
		 FROM cycles WHERE (? = '' OR start_time >= ?)
		 ORDER BY start_time ASC`,
		func(sc scanner) (model.CyclePoint, error) {
			var p model.CyclePoint
			err := sc.Scan(&p.StartTime, &p.Strain, &p.Kilojoule, &p.AverageHeartRate)
			return p, err
		}, cutoff, cutoff)
	if err != nil {
		return nil, err
	}

	s.Sleep, err = listQuery(ctx, db, "sleep series",
		`SELECT start_time,
		        score_stage_summary_total_light_sleep_time_milli,
		        score_stage_summary_total_slow_wave_sleep_time_milli,
		        score_stage_summary_total_rem_sleep_time_milli,
		        score_stage_summary_total_awake_time_milli,
		        score_sleep_performance_percentage,
		        score_sleep_efficiency_percentage,
		        score_respiratory_rate
		 FROM sleep WHERE nap = 0 AND (? = '' OR start_time >= ?)
		 ORDER BY start_time ASC`,
		func(sc scanner) (model.SleepPoint, error) {
			var p model.SleepPoint
			err := sc.Scan(&p.StartTime, &p.Light, &p.Deep, &p.Rem, &p.Awake,
				&p.Performance, &p.Efficiency, &p.RespiratoryRate)
			return p, err
		}, cutoff, cutoff)
	if err != nil {
		return nil, err
	}

	limit := workoutLimit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	s.Workouts, err = listQuery(ctx, db, "workout series",
		`SELECT sport_name, score_strain, score_kilojoule, score_average_heart_rate,
		        score_max_heart_rate, score_distance_meter, start_time, end_time
		 FROM (
		     SELECT * FROM workouts WHERE (? = '' OR start_time >= ?)
		     ORDER BY start_time DESC LIMIT ?
		 ) ORDER BY start_time ASC`,
		func(sc scanner) (model.WorkoutPoint, error) {
			var (
				p         model.WorkoutPoint
				sportName sql.NullString
			)
			err := sc.Scan(&sportName, &p.Strain, &p.Kilojoule, &p.AverageHeartRate,
				&p.MaxHeartRate, &p.DistanceMeter, &p.StartTime, &p.EndTime)
			p.SportName = sportName.String
			return p, err
		}, cutoff, cutoff, limit)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
