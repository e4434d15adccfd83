package sqlite

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/sakif/healthos/internal/model"
	"github.com/sakif/healthos/internal/repository"
)

var _ repository.RecordRepository = (*DB)(nil)

// rawJSON returns the compacted upstream JSON for a record. Records built in
// code without a Raw snapshot are marshalled instead.
func rawJSON(raw []byte, v any) (string, error) {
	if len(raw) == 0 {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (db *DB) UpsertProfile(ctx context.Context, p *model.Profile) error {
	raw, err := rawJSON(p.Raw, p)
	if err != nil {
		return fmt.Errorf("sqlite: encoding profile %d: %w", p.UserID, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO profile (user_id, email, first_name, last_name, raw_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Email, p.FirstName, p.LastName, raw, timestamp(db.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting profile %d: %w", p.UserID, err)
	}
	return nil
}

// ReplaceBodyMeasurements keeps a single row: the old one is deleted and the
// new one inserted in the same transaction.
func (db *DB) ReplaceBodyMeasurements(ctx context.Context, b *model.BodyMeasurements) error {
	raw, err := rawJSON(b.Raw, b)
	if err != nil {
		return fmt.Errorf("sqlite: encoding body measurements: %w", err)
	}
	return db.WithTx(ctx, func(tx Execer) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM body_measurements`); err != nil {
			return fmt.Errorf("sqlite: clearing body measurements: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO body_measurements (height_meter, weight_kilogram, max_heart_rate, raw_json, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			b.HeightMeter, b.WeightKilogram, b.MaxHeartRate, raw, timestamp(db.now()),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting body measurements: %w", err)
		}
		return nil
	})
}

func (db *DB) UpsertCycle(ctx context.Context, c *model.Cycle) error {
	raw, err := rawJSON(c.Raw, c)
	if err != nil {
		return fmt.Errorf("sqlite: encoding cycle %d: %w", c.ID, err)
	}
	score := c.Score
	if score == nil {
		score = &model.CycleScore{}
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO cycles (
			id, start_time, end_time, timezone_offset,
			score_strain, score_kilojoule, score_average_heart_rate, score_max_heart_rate,
			raw_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Start, c.End, c.TimezoneOffset,
		score.Strain, score.Kilojoule, score.AverageHeartRate, score.MaxHeartRate,
		raw, timestamp(db.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting cycle %d: %w", c.ID, err)
	}
	return nil
}

func (db *DB) UpsertRecovery(ctx context.Context, r *model.Recovery) error {
	raw, err := rawJSON(r.Raw, r)
	if err != nil {
		return fmt.Errorf("sqlite: encoding recovery %d: %w", r.CycleID, err)
	}
	score := r.Score
	if score == nil {
		score = &model.RecoveryScore{}
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO recovery (
			cycle_id, sleep_id, user_calibrating, recovery_score, resting_heart_rate,
			hrv_rmssd_milli, spo2_percentage, skin_temp_celsius, raw_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CycleID, r.SleepID, r.Calibrating(), score.RecoveryScore, score.RestingHeartRate,
		score.HrvRmssdMilli, score.Spo2Percentage, score.SkinTempCelsius, raw, timestamp(db.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting recovery %d: %w", r.CycleID, err)
	}
	return nil
}

func (db *DB) UpsertSleep(ctx context.Context, s *model.Sleep) error {
	raw, err := rawJSON(s.Raw, s)
	if err != nil {
		return fmt.Errorf("sqlite: encoding sleep %s: %w", s.ID, err)
	}
	score := s.Score
	if score == nil {
		score = &model.SleepScore{}
	}
	stages := score.StageSummary
	if stages == nil {
		stages = &model.StageSummary{}
	}
	need := score.SleepNeeded
	if need == nil {
		need = &model.SleepNeeded{}
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO sleep (
			id, nap,
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
			start_time, end_time, timezone_offset, raw_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Nap,
		stages.TotalLightSleepTimeMilli,
		stages.TotalSlowWaveSleepTimeMilli,
		stages.TotalRemSleepTimeMilli,
		stages.TotalAwakeTimeMilli,
		stages.TotalInBedTimeMilli,
		stages.TotalNoDataTimeMilli,
		need.BaselineMilli,
		need.NeedFromSleepDebtMilli,
		need.NeedFromRecentStrainMilli,
		need.NeedFromRecentNapMilli,
		score.SleepEfficiencyPercentage,
		score.SleepPerformancePercentage,
		score.RespiratoryRate,
		s.Start, s.End, s.TimezoneOffset, raw, timestamp(db.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting sleep %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) UpsertWorkout(ctx context.Context, w *model.Workout) error {
	raw, err := rawJSON(w.Raw, w)
	if err != nil {
		return fmt.Errorf("sqlite: encoding workout %s: %w", w.ID, err)
	}
	score := w.Score
	if score == nil {
		score = &model.WorkoutScore{}
	}

	var zones *string
	if z := score.Zones(); z != nil {
		b, err := json.Marshal(z)
		if err != nil {
			return fmt.Errorf("sqlite: encoding workout %s zones: %w", w.ID, err)
		}
		s := string(b)
		zones = &s
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO workouts (
			id, sport_id, sport_name, start_time, end_time, timezone_offset,
			score_strain, score_average_heart_rate, score_max_heart_rate,
			score_kilojoule, score_distance_meter, score_altitude_gain_meter,
			score_altitude_change_meter, score_zone_durations, raw_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.SportID, w.SportName, w.Start, w.End, w.TimezoneOffset,
		score.Strain, score.AverageHeartRate, score.MaxHeartRate,
		score.Kilojoule, score.DistanceMeter, score.AltitudeGainMeter,
		score.AltitudeChangeMeter, zones, raw, timestamp(db.now()),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting workout %s: %w", w.ID, err)
	}
	return nil
}
