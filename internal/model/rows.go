package model

import "time"

// Rows as stored locally. These are what the read APIs return.

type ProfileRow struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BodyMeasurementsRow struct {
	HeightMeter    *float64  `json:"height_meter"`
	WeightKilogram *float64  `json:"weight_kilogram"`
	MaxHeartRate   *int      `json:"max_heart_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CycleRow struct {
	ID                    int64    `json:"id"`
	StartTime             string   `json:"start_time"`
	EndTime               *string  `json:"end_time"`
	TimezoneOffset        string   `json:"timezone_offset"`
	ScoreStrain           *float64 `json:"score_strain"`
	ScoreKilojoule        *float64 `json:"score_kilojoule"`
	ScoreAverageHeartRate *int     `json:"score_average_heart_rate"`
	ScoreMaxHeartRate     *int     `json:"score_max_heart_rate"`
	RawJSON               string   `json:"raw_json,omitempty"`
}

type RecoveryRow struct {
	CycleID          int64    `json:"cycle_id"`
	SleepID          string   `json:"sleep_id"`
	UserCalibrating  bool     `json:"user_calibrating"`
	RecoveryScore    *float64 `json:"recovery_score"`
	RestingHeartRate *float64 `json:"resting_heart_rate"`
	HrvRmssdMilli    *float64 `json:"hrv_rmssd_milli"`
	Spo2Percentage   *float64 `json:"spo2_percentage"`
	SkinTempCelsius  *float64 `json:"skin_temp_celsius"`
	CycleStart       *string  `json:"cycle_start"`
	RawJSON          string   `json:"raw_json,omitempty"`
}

type SleepRow struct {
	ID                         string   `json:"id"`
	Nap                        bool     `json:"nap"`
	LightSleepMilli            *int64   `json:"score_stage_summary_total_light_sleep_time_milli"`
	SlowWaveSleepMilli         *int64   `json:"score_stage_summary_total_slow_wave_sleep_time_milli"`
	RemSleepMilli              *int64   `json:"score_stage_summary_total_rem_sleep_time_milli"`
	AwakeMilli                 *int64   `json:"score_stage_summary_total_awake_time_milli"`
	InBedMilli                 *int64   `json:"score_stage_summary_total_in_bed_time_milli"`
	NoDataMilli                *int64   `json:"score_stage_summary_total_no_data_time_milli"`
	NeededBaselineMilli        *int64   `json:"score_sleep_needed_baseline_milli"`
	NeededSleepDebtMilli       *int64   `json:"score_sleep_needed_need_from_sleep_debt_milli"`
	NeededRecentStrainMilli    *int64   `json:"score_sleep_needed_need_from_recent_strain_milli"`
	NeededRecentNapMilli       *int64   `json:"score_sleep_needed_need_from_recent_nap_milli"`
	SleepEfficiencyPercentage  *float64 `json:"score_sleep_efficiency_percentage"`
	SleepPerformancePercentage *float64 `json:"score_sleep_performance_percentage"`
	RespiratoryRate            *float64 `json:"score_respiratory_rate"`
	StartTime                  string   `json:"start_time"`
	EndTime                    string   `json:"end_time"`
	TimezoneOffset             string   `json:"timezone_offset"`
	RawJSON                    string   `json:"raw_json,omitempty"`
}

type WorkoutRow struct {
	ID                       string   `json:"id"`
	SportID                  *int     `json:"sport_id"`
	SportName                string   `json:"sport_name"`
	StartTime                string   `json:"start_time"`
	EndTime                  string   `json:"end_time"`
	TimezoneOffset           string   `json:"timezone_offset"`
	ScoreStrain              *float64 `json:"score_strain"`
	ScoreAverageHeartRate    *int     `json:"score_average_heart_rate"`
	ScoreMaxHeartRate        *int     `json:"score_max_heart_rate"`
	ScoreKilojoule           *float64 `json:"score_kilojoule"`
	ScoreDistanceMeter       *float64 `json:"score_distance_meter"`
	ScoreAltitudeGainMeter   *float64 `json:"score_altitude_gain_meter"`
	ScoreAltitudeChangeMeter *float64 `json:"score_altitude_change_meter"`
	ScoreZoneDurations       *string  `json:"score_zone_durations"`
	RawJSON                  string   `json:"raw_json,omitempty"`
}

// Page wraps a list response with the total row count.
type Page[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Series points, oldest first.

type RecoveryPoint struct {
	StartTime        *string  `json:"start_time"`
	RecoveryScore    *float64 `json:"recovery_score"`
	HrvRmssdMilli    *float64 `json:"hrv_rmssd_milli"`
	RestingHeartRate *float64 `json:"resting_heart_rate"`
	Spo2Percentage   *float64 `json:"spo2_percentage"`
	SkinTempCelsius  *float64 `json:"skin_temp_celsius"`
}

type CyclePoint struct {
	StartTime        string   `json:"start_time"`
	Strain           *float64 `json:"score_strain"`
	Kilojoule        *float64 `json:"score_kilojoule"`
	AverageHeartRate *int     `json:"score_average_heart_rate"`
}

type SleepPoint struct {
	StartTime       string   `json:"start_time"`
	Light           *int64   `json:"light"`
	Deep            *int64   `json:"deep"`
	Rem             *int64   `json:"rem"`
	Awake           *int64   `json:"awake"`
	Performance     *float64 `json:"performance"`
	Efficiency      *float64 `json:"efficiency"`
	RespiratoryRate *float64 `json:"respiratory_rate"`
}

type WorkoutPoint struct {
	SportName        string   `json:"sport_name"`
	Strain           *float64 `json:"score_strain"`
	Kilojoule        *float64 `json:"score_kilojoule"`
	AverageHeartRate *int     `json:"score_average_heart_rate"`
	MaxHeartRate     *int     `json:"score_max_heart_rate"`
	DistanceMeter    *float64 `json:"score_distance_meter"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
}

// Series is the time-windowed data used by the dashboard charts and the
// chat context.
type Series struct {
	Recovery []RecoveryPoint `json:"recovery"`
	Cycles   []CyclePoint    `json:"cycles"`
	Sleep    []SleepPoint    `json:"sleep"`
	Workouts []WorkoutPoint  `json:"workouts"`
}

type Dashboard struct {
	LatestRecovery *RecoveryRow `json:"latest_recovery"`
	LatestCycle    *CycleRow    `json:"latest_cycle"`
	LatestSleep    *SleepRow    `json:"latest_sleep"`
	Series
}

// HealthContext is the long-range snapshot handed to the chat assistant.
type HealthContext struct {
	Profile          *ProfileRow          `json:"profile"`
	BodyMeasurements *BodyMeasurementsRow `json:"body_measurements"`
	Series
}
