package model

// Records as returned by the WHOOP developer API.
// Raw holds the compacted upstream JSON for the record and is stored
// alongside the flattened columns.

type Profile struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Raw       []byte `json:"-"`
}

type BodyMeasurements struct {
	HeightMeter    *float64 `json:"height_meter"`
	WeightKilogram *float64 `json:"weight_kilogram"`
	MaxHeartRate   *int     `json:"max_heart_rate"`
	Raw            []byte   `json:"-"`
}

type Cycle struct {
	ID             int64       `json:"id"`
	Start          string      `json:"start"`
	End            *string     `json:"end"`
	TimezoneOffset string      `json:"timezone_offset"`
	ScoreState     string      `json:"score_state"`
	Score          *CycleScore `json:"score"`
	Raw            []byte      `json:"-"`
}

type CycleScore struct {
	Strain           *float64 `json:"strain"`
	Kilojoule        *float64 `json:"kilojoule"`
	AverageHeartRate *int     `json:"average_heart_rate"`
	MaxHeartRate     *int     `json:"max_heart_rate"`
}

type Recovery struct {
	CycleID         int64          `json:"cycle_id"`
	SleepID         string         `json:"sleep_id"`
	UserCalibrating bool           `json:"user_calibrating"`
	ScoreState      string         `json:"score_state"`
	Score           *RecoveryScore `json:"score"`
	Raw             []byte         `json:"-"`
}

type RecoveryScore struct {
	UserCalibrating  bool     `json:"user_calibrating"`
	RecoveryScore    *float64 `json:"recovery_score"`
	RestingHeartRate *float64 `json:"resting_heart_rate"`
	HrvRmssdMilli    *float64 `json:"hrv_rmssd_milli"`
	Spo2Percentage   *float64 `json:"spo2_percentage"`
	SkinTempCelsius  *float64 `json:"skin_temp_celsius"`
}

// Calibrating merges the top-level flag with the one nested in the score
// object, which is where newer API versions report it.
func (r *Recovery) Calibrating() bool {
	return r.UserCalibrating || (r.Score != nil && r.Score.UserCalibrating)
}

type Sleep struct {
	ID             string      `json:"id"`
	Nap            bool        `json:"nap"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	TimezoneOffset string      `json:"timezone_offset"`
	ScoreState     string      `json:"score_state"`
	Score          *SleepScore `json:"score"`
	Raw            []byte      `json:"-"`
}

type SleepScore struct {
	StageSummary               *StageSummary `json:"stage_summary"`
	SleepNeeded                *SleepNeeded  `json:"sleep_needed"`
	RespiratoryRate            *float64      `json:"respiratory_rate"`
	SleepPerformancePercentage *float64      `json:"sleep_performance_percentage"`
	SleepEfficiencyPercentage  *float64      `json:"sleep_efficiency_percentage"`
}

type StageSummary struct {
	TotalInBedTimeMilli         *int64 `json:"total_in_bed_time_milli"`
	TotalAwakeTimeMilli         *int64 `json:"total_awake_time_milli"`
	TotalNoDataTimeMilli        *int64 `json:"total_no_data_time_milli"`
	TotalLightSleepTimeMilli    *int64 `json:"total_light_sleep_time_milli"`
	TotalSlowWaveSleepTimeMilli *int64 `json:"total_slow_wave_sleep_time_milli"`
	TotalRemSleepTimeMilli      *int64 `json:"total_rem_sleep_time_milli"`
}

type SleepNeeded struct {
	BaselineMilli             *int64 `json:"baseline_milli"`
	NeedFromSleepDebtMilli    *int64 `json:"need_from_sleep_debt_milli"`
	NeedFromRecentStrainMilli *int64 `json:"need_from_recent_strain_milli"`
	NeedFromRecentNapMilli    *int64 `json:"need_from_recent_nap_milli"`
}

type Workout struct {
	ID             string        `json:"id"`
	SportID        *int          `json:"sport_id"`
	SportName      string        `json:"sport_name"`
	Start          string        `json:"start"`
	End            string        `json:"end"`
	TimezoneOffset string        `json:"timezone_offset"`
	ScoreState     string        `json:"score_state"`
	Score          *WorkoutScore `json:"score"`
	Raw            []byte        `json:"-"`
}

type WorkoutScore struct {
	Strain              *float64 `json:"strain"`
	AverageHeartRate    *int     `json:"average_heart_rate"`
	MaxHeartRate        *int     `json:"max_heart_rate"`
	Kilojoule           *float64 `json:"kilojoule"`
	DistanceMeter       *float64 `json:"distance_meter"`
	AltitudeGainMeter   *float64 `json:"altitude_gain_meter"`
	AltitudeChangeMeter *float64 `json:"altitude_change_meter"`
	// The API has used both spellings.
	ZoneDuration  map[string]int64 `json:"zone_duration"`
	ZoneDurations map[string]int64 `json:"zone_durations"`
}

// Zones returns whichever zone duration map the record carried.
func (s *WorkoutScore) Zones() map[string]int64 {
	if s == nil {
		return nil
	}
	if s.ZoneDuration != nil {
		return s.ZoneDuration
	}
	return s.ZoneDurations
}
