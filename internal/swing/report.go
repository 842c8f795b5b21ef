package swing

import (
	"math"
	"time"
)

// Ideals are the reference values scores are measured against.
type Ideals struct {
	WaistToShoulder float64 // s
	ShoulderToWrist float64 // s
	WristToRacket   float64 // s
	EnergyRatio     float64
	ROMWaist        float64 // degrees
	ROMShoulder     float64
	ROMWrist        float64
}

// DefaultIdeals returns 80/50/30 ms delays, a 0.65 ratio and 45/120/45°.
func DefaultIdeals() Ideals {
	return Ideals{
		WaistToShoulder: 0.08,
		ShoulderToWrist: 0.05,
		WristToRacket:   0.03,
		EnergyRatio:     0.65,
		ROMWaist:        45,
		ROMShoulder:     120,
		ROMWrist:        45,
	}
}

// Scores are 0-100 sub-scores and their mean.
type Scores struct {
	Overall float64 `json:"overall_score"`
	Delay   float64 `json:"delay_score"`
	Energy  float64 `json:"energy_score"`
	ROM     float64 `json:"rom_score"`
}

// PhaseAnalysis reports delays in milliseconds.
type PhaseAnalysis struct {
	WaistToShoulderDelay float64 `json:"waist_to_shoulder_delay"`
	ShoulderToWristDelay float64 `json:"shoulder_to_wrist_delay"`
	WristToRacketDelay   float64 `json:"wrist_to_racket_delay"`
	IdealWaistToShoulder float64 `json:"ideal_waist_to_shoulder"`
	IdealShoulderToWrist float64 `json:"ideal_shoulder_to_wrist"`
	IdealWristToRacket   float64 `json:"ideal_wrist_to_racket"`
	Assessment           string  `json:"delay_assessment"`
}

// EnergyAnalysis reports the ratio as a percentage.
type EnergyAnalysis struct {
	EnergyRatio float64 `json:"energy_ratio"`
	IdealRatio  float64 `json:"ideal_ratio"`
	Assessment  string  `json:"energy_assessment"`
}

// ROMAnalysis reports joint ranges in degrees.
type ROMAnalysis struct {
	WaistRotation   float64 `json:"waist_rotation"`
	ShoulderFlexion float64 `json:"shoulder_flexion"`
	WristExtension  float64 `json:"wrist_extension"`
	IdealWaist      float64 `json:"ideal_waist"`
	IdealShoulder   float64 `json:"ideal_shoulder"`
	IdealWrist      float64 `json:"ideal_wrist"`
	Assessment      string  `json:"rom_assessment"`
}

// Synthesis is the scored, human-readable part of a report.
type Synthesis struct {
	Summary         Scores         `json:"summary"`
	PhaseAnalysis   PhaseAnalysis  `json:"phase_analysis"`
	EnergyAnalysis  EnergyAnalysis `json:"energy_analysis"`
	ROMAnalysis     ROMAnalysis    `json:"rom_analysis"`
	Recommendations []string       `json:"recommendations"`
}

// AnalysisReport is the result of one analysis run. Reports are never
// updated; re-running analysis produces a new one.
type AnalysisReport struct {
	ID          string                     `json:"id"`
	SessionID   string                     `json:"session_id"`
	CreatedAt   time.Time                  `json:"analysis_time"`
	PhaseDelay  DelayEstimate              `json:"phase_delay"`
	EnergyRatio float64                    `json:"energy_ratio"`
	ROM         ROMProfile                 `json:"rom_data"`
	Energy      EnergyProfile              `json:"energy_data"`
	Peaks       map[SensorRole]PeakSet     `json:"peaks"`
	Correlation map[SensorRole]PairSummary `json:"correlation,omitempty"`
	Synthesis
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Grade is a qualitative bucket.
type Grade int

const (
	GradeExcellent Grade = iota
	GradeGood
	GradeNeedsImprovement
)

// Synthesize scores the measurements against ideals and renders the
// assessments and recommendations in locale.
func Synthesize(delay DelayEstimate, energy EnergyProfile, rom ROMProfile, ideals Ideals, locale Locale) Synthesis {
	msgs := messagesFor(locale)

	delayScore := (closeness(delay.WaistToShoulder, ideals.WaistToShoulder) +
		closeness(delay.ShoulderToWrist, ideals.ShoulderToWrist)) / 2

	energyScore := 100.0
	if energy.Ratio < ideals.EnergyRatio {
		energyScore = math.Max(0, 100*energy.Ratio/ideals.EnergyRatio)
	}

	romScore := (closeness(rom.Waist, ideals.ROMWaist) +
		closeness(rom.Shoulder, ideals.ROMShoulder) +
		closeness(rom.Wrist, ideals.ROMWrist)) / 3

	var racketMS float64
	if delay.WristToRacket != nil {
		racketMS = *delay.WristToRacket * 1000
	}

	return Synthesis{
		Summary: Scores{
			Overall: round1((delayScore + energyScore + romScore) / 3),
			Delay:   round1(delayScore),
			Energy:  round1(energyScore),
			ROM:     round1(romScore),
		},
		PhaseAnalysis: PhaseAnalysis{
			WaistToShoulderDelay: round1(delay.WaistToShoulder * 1000),
			ShoulderToWristDelay: round1(delay.ShoulderToWrist * 1000),
			WristToRacketDelay:   round1(racketMS),
			IdealWaistToShoulder: round1(ideals.WaistToShoulder * 1000),
			IdealShoulderToWrist: round1(ideals.ShoulderToWrist * 1000),
			IdealWristToRacket:   round1(ideals.WristToRacket * 1000),
			Assessment:           msgs.delay[DelayGrade(delay, ideals)],
		},
		EnergyAnalysis: EnergyAnalysis{
			EnergyRatio: round1(energy.Ratio * 100),
			IdealRatio:  round1(ideals.EnergyRatio * 100),
			Assessment:  msgs.energy[EnergyGrade(energy.Ratio, ideals)],
		},
		ROMAnalysis: ROMAnalysis{
			WaistRotation:   round1(rom.Waist),
			ShoulderFlexion: round1(rom.Shoulder),
			WristExtension:  round1(rom.Wrist),
			IdealWaist:      ideals.ROMWaist,
			IdealShoulder:   ideals.ROMShoulder,
			IdealWrist:      ideals.ROMWrist,
			Assessment:      msgs.rom[ROMGrade(rom, ideals)],
		},
		Recommendations: Recommend(delay, energy.Ratio, rom, ideals, locale),
	}
}

// DelayGrade is excellent when both delays are at or under ideal and good
// when both are within 120% of it.
func DelayGrade(d DelayEstimate, ideals Ideals) Grade {
	switch {
	case d.WaistToShoulder <= ideals.WaistToShoulder && d.ShoulderToWrist <= ideals.ShoulderToWrist:
		return GradeExcellent
	case d.WaistToShoulder <= 1.2*ideals.WaistToShoulder && d.ShoulderToWrist <= 1.2*ideals.ShoulderToWrist:
		return GradeGood
	}
	return GradeNeedsImprovement
}

// EnergyGrade is excellent at or above the ideal ratio and good from 0.5.
func EnergyGrade(ratio float64, ideals Ideals) Grade {
	switch {
	case ratio >= ideals.EnergyRatio:
		return GradeExcellent
	case ratio >= 0.5:
		return GradeGood
	}
	return GradeNeedsImprovement
}

// ROMGrade buckets the mean relative error over the three joints: at most
// 0.1 is excellent, at most 0.2 good.
func ROMGrade(rom ROMProfile, ideals Ideals) Grade {
	errSum := relErr(rom.Waist, ideals.ROMWaist) +
		relErr(rom.Shoulder, ideals.ROMShoulder) +
		relErr(rom.Wrist, ideals.ROMWrist)
	switch avg := errSum / 3; {
	case avg <= 0.1:
		return GradeExcellent
	case avg <= 0.2:
		return GradeGood
	}
	return GradeNeedsImprovement
}

// Recommend lists one suggestion per threshold missed, or a single
// affirmation when none is.
func Recommend(d DelayEstimate, ratio float64, rom ROMProfile, ideals Ideals, locale Locale) []string {
	msgs := messagesFor(locale)
	var out []string
	if d.WaistToShoulder > ideals.WaistToShoulder {
		out = append(out, msgs.waistToShoulder)
	}
	if d.ShoulderToWrist > ideals.ShoulderToWrist {
		out = append(out, msgs.shoulderToWrist)
	}
	if ratio < ideals.EnergyRatio {
		out = append(out, msgs.energyLow)
	}
	if rom.Waist < ideals.ROMWaist {
		out = append(out, msgs.waistROM)
	}
	if rom.Shoulder < ideals.ROMShoulder {
		out = append(out, msgs.shoulderROM)
	}
	if rom.Wrist < ideals.ROMWrist {
		out = append(out, msgs.wristROM)
	}
	if len(out) == 0 {
		out = append(out, msgs.keepItUp)
	}
	return out
}

func closeness(actual, ideal float64) float64 {
	if ideal <= 0 {
		return 0
	}
	return math.Max(0, 100-100*math.Abs(actual-ideal)/ideal)
}

func relErr(actual, ideal float64) float64 {
	if ideal <= 0 {
		return 0
	}
	return math.Abs(actual-ideal) / ideal
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
