// Package stats implements the two-proportion z-test used to decide
// experiment winners.
package stats

import "math"

// MinSampleSize is the per-arm assignment floor below which no z-test is
// attempted.
const MinSampleSize = 30

// SignificanceLevel is the two-tailed p-value threshold for declaring a winner.
const SignificanceLevel = 0.05

// Significance is the outcome of comparing a control arm against a
// treatment arm.
type Significance struct {
	Significant     bool    `json:"significant"`
	Confidence      float64 `json:"confidence"`
	PValue          float64 `json:"p_value"`
	ZScore          float64 `json:"z_score"`
	ControlRate     float64 `json:"control_rate"`
	TreatmentRate   float64 `json:"treatment_rate"`
	Improvement     float64 `json:"improvement"`
	WinnerIsControl bool    `json:"-"`
	HasWinner       bool    `json:"-"`
	Reason          string  `json:"reason,omitempty"`
}

// TwoProportionZTest compares conversion rates between a control and a
// treatment arm under a pooled-variance normal approximation.
func TwoProportionZTest(controlConversions, controlN, treatmentConversions, treatmentN int64) Significance {
	res := Significance{}

	if controlN < MinSampleSize || treatmentN < MinSampleSize {
		res.Reason = "Insufficient sample size"
		res.ControlRate = rate(controlConversions, controlN)
		res.TreatmentRate = rate(treatmentConversions, treatmentN)
		res.Improvement = improvement(res.ControlRate, res.TreatmentRate)
		return res
	}

	res.ControlRate = rate(controlConversions, controlN)
	res.TreatmentRate = rate(treatmentConversions, treatmentN)
	res.Improvement = improvement(res.ControlRate, res.TreatmentRate)

	pooled := float64(controlConversions+treatmentConversions) / float64(controlN+treatmentN)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlN) + 1/float64(treatmentN)))
	if se == 0 {
		// Degenerate: all-zero or all-one rates in both arms.
		res.Reason = "No rate variance"
		return res
	}

	z := math.Abs(res.TreatmentRate-res.ControlRate) / se
	pValue := 2 * (1 - normalCDF(z))

	res.ZScore = round2(z)
	res.PValue = pValue
	res.Significant = pValue < SignificanceLevel
	res.Confidence = round2((1 - pValue) * 100)

	if res.Significant {
		res.HasWinner = true
		res.WinnerIsControl = res.ControlRate > res.TreatmentRate
	}

	return res
}

func rate(conversions, n int64) float64 {
	if n == 0 {
		return 0
	}
	return float64(conversions) / float64(n)
}

func improvement(controlRate, treatmentRate float64) float64 {
	if controlRate == 0 {
		return 0
	}
	return round2((treatmentRate - controlRate) / controlRate * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// normalCDF approximates the standard normal cumulative distribution
// function via the Abramowitz and Stegun erf approximation (Handbook of
// Mathematical Functions, formula 7.1.26; max absolute error ~1.5e-7).
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
