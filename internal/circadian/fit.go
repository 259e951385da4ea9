package circadian

import (
	"errors"
	"math"
)

// FitConfig controls the cosinor least-squares solver.
type FitConfig struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`       // relative SSE improvement
	InitialLambda float64 `json:"initial_lambda"`  // Levenberg-Marquardt damping
	LambdaUp      float64 `json:"lambda_up"`
	LambdaDown    float64 `json:"lambda_down"`
	MaxLambda     float64 `json:"max_lambda"`
}

// DefaultFitConfig returns solver defaults tuned for 3-parameter cosinor fits.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		MaxIterations: 200,
		Tolerance:     1e-10,
		InitialLambda: 1e-3,
		LambdaUp:      10,
		LambdaDown:    0.1,
		MaxLambda:     1e10,
	}
}

// CosinorParams are the fitted 24-hour cosine model parameters:
// y = Mesor + Amplitude·cos(2π(t−Acrophase)/24).
type CosinorParams struct {
	Mesor     float64 `json:"mesor"`
	Amplitude float64 `json:"amplitude"`
	Acrophase float64 `json:"acrophase"`
}

// Eval evaluates the cosinor model at hour t.
func (p CosinorParams) Eval(t float64) float64 {
	return p.Mesor + p.Amplitude*math.Cos(2*math.Pi*(t-p.Acrophase)/24)
}

var errFitDiverged = errors.New("cosinor fit diverged")

// fitCosinor runs damped Gauss-Newton (Levenberg-Marquardt) on the cosinor
// residuals. Divergence or a singular normal system returns an error; the
// caller falls back to mean-only output.
func fitCosinor(hours, scores []float64, seed CosinorParams, cfg FitConfig) (CosinorParams, error) {
	if len(hours) != len(scores) || len(hours) < 3 {
		return CosinorParams{}, errFitDiverged
	}
	p := seed
	lambda := cfg.InitialLambda
	sse := residualSS(hours, scores, p)
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return CosinorParams{}, errFitDiverged
	}

	const w = 2 * math.Pi / 24

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		// Normal equations (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr with the analytic
		// Jacobian of the cosinor model.
		var jtj [3][3]float64
		var jtr [3]float64
		for i := range hours {
			phase := w * (hours[i] - p.Acrophase)
			r := scores[i] - p.Eval(hours[i])
			j := [3]float64{1, math.Cos(phase), p.Amplitude * w * math.Sin(phase)}
			for a := 0; a < 3; a++ {
				jtr[a] += j[a] * r
				for b := 0; b < 3; b++ {
					jtj[a][b] += j[a] * j[b]
				}
			}
		}

		improved := false
		for lambda <= cfg.MaxLambda {
			var damped [3][3]float64
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					damped[a][b] = jtj[a][b]
				}
				damped[a][a] += lambda * jtj[a][a]
				if damped[a][a] == 0 {
					damped[a][a] = lambda
				}
			}
			delta, ok := solve3(damped, jtr)
			if !ok {
				lambda *= cfg.LambdaUp
				continue
			}
			candidate := CosinorParams{
				Mesor:     p.Mesor + delta[0],
				Amplitude: p.Amplitude + delta[1],
				Acrophase: p.Acrophase + delta[2],
			}
			newSSE := residualSS(hours, scores, candidate)
			if math.IsNaN(newSSE) || math.IsInf(newSSE, 0) {
				lambda *= cfg.LambdaUp
				continue
			}
			if newSSE < sse {
				rel := (sse - newSSE) / math.Max(sse, 1e-12)
				p = candidate
				sse = newSSE
				lambda *= cfg.LambdaDown
				improved = true
				if rel < cfg.Tolerance {
					return normalizeParams(p), nil
				}
				break
			}
			lambda *= cfg.LambdaUp
		}
		if !improved {
			if iter == 0 && sse > 0 {
				// Never moved off the seed: accept it only when it already
				// explains the data, otherwise report divergence.
				if sse < 1e-9 {
					return normalizeParams(p), nil
				}
				return CosinorParams{}, errFitDiverged
			}
			return normalizeParams(p), nil
		}
	}
	return normalizeParams(p), nil
}

// normalizeParams folds a negative amplitude and wraps acrophase into [0,24).
func normalizeParams(p CosinorParams) CosinorParams {
	if p.Amplitude < 0 {
		p.Amplitude = -p.Amplitude
		p.Acrophase += 12
	}
	p.Acrophase = math.Mod(p.Acrophase, 24)
	if p.Acrophase < 0 {
		p.Acrophase += 24
	}
	return p
}

func residualSS(hours, scores []float64, p CosinorParams) float64 {
	ss := 0.0
	for i := range hours {
		r := scores[i] - p.Eval(hours[i])
		ss += r * r
	}
	return ss
}

// solve3 solves a 3x3 linear system by Gaussian elimination with partial
// pivoting; ok is false for a singular system.
func solve3(a [3][3]float64, b [3]float64) ([3]float64, bool) {
	m := a
	v := b
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-14 {
			return [3]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		v[col], v[pivot] = v[pivot], v[col]
		for row := col + 1; row < 3; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < 3; k++ {
				m[row][k] -= f * m[col][k]
			}
			v[row] -= f * v[col]
		}
	}
	var x [3]float64
	for row := 2; row >= 0; row-- {
		sum := v[row]
		for k := row + 1; k < 3; k++ {
			sum -= m[row][k] * x[k]
		}
		x[row] = sum / m[row][row]
	}
	return x, true
}
