package localization

// KalmanParams are the variances of the one-dimensional filter applied to
// each coordinate axis.
type KalmanParams struct {
	ProcessVariance float64 // q
	MeasureVariance float64 // r
}

// DefaultKalmanParams tuned for slow-moving GPS coordinate series.
func DefaultKalmanParams() KalmanParams {
	return KalmanParams{ProcessVariance: 1e-5, MeasureVariance: 1e-2}
}

// steadyStateGain iterates the covariance recurrence from P0 = 1 until the
// gain settles, yielding the steady-state Kalman gain for (q, r).
func steadyStateGain(q, r float64) float64 {
	p := 1.0
	k := 0.0
	for i := 0; i < 200; i++ {
		prior := p + q
		next := prior / (prior + r)
		p = (1 - next) * prior
		if diff := next - k; diff < 1e-12 && diff > -1e-12 {
			return next
		}
		k = next
	}
	return k
}

// KalmanSmooth filters a 1-D series with the steady-state gain. The first
// sample seeds the state, so a constant series passes through unchanged.
func KalmanSmooth(series []float64, params KalmanParams) []float64 {
	if len(series) == 0 {
		return nil
	}
	if params.ProcessVariance <= 0 || params.MeasureVariance <= 0 {
		params = DefaultKalmanParams()
	}
	k := steadyStateGain(params.ProcessVariance, params.MeasureVariance)

	out := make([]float64, len(series))
	x := series[0]
	out[0] = x
	for i := 1; i < len(series); i++ {
		x += k * (series[i] - x)
		out[i] = x
	}
	return out
}
