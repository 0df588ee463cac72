package analysis

// Impact is a contact event found in a sampled gap signal.
type Impact struct {
	Index int
	Time  float64
	// Velocity is the approach velocity estimated from the two samples
	// before contact; it is negative for a closing gap.
	Velocity float64
}

// Impacts returns every sample where gap closes to within tol after having
// been open. A persistent contact counts once.
func Impacts(times, gap []float64, tol float64) []Impact {
	var out []Impact
	open := len(gap) > 0 && gap[0] > tol
	for i := 1; i < len(gap) && i < len(times); i++ {
		closed := gap[i] <= tol
		if closed && open {
			v := 0.0
			if dt := times[i] - times[i-1]; dt > 0 {
				v = (gap[i] - gap[i-1]) / dt
			}
			out = append(out, Impact{Index: i, Time: times[i], Velocity: v})
		}
		open = !closed
	}
	return out
}

// ImpactMap pairs the speed of each impact with the next one.
func ImpactMap(impacts []Impact) [][2]float64 {
	if len(impacts) < 2 {
		return nil
	}
	out := make([][2]float64, len(impacts)-1)
	for i := 1; i < len(impacts); i++ {
		out[i-1] = [2]float64{-impacts[i-1].Velocity, -impacts[i].Velocity}
	}
	return out
}

// Intervals returns the time between consecutive impacts.
func Intervals(impacts []Impact) []float64 {
	if len(impacts) < 2 {
		return nil
	}
	out := make([]float64, len(impacts)-1)
	for i := 1; i < len(impacts); i++ {
		out[i-1] = impacts[i].Time - impacts[i-1].Time
	}
	return out
}
