package postprocess

// NormalizeDepth scales values to [0,1] using the observed min and max. A
// constant input maps to all zeros. The input is not modified.
func NormalizeDepth(raw []float32) []float32 {
	out := make([]float32, len(raw))
	if len(raw) == 0 {
		return out
	}
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range raw {
		out[i] = (v - lo) / span
	}
	return out
}
