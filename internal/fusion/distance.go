// Package fusion combines depth and detection outputs into per-object
// distance estimates.
package fusion

import (
	"math"
	"sort"

	"visiond/pkg/types"
)

// nearestFraction is the share of the closest samples averaged per box.
const nearestFraction = 0.10

// ComputeDistances returns one entry per detection whose score is at least
// thresholdPercent/100, in detection order. depth is indexed with the
// product pixelX*pixelY over the rescaled box, matching the sampling used by
// the rendering side; it is not row-major. A nil depth yields nil.
func ComputeDistances(depth []float32, det *types.DetectionOutput, thresholdPercent float64, depthWidth, depthHeight int) []types.Distance {
	if depth == nil || det == nil || depthWidth <= 0 || depthHeight <= 0 {
		return nil
	}
	minScore := thresholdPercent / 100
	srcW, srcH := float64(det.Sizes[0]), float64(det.Sizes[1])
	if srcW <= 0 {
		srcW = float64(depthWidth)
	}
	if srcH <= 0 {
		srcH = float64(depthHeight)
	}
	sx := float64(depthWidth) / srcW
	sy := float64(depthHeight) / srcH

	out := make([]types.Distance, 0, len(det.Outputs))
	for _, b := range det.Outputs {
		if b.Score() < minScore {
			continue
		}
		x0 := clamp(math.Floor(b.XMin()*sx), depthWidth)
		x1 := clamp(math.Floor(b.XMax()*sx), depthWidth)
		y0 := clamp(math.Floor(b.YMin()*sy), depthHeight)
		y1 := clamp(math.Floor(b.YMax()*sy), depthHeight)

		var samples []float64
		for px := x0; px < x1; px++ {
			for py := y0; py < y1; py++ {
				idx := px * py
				if idx < len(depth) {
					samples = append(samples, float64(depth[idx]))
				}
			}
		}
		out = append(out, types.Distance{
			Label:    det.Label(b.ClassID()),
			Distance: nearestMean(samples),
		})
	}
	return out
}

// nearestMean averages the lowest 10% of samples, at least one. An empty
// input yields 0.
func nearestMean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	n := int(math.Floor(float64(len(samples)) * nearestFraction))
	if n < 1 {
		n = 1
	}
	var sum float64
	for _, v := range samples[:n] {
		sum += v
	}
	return sum / float64(n)
}

func clamp(v float64, dim int) int {
	if v < 0 {
		return 0
	}
	if v > float64(dim) {
		return dim
	}
	return int(v)
}
