package postprocess

import "visiond/pkg/types"

// DefaultIoUThreshold is the overlap above which two same-class boxes merge.
const DefaultIoUThreshold = 0.5

// IoU returns the intersection-over-union of two boxes. Degenerate boxes
// with zero union yield 0.
func IoU(a, b types.Box) float64 {
	ix := min(a.XMax(), b.XMax()) - max(a.XMin(), b.XMin())
	iy := min(a.YMax(), b.YMax()) - max(a.YMin(), b.YMin())
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// MergeBoxes collapses near-duplicate detections of the same class in a
// single pass. Boxes are visited in order; each unconsumed box absorbs every
// later unconsumed box of the same class whose IoU with it exceeds threshold.
// Absorbed boxes are not compared again. Merged coordinates are the
// score-weighted mean and the merged score is the larger of the two.
//
// The input slice is not modified.
func MergeBoxes(boxes []types.Box, threshold float64) []types.Box {
	if len(boxes) < 2 {
		return append([]types.Box(nil), boxes...)
	}
	consumed := make([]bool, len(boxes))
	out := make([]types.Box, 0, len(boxes))
	for i := range boxes {
		if consumed[i] {
			continue
		}
		cur := boxes[i]
		for j := i + 1; j < len(boxes); j++ {
			if consumed[j] || boxes[j].ClassID() != cur.ClassID() {
				continue
			}
			if IoU(cur, boxes[j]) > threshold {
				cur = mergePair(cur, boxes[j])
				consumed[j] = true
			}
		}
		out = append(out, cur)
	}
	return out
}

func mergePair(a, b types.Box) types.Box {
	total := a.Score() + b.Score()
	wa, wb := 0.5, 0.5
	if total > 0 {
		wa = a.Score() / total
		wb = b.Score() / total
	}
	var m types.Box
	for k := 0; k < 4; k++ {
		m[k] = a[k]*wa + b[k]*wb
	}
	m[4] = max(a.Score(), b.Score())
	m[5] = a[5]
	return m
}
