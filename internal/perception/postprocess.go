package perception

import (
	"sort"

	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// decodeDetections turns raw detector output into normalized corner boxes.
//
// The model emits rows of [cx, cy, w, h, score, class...] with coordinates
// relative to its input size. Rows below confidence are dropped; center/size
// is converted to corners and clamped to [0,1].
func decodeDetections(raw []float32, stride int, inputW, inputH int, confidence float32, classNames []string) []types.BoundingBox {
	var boxes []types.BoundingBox
	for off := 0; off+stride <= len(raw); off += stride {
		row := raw[off : off+stride]

		// Best class and its score.
		classID, score := 0, float32(0)
		for c := 5; c < stride; c++ {
			if s := row[4] * row[c]; s > score {
				score = s
				classID = c - 5
			}
		}
		if stride == 5 {
			score = row[4]
		}
		if score < confidence {
			continue
		}

		cx := row[0] / float32(inputW)
		cy := row[1] / float32(inputH)
		w := row[2] / float32(inputW)
		h := row[3] / float32(inputH)

		box := types.BoundingBox{
			X1:      clamp01(cx - w/2),
			Y1:      clamp01(cy - h/2),
			X2:      clamp01(cx + w/2),
			Y2:      clamp01(cy + h/2),
			Score:   score,
			ClassID: classID,
		}
		if classID < len(classNames) {
			box.ClassName = classNames[classID]
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// suppressOverlaps runs greedy per-class non-maximum suppression: boxes are
// visited best-score first, and any same-class box overlapping a survivor
// above iouThreshold is marked Suppressed. Survivors keep their relative
// score order.
func suppressOverlaps(boxes []types.BoundingBox, iouThreshold float32) {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return boxes[order[a]].Score > boxes[order[b]].Score
	})

	for i, oi := range order {
		if boxes[oi].Suppressed {
			continue
		}
		for _, oj := range order[i+1:] {
			if boxes[oj].Suppressed || boxes[oj].ClassID != boxes[oi].ClassID {
				continue
			}
			if boxes[oi].IoU(&boxes[oj]) > iouThreshold {
				boxes[oj].Suppressed = true
			}
		}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
