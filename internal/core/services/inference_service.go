package services

import (
	"sort"

	"detectmesh/internal/core/domain"
)

// InferenceService implements the detector postprocessing pipeline: score/class
// filtering, coordinate normalization, degenerate-box rejection, and
// non-maximum suppression. It holds no state and performs no I/O, so it is
// pure core logic rather than infrastructure.
type InferenceService struct {
	ScoreThreshold float64
	IOUThreshold   float64
	InputSize      float64
	NMSEpsilon     float64
}

// NewInferenceService builds a postprocessor with the design defaults
// (score 0.45, IoU 0.5, input 640, epsilon 1e-6). Only the score threshold
// is a constructor argument; callers set IOUThreshold and InputSize on the
// returned value when their configuration overrides them.
func NewInferenceService(scoreThreshold float64) *InferenceService {
	return &InferenceService{
		ScoreThreshold: scoreThreshold,
		IOUThreshold:   0.5,
		InputSize:      640,
		NMSEpsilon:      1e-6,
	}
}

// Postprocess turns raw detector candidates into the surviving, normalized,
// suppressed Detection set, sorted by descending score.
func (s *InferenceService) Postprocess(candidates []domain.Candidate) []domain.Detection {
	filtered := make([]domain.Detection, 0, len(candidates))

	for _, c := range candidates {
		if c.Score <= s.ScoreThreshold {
			continue
		}
		label, ok := classLabel(c.ClassID)
		if !ok {
			continue
		}

		xmin := clamp01(c.X0 / s.InputSize)
		ymin := clamp01(c.Y0 / s.InputSize)
		xmax := clamp01(c.X1 / s.InputSize)
		ymax := clamp01(c.Y1 / s.InputSize)

		if xmax <= xmin || ymax <= ymin {
			continue
		}

		filtered = append(filtered, domain.Detection{
			Label: label,
			Score: c.Score,
			Xmin:  xmin,
			Ymin:  ymin,
			Xmax:  xmax,
			Ymax:  ymax,
		})
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return s.suppress(filtered)
}

// suppress applies greedy non-maximum suppression: a lower-scored box
// overlapping a higher-scored, already-kept box above the IoU threshold is
// removed outright, never re-scored.
func (s *InferenceService) suppress(sorted []domain.Detection) []domain.Detection {
	kept := make([]domain.Detection, 0, len(sorted))

	for _, candidate := range sorted {
		suppressed := false
		for _, k := range kept {
			if s.iou(candidate, k) > s.IOUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}

	return kept
}

// iou computes intersection-over-union with an epsilon-guarded
// denominator.
func (s *InferenceService) iou(a, b domain.Detection) float64 {
	ix0 := max(a.Xmin, b.Xmin)
	iy0 := max(a.Ymin, b.Ymin)
	ix1 := min(a.Xmax, b.Xmax)
	iy1 := min(a.Ymax, b.Ymax)

	iw := max(0, ix1-ix0)
	ih := max(0, iy1-iy0)
	intersection := iw * ih

	areaA := (a.Xmax - a.Xmin) * (a.Ymax - a.Ymin)
	areaB := (b.Xmax - b.Xmin) * (b.Ymax - b.Ymin)
	union := areaA + areaB - intersection

	return intersection / (union + s.NMSEpsilon)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
