package rate

// DefaultSmoothingDepth is how many short-horizon estimates the smoother keeps.
const DefaultSmoothingDepth = 20

// Weighted is a short-horizon rate and how full its window was.
type Weighted struct {
	Rate   float64
	Weight float64
}

// Smoother keeps a FIFO of recent short-horizon estimates and reports their
// weighted mean. Estimates taken from a partly filled window count for less.
type Smoother struct {
	history     []Weighted
	depth       int
	shortTarget int
}

// NewSmoother creates a smoother keeping depth estimates, weighting each by
// its sample count over shortTarget.
func NewSmoother(depth, shortTarget int) *Smoother {
	if depth < 1 {
		depth = DefaultSmoothingDepth
	}
	if shortTarget < 1 {
		shortTarget = DefaultShortSamples
	}
	return &Smoother{
		history:     make([]Weighted, 0, depth),
		depth:       depth,
		shortTarget: shortTarget,
	}
}

// Push records e, evicting the oldest entry once depth is reached.
func (s *Smoother) Push(e Estimate) {
	w := float64(e.Count) / float64(s.shortTarget)
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}

	if len(s.history) == s.depth {
		copy(s.history, s.history[1:])
		s.history = s.history[:s.depth-1]
	}
	s.history = append(s.history, Weighted{Rate: e.Rate, Weight: w})
}

// Rate is the weighted mean of the retained history, or 0 when the total
// weight is zero.
func (s *Smoother) Rate() float64 {
	var sum, total float64
	for _, h := range s.history {
		sum += h.Rate * h.Weight
		total += h.Weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// History returns a copy of the retained entries, oldest first.
func (s *Smoother) History() []Weighted {
	out := make([]Weighted, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of retained entries.
func (s *Smoother) Len() int { return len(s.history) }
