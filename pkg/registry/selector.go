package registry

import (
	"fmt"
	"math"

	"github.com/zen-systems/mindgate/pkg/task"
)

// Weights maps each capability to its contribution for a task type.
type Weights map[Capability]float64

// TaskWeights holds the fixed weight vector for every task type.
// Each vector sums to 1 so scores stay in [0,1] without rescaling.
var TaskWeights = map[task.Type]Weights{
	task.TypeCoding: {
		CapCode: 0.6, CapReasoning: 0.25, CapLatency: 0.1, CapCreativity: 0.05,
	},
	task.TypeMathematical: {
		CapReasoning: 0.65, CapCode: 0.25, CapLatency: 0.1,
	},
	task.TypeMultimodal: {
		CapMultimodal: 0.6, CapReasoning: 0.2, CapCreativity: 0.1, CapLatency: 0.1,
	},
	task.TypeCreative: {
		CapCreativity: 0.65, CapReasoning: 0.15, CapLatency: 0.1, CapMultimodal: 0.1,
	},
	task.TypeReasoning: {
		CapReasoning: 0.7, CapCode: 0.1, CapCreativity: 0.1, CapLatency: 0.1,
	},
	task.TypeFast: {
		CapLatency: 0.7, CapReasoning: 0.15, CapCode: 0.075, CapCreativity: 0.075,
	},
	task.TypeGeneral: {
		CapReasoning: 0.2, CapCreativity: 0.2, CapCode: 0.2, CapMultimodal: 0.2, CapLatency: 0.2,
	},
}

// WeightsFor returns the weight vector for t, falling back to general.
func WeightsFor(t task.Type) Weights {
	if w, ok := TaskWeights[t]; ok {
		return w
	}
	return TaskWeights[task.TypeGeneral]
}

// ScoreModel computes the normalized weighted dot product of a model against a task type.
func ScoreModel(m ModelDescriptor, t task.Type) float64 {
	w := WeightsFor(t)
	var sum, total float64
	for _, c := range Capabilities {
		weight := w[c]
		if weight <= 0 {
			continue
		}
		sum += weight * m.Score(c)
		total += weight
	}
	if total == 0 {
		return 0
	}
	return clamp01(sum / total)
}

// Ranked pairs a model with its selection score.
type Ranked struct {
	Model ModelDescriptor
	Score float64
}

// Rank scores every model in declaration order.
func Rank(analysis task.Analysis, models []ModelDescriptor) []Ranked {
	out := make([]Ranked, 0, len(models))
	for _, m := range models {
		out = append(out, Ranked{Model: m, Score: ScoreModel(m, analysis.Type)})
	}
	return out
}

// Select returns the highest scoring model for the analysis.
// Ties keep the model declared first; an empty list yields ErrNoModelAvailable.
func Select(analysis task.Analysis, models []ModelDescriptor) (ModelDescriptor, float64, error) {
	if len(models) == 0 {
		return ModelDescriptor{}, 0, ErrNoModelAvailable
	}
	best := -1
	bestScore := math.Inf(-1)
	for i, m := range models {
		score := ScoreModel(m, analysis.Type)
		// strict > keeps the earliest declaration on ties
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return models[best], bestScore, nil
}

// Select picks the best model from the registry.
func (r *Registry) Select(analysis task.Analysis) (ModelDescriptor, float64, error) {
	if r.Len() == 0 {
		return ModelDescriptor{}, 0, ErrNoModelAvailable
	}
	return Select(analysis, r.models)
}

// SelectFromProvider picks the best model among those served by p.
func (r *Registry) SelectFromProvider(analysis task.Analysis, p Provider) (ModelDescriptor, float64, error) {
	models := r.ByProvider(p)
	if len(models) == 0 {
		return ModelDescriptor{}, 0, fmt.Errorf("%w from %s", ErrNoModelAvailable, p)
	}
	return Select(analysis, models)
}

// Equivalent finds the provider's model whose capability profile is closest
// to m by cosine similarity. Ties keep declaration order.
func (r *Registry) Equivalent(m ModelDescriptor, p Provider) (ModelDescriptor, bool) {
	if m.Provider == p {
		if _, ok := r.Lookup(m.Name); ok {
			return m, true
		}
	}
	candidates := r.ByProvider(p)
	if len(candidates) == 0 {
		return ModelDescriptor{}, false
	}
	target := m.Vector()
	best := 0
	bestSim := math.Inf(-1)
	for i, c := range candidates {
		sim := cosine(target, c.Vector())
		if sim > bestSim {
			best = i
			bestSim = sim
		}
	}
	return candidates[best], true
}

// String renders a short human description of a ranked entry.
func (r Ranked) String() string {
	return fmt.Sprintf("%s/%s %.3f", r.Model.Provider, r.Model.Name, r.Score)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
