package main

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

const (
	defaultMatchThreshold = 0.6
	defaultMatchTopK      = 3
)

// ResolverConfig tunes the resolver per detection backend.
type ResolverConfig struct {
	// Threshold is the confidence a hit must strictly exceed.
	Threshold float64
	// TopK is how many of the highest-confidence detections are considered.
	TopK int
}

// DefaultResolverConfig returns the stock threshold and window.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{Threshold: defaultMatchThreshold, TopK: defaultMatchTopK}
}

// Outcome is the resolver's verdict for one capture.
type Outcome struct {
	Matched bool `json:"matched"`
	// Detection is the winning hit when Matched.
	Detection *Detection `json:"detection,omitempty"`
	// Candidates is the top-K window, highest confidence first.
	Candidates []Detection `json:"candidates"`
}

// Resolver decides whether a detection list satisfies a concept.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultMatchTopK
	}
	return Resolver{cfg: cfg}
}

// Config returns the resolver's settings.
func (r Resolver) Config() ResolverConfig { return r.cfg }

// Resolve picks the highest-ranked detection in the top-K window whose
// label contains one of the concept's synonyms and whose confidence is
// strictly above the threshold.
func (r Resolver) Resolve(c Concept, dets []Detection) Outcome {
	ranked := rankDetections(dets)
	if len(ranked) > r.cfg.TopK {
		ranked = ranked[:r.cfg.TopK]
	}

	fold := cases.Fold()
	terms := synonymTerms(c, fold)

	for i := range ranked {
		d := ranked[i]
		if d.Confidence <= r.cfg.Threshold {
			continue
		}
		label := fold.String(d.Label)
		for _, t := range terms {
			if strings.Contains(label, t) {
				return Outcome{Matched: true, Detection: &d, Candidates: ranked}
			}
		}
	}
	return Outcome{Candidates: ranked}
}

// synonymTerms returns the case-folded, non-empty synonyms of c, falling
// back to the target itself.
func synonymTerms(c Concept, fold cases.Caser) []string {
	terms := make([]string, 0, len(c.Synonyms)+1)
	for _, s := range c.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, fold.String(s))
		}
	}
	if len(terms) == 0 && strings.TrimSpace(c.Target) != "" {
		terms = append(terms, fold.String(strings.TrimSpace(c.Target)))
	}
	return terms
}

// rankDetections returns a copy of dets sorted by confidence, highest
// first, keeping arrival order among ties. The result is never nil.
func rankDetections(dets []Detection) []Detection {
	ranked := make([]Detection, len(dets))
	copy(ranked, dets)
	slices.SortStableFunc(ranked, func(a, b Detection) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return ranked
}
