// Package classifier reduces a vector of per-channel band ratios to a single
// eyes open / eyes closed decision by ensemble vote.
//
// Every policy votes per channel with vote(r) = 1 when r < threshold, so a
// LOW band ratio counts as evidence for open eyes. This matches the behaviour
// the decision table was tuned against and is deliberately kept, even though
// the spectral "strong" label reads the other way round.
package classifier

import (
	"fmt"
	"sort"
	"strings"

	"eyedrive/internal/fault"
)

// Decision is the binary outcome of one classification cycle.
type Decision int

const (
	Closed Decision = 0
	Open   Decision = 1
)

// Bit returns "0" for closed and "1" for open.
func (d Decision) Bit() string {
	if d == Open {
		return "1"
	}
	return "0"
}

func (d Decision) String() string {
	if d == Open {
		return "open"
	}
	return "closed"
}

// Kind names a voting policy.
type Kind string

const (
	KindOr       Kind = "or"
	KindMajority Kind = "majority"
	KindWeighted Kind = "weighted"
	KindTopK     Kind = "topk"
)

// Defaults for the policy parameters.
const (
	DefaultThreshold    = 0.5
	DefaultK            = 5
	DefaultWeightCutoff = 0.1
)

// DefaultWeights are the channel-importance weights for the weighted policy.
// They were fitted on five selected channels, outer channels near zero.
var DefaultWeights = []float64{0.134, 0.073, 0.033, 0.0001, 0.0001}

// Policy is a voting policy together with its parameters.
type Policy struct {
	Kind         Kind      `mapstructure:"policy" yaml:"policy"`
	Threshold    float64   `mapstructure:"threshold" yaml:"threshold"`         // Per-channel vote threshold
	K            int       `mapstructure:"k" yaml:"k"`                         // Channels kept by topk
	Weights      []float64 `mapstructure:"weights" yaml:"weights"`             // Per-channel weights for weighted
	WeightCutoff float64   `mapstructure:"weight_cutoff" yaml:"weight_cutoff"` // Weighted score must exceed this
	Channels     []int     `mapstructure:"channels" yaml:"channels"`           // Optional subset considered, nil = all
}

// DefaultPolicy returns top-5 majority at threshold 0.5.
func DefaultPolicy() Policy {
	return Policy{
		Kind:         KindTopK,
		Threshold:    DefaultThreshold,
		K:            DefaultK,
		Weights:      append([]float64(nil), DefaultWeights...),
		WeightCutoff: DefaultWeightCutoff,
	}
}

// ShapeMismatchError reports a weight vector whose length does not match the
// number of channels being voted on.
type ShapeMismatchError struct {
	Weights  int
	Channels int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("weighted vote: %d weights for %d channels", e.Weights, e.Channels)
}

func (e *ShapeMismatchError) Unwrap() error {
	return fault.ErrConfiguration
}

// Outcome carries the decision and the evidence behind it.
type Outcome struct {
	Decision Decision
	Selected []int     // Channel indices that voted, in vote order
	Votes    []int     // 1 = open, aligned with Selected
	Score    float64   // Vote count, or weighted score for the weighted policy
	Ratios   []float64 // Ratios of the selected channels
}

func (o Outcome) String() string {
	parts := make([]string, len(o.Selected))
	for i, ch := range o.Selected {
		parts[i] = fmt.Sprintf("ch%d=%.3f:%d", ch+1, o.Ratios[i], o.Votes[i])
	}
	return fmt.Sprintf("%s (score %.4g) [%s]", o.Decision, o.Score, strings.Join(parts, " "))
}

type decider func(p Policy, idx []int, ratios []float64) (Outcome, error)

var deciders = map[Kind]decider{
	KindOr:       decideOr,
	KindMajority: decideMajority,
	KindWeighted: decideWeighted,
	KindTopK:     decideTopK,
}

// Kinds lists the registered policy kinds.
func Kinds() []Kind {
	out := make([]Kind, 0, len(deciders))
	for k := range deciders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks the policy parameters that do not depend on the input.
func (p Policy) Validate() error {
	if _, ok := deciders[p.Kind]; !ok {
		return fault.Configf("unknown voting policy %q (want one of %v)", p.Kind, Kinds())
	}
	if p.Kind == KindTopK && p.K < 1 {
		return fault.Configf("topk policy needs k >= 1, got %d", p.K)
	}
	if p.Kind == KindWeighted && len(p.Weights) == 0 {
		return fault.Configf("weighted policy needs a weight vector")
	}
	for _, ch := range p.Channels {
		if ch < 0 {
			return fault.Configf("negative channel index %d", ch)
		}
	}
	return nil
}

// Decide returns the decision for ratios.
func (p Policy) Decide(ratios []float64) (Decision, error) {
	out, err := p.Explain(ratios)
	if err != nil {
		return Closed, err
	}
	return out.Decision, nil
}

// Explain is Decide with the per-channel votes attached.
func (p Policy) Explain(ratios []float64) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}

	idx, err := p.considered(len(ratios))
	if err != nil {
		return Outcome{}, err
	}
	return deciders[p.Kind](p, idx, ratios)
}

// considered returns the channel indices the policy looks at.
func (p Policy) considered(n int) ([]int, error) {
	if len(p.Channels) == 0 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	for _, ch := range p.Channels {
		if ch >= n {
			return nil, fault.Configf("channel index %d out of range for %d channels", ch, n)
		}
	}
	return append([]int(nil), p.Channels...), nil
}

func (p Policy) vote(r float64) int {
	if r < p.Threshold {
		return 1
	}
	return 0
}

// tally votes the channels in idx and fills an outcome without a decision.
func (p Policy) tally(idx []int, ratios []float64) Outcome {
	out := Outcome{
		Selected: idx,
		Votes:    make([]int, len(idx)),
		Ratios:   make([]float64, len(idx)),
	}
	for i, ch := range idx {
		out.Ratios[i] = ratios[ch]
		out.Votes[i] = p.vote(ratios[ch])
		out.Score += float64(out.Votes[i])
	}
	return out
}

// majorityOf reports whether votes reach floor(n/2)+1.
func majorityOf(votes float64, n int) bool {
	return votes >= float64(n/2+1)
}

func decideOr(p Policy, idx []int, ratios []float64) (Outcome, error) {
	out := p.tally(idx, ratios)
	if out.Score > 0 {
		out.Decision = Open
	}
	return out, nil
}

func decideMajority(p Policy, idx []int, ratios []float64) (Outcome, error) {
	out := p.tally(idx, ratios)
	if majorityOf(out.Score, len(idx)) {
		out.Decision = Open
	}
	return out, nil
}

func decideWeighted(p Policy, idx []int, ratios []float64) (Outcome, error) {
	if len(p.Weights) != len(idx) {
		return Outcome{}, &ShapeMismatchError{Weights: len(p.Weights), Channels: len(idx)}
	}

	out := p.tally(idx, ratios)
	out.Score = 0
	for i, v := range out.Votes {
		out.Score += p.Weights[i] * float64(v)
	}
	if out.Score > p.WeightCutoff {
		out.Decision = Open
	}
	return out, nil
}

func decideTopK(p Policy, idx []int, ratios []float64) (Outcome, error) {
	// Lowest ratios first, ties keep index order
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ratios[sorted[i]] < ratios[sorted[j]]
	})
	if len(sorted) > p.K {
		sorted = sorted[:p.K]
	}

	out := p.tally(sorted, ratios)
	if majorityOf(out.Score, p.K) {
		out.Decision = Open
	}
	return out, nil
}
