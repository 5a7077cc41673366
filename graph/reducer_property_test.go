package graph

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestMaxReducerProperty checks the max reducer's defining property directly
// against applyDelta: after merging a sequence of Count deltas, the field
// holds the maximum of the initial value and every delta, regardless of
// submission order.
func TestMaxReducerProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merged Count equals the running maximum", prop.ForAll(
		func(initial int, deltas []int) bool {
			state := counterState{Count: initial}
			want := initial
			allowed := map[string]bool{"Count": true}
			for _, d := range deltas {
				var err error
				state, err = applyDelta(state, Delta{"Count": d}, allowed, "n")
				if err != nil {
					return false
				}
				if d > want {
					want = d
				}
			}
			return state.Count == want
		},
		gen.IntRange(-1000, 1000),
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}

// TestAppendReducerProperty checks that the append reducer preserves every
// submitted note in submission order, with no drops or reordering.
func TestAppendReducerProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("merged Notes is the concatenation of every delta in order", prop.ForAll(
		func(batches [][]string) bool {
			state := counterState{}
			var want []string
			allowed := map[string]bool{"Notes": true}
			for _, batch := range batches {
				var err error
				state, err = applyDelta(state, Delta{"Notes": batch}, allowed, "n")
				if err != nil {
					return false
				}
				want = append(want, batch...)
			}
			if len(state.Notes) != len(want) {
				return false
			}
			for i := range want {
				if state.Notes[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(gen.AlphaString())),
	))

	properties.TestingRun(t)
}

// TestRunRejectsUndeclaredWriteProperty checks, across many single-field
// graphs, that writing to any field outside the node's declared outputs is
// always rejected, regardless of which field or value is involved.
func TestRunRejectsUndeclaredWriteProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("a node writing outside its declared outputs always fails", prop.ForAll(
		func(notes []string) bool {
			b := NewBuilder[counterState]("a")
			b.AddNode("a", func(_ context.Context, s counterState) (Delta, error) {
				return Delta{"Notes": notes}, nil
			}, []string{"Count"}, "end")
			b.SetTerminal("end")
			g, err := b.Compile()
			if err != nil {
				return false
			}
			_, err = Run(context.Background(), g, counterState{})
			var invErr *InvariantViolationError
			return err != nil && asInvariantViolation(err, &invErr)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func asInvariantViolation(err error, target **InvariantViolationError) bool {
	ive, ok := err.(*InvariantViolationError)
	if !ok {
		return false
	}
	*target = ive
	return true
}
