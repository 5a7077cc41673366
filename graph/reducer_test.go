package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count   int      `reducer:"max"`
	Notes   []string `reducer:"append"`
	Answer  string
	Visited int
}

func TestRunOverwriteReducer(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("set")
	b.AddNode("set", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Answer": "done"}, nil
	}, []string{"Answer"}, "end")
	b.SetTerminal("end")
	g, err := b.Compile()
	require.NoError(t, err)

	out, err := Run(context.Background(), g, counterState{Answer: "stale"})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Answer)
}

func TestRunAppendReducerIsOrderStable(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("a")
	b.AddNode("a", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Notes": []string{"a"}}, nil
	}, []string{"Notes"}, "b")
	b.AddNode("b", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Notes": []string{"b"}}, nil
	}, []string{"Notes"}, "end")
	b.SetTerminal("end")
	g, err := b.Compile()
	require.NoError(t, err)

	out, err := Run(context.Background(), g, counterState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Notes)
}

func TestRunMaxReducerKeepsLarger(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("a")
	b.AddNode("a", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Count": 3}, nil
	}, []string{"Count"}, "b")
	b.AddNode("b", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Count": 1}, nil
	}, []string{"Count"}, "end")
	b.SetTerminal("end")
	g, err := b.Compile()
	require.NoError(t, err)

	out, err := Run(context.Background(), g, counterState{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
}

func TestRunRejectsUndeclaredWrite(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("a")
	b.AddNode("a", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Answer": "sneaky"}, nil
	}, []string{"Notes"}, "end")
	b.SetTerminal("end")
	g, err := b.Compile()
	require.NoError(t, err)

	_, err = Run(context.Background(), g, counterState{})
	require.Error(t, err)
	var invErr *InvariantViolationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "Answer", invErr.Field)
}

func TestRunConditionalRouting(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("loop")
	b.AddConditionalNode("loop", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{"Visited": s.Visited + 1}, nil
	}, []string{"Visited"}, func(s counterState) string {
		if s.Visited >= 3 {
			return "end"
		}
		return "loop"
	})
	b.SetTerminal("end")
	g, err := b.Compile()
	require.NoError(t, err)

	out, err := Run(context.Background(), g, counterState{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Visited)
}

func TestCompileRejectsMissingTerminal(t *testing.T) {
	t.Parallel()

	b := NewBuilder[counterState]("a")
	b.AddNode("a", func(_ context.Context, s counterState) (Delta, error) {
		return Delta{}, nil
	}, nil, "end")
	_, err := b.Compile()
	require.Error(t, err)
	var compErr *CompileError
	require.ErrorAs(t, err, &compErr)
}
