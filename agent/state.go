package agent

// MaxChallenges bounds the number of critique rounds a sub-task loop may run
// before it is forced to terminate, including the first attempt. Overridable
// via Config.MaxChallenges.
const MaxChallenges = 3

// MainState is the top-level run state threaded through the plan -> fan-out
// -> aggregate graph. Field reducer tags are read by graph.Run to merge node
// deltas.
type MainState struct {
	Question       string          `reducer:"overwrite"`
	Plan           Plan            `reducer:"overwrite"`
	CurrentStep    int             `reducer:"overwrite"`
	SubtaskResults []SubtaskResult `reducer:"append"`
	LastAnswer     string          `reducer:"overwrite"`
}

// mainStateOutputs lists, per node name, the MainState fields that node is
// allowed to write. Used when compiling the top-level graph.
var (
	planNodeOutputs       = []string{"Plan"}
	fanOutNodeOutputs     = []string{"SubtaskResults"}
	aggregatorNodeOutputs = []string{"LastAnswer"}
)

// SubGraphState is the per-sub-task state threaded through the compiled
// Tool Selector -> Tool Executor -> Answer Synthesizer -> Reflector loop.
type SubGraphState struct {
	Question          string                   `reducer:"overwrite"`
	Plan              Plan                     `reducer:"overwrite"`
	Subtask           string                   `reducer:"overwrite"`
	Messages          []ChatMessage            `reducer:"overwrite"`
	ChallengeCount    int                      `reducer:"max"`
	IsCompleted       bool                     `reducer:"overwrite"`
	ToolResults       [][]ToolInvocationResult `reducer:"append"`
	ReflectionResults []Reflection             `reducer:"append"`
	SubtaskAnswer     string                   `reducer:"overwrite"`
}

var (
	selectorNodeOutputs    = []string{"Messages"}
	executorNodeOutputs    = []string{"Messages", "ToolResults"}
	synthesizerNodeOutputs = []string{"Messages", "SubtaskAnswer"}
	reflectorNodeOutputs   = []string{"Messages", "ReflectionResults", "ChallengeCount", "IsCompleted", "SubtaskAnswer"}
)

// toSubtaskResult converts a terminated SubGraphState into the record
// appended to MainState.SubtaskResults.
func toSubtaskResult(s SubGraphState) SubtaskResult {
	return SubtaskResult{
		Description:       s.Subtask,
		ToolResults:       s.ToolResults,
		ReflectionResults: s.ReflectionResults,
		IsCompleted:       s.IsCompleted,
		Answer:            s.SubtaskAnswer,
		ChallengeCount:    s.ChallengeCount,
	}
}
