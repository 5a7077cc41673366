package agent

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// promptVersion is embedded in the plan cache key so a prompt wording change
// invalidates previously cached plans for the same question.
const promptVersion = "v1"

var (
	planSystemPrompt = strings.TrimSpace(`
You are a planning assistant. Decompose the user's question into an ordered
list of concrete sub-tasks. Each sub-task should be independently
researchable. Respond by calling emit_result with {"subtasks": [...]}.
`)

	planUserTemplate = template.Must(template.New("plan_user").Parse(
		`Question: {{.Question}}`))

	subtaskSystemPrompt = strings.TrimSpace(`
You are a focused research assistant working on one sub-task of a larger
plan. Use the available tools to gather evidence before answering. Call
exactly one tool per turn.
`)

	subtaskUserTemplate = template.Must(template.New("subtask_user").Parse(
		`Overall question: {{.Question}}
Full plan: {{range $i, $s := .Plan}}{{if $i}}; {{end}}{{$i}}. {{$s}}{{end}}
Your sub-task: {{.Subtask}}`))

	retryUserPrompt = strings.TrimSpace(`
The previous tool call and critique did not resolve the sub-task. Select a
different tool, or the same tool with different arguments, and try again.
`)

	reflectionUserPrompt = strings.TrimSpace(`
Review the tool results above. Decide whether the sub-task is now answered.
Respond by calling emit_result with {"is_completed": bool, "critique": str}.
`)

	aggregatorSystemPrompt = strings.TrimSpace(`
You are a summarizer. Combine the sub-task answers below into one coherent,
direct answer to the original question. Do not mention the planning process.
`)

	aggregatorUserTemplate = template.Must(template.New("aggregator_user").Parse(
		`Question: {{.Question}}
Plan: {{range $i, $s := .Plan}}{{if $i}}; {{end}}{{$i}}. {{$s}}{{end}}
Sub-task findings:
{{range .Findings}}- {{.Description}}: {{.Answer}}
{{end}}`))
)

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Templates above are fixed and tested; a render failure indicates a
		// programmer error, not a runtime condition callers can recover from.
		panic(fmt.Sprintf("agent: prompt template %q: %v", tmpl.Name(), err))
	}
	return buf.String()
}

type aggregatorFinding struct {
	Description string
	Answer      string
}
