package oracle

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rohanthewiz/serr"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\})`)
	codeFence  = regexp.MustCompile("```(?:powershell|sh|bash|cmd|bat|shell)?\n?")
)

// ExtractJSON pulls the JSON object out of a model response, which may be
// wrapped in a markdown fence or surrounded by prose.
func ExtractJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bareJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// ParsePlan decodes a plan from raw model output. A plan with no subtasks is
// malformed.
func ParsePlan(text string) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &plan); err != nil {
		return nil, serr.Wrap(err, "failed to parse plan response")
	}
	if len(plan.Subtasks) == 0 {
		return nil, serr.New("plan response contained no subtasks")
	}
	return &plan, nil
}

// ParseVerification decodes a verification verdict from raw model output.
func ParseVerification(text string) (*Verification, error) {
	var v Verification
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &v); err != nil {
		return nil, serr.Wrap(err, "failed to parse verification response")
	}
	return &v, nil
}

// ParseContinueDecision decodes a continuation decision.
func ParseContinueDecision(text string) (*ContinueDecision, error) {
	var d ContinueDecision
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &d); err != nil {
		return nil, serr.Wrap(err, "failed to parse continuation response")
	}
	return &d, nil
}

// ParseObjective decodes an objective-achieved evaluation.
func ParseObjective(text string) (*Objective, error) {
	var o Objective
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &o); err != nil {
		return nil, serr.Wrap(err, "failed to parse objective response")
	}
	return &o, nil
}

// explanationPrefixes mark lines the model emitted as commentary rather than
// commands.
var explanationPrefixes = []string{"Note", "For", "The", "This", "To ", "You can", "#", "-", "*", ">"}

// ParseCommands extracts raw executable commands from model output, dropping
// markdown fences, bullets, and explanation lines.
func ParseCommands(text string) []string {
	text = codeFence.ReplaceAllString(text, "")
	var commands []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isExplanation(line) {
			continue
		}
		line = strings.TrimPrefix(line, "$ ")
		commands = append(commands, line)
	}
	return commands
}

func isExplanation(line string) bool {
	for _, p := range explanationPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return strings.Contains(line, "Note:") || strings.Contains(line, "This command")
}
