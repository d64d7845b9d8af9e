package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"

	"opsagent/agent"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements the planning oracle against the Gemini
// generateContent API.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGeminiClient creates a client. An empty baseURL uses the public API
// endpoint; tests point it at a local stub.
func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiClient{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Request/response shapes for generateContent.

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// generate sends one prompt and returns the first candidate's text, retrying
// transient transport failures.
func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := withRetry(ctx, oracleRetryPolicy, func(ctx context.Context) error {
		var err error
		text, err = c.generateOnce(ctx, prompt)
		return err
	})
	return text, err
}

func (c *GeminiClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", serr.Wrap(err, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", serr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transient(serr.Wrap(err, "oracle request failed"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transient(serr.Wrap(err, "failed to read oracle response"))
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Oracle returned non-OK status", "status", resp.Status)
		statusErr := serr.New("oracle error", "status", resp.Status, "body", truncate(string(respBody), 500))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", transient(statusErr)
		}
		return "", statusErr
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", serr.Wrap(err, "failed to decode oracle response")
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", serr.New("oracle response contained no candidates")
	}
	return strings.TrimSpace(gr.Candidates[0].Content.Parts[0].Text), nil
}

// Plan requests a task decomposition.
func (c *GeminiClient) Plan(ctx context.Context, task string, sc SessionContext) (*Plan, error) {
	text, err := c.generate(ctx, planPrompt(task, sc))
	if err != nil {
		return nil, err
	}
	return ParsePlan(text)
}

// GenerateCommands requests commands for one subtask.
func (c *GeminiClient) GenerateCommands(ctx context.Context, task, subtask string, sc SessionContext) ([]string, error) {
	text, err := c.generate(ctx, commandPrompt(task, subtask, sc))
	if err != nil {
		return nil, err
	}
	commands := ParseCommands(text)
	if len(commands) == 0 {
		return nil, serr.New("no commands could be extracted from oracle response")
	}
	return commands, nil
}

// Verify requests a judgment of a command's outcome.
func (c *GeminiClient) Verify(ctx context.Context, command string, result agent.CommandResult) (*Verification, error) {
	text, err := c.generate(ctx, verifyPrompt(command, result))
	if err != nil {
		return nil, err
	}
	return ParseVerification(text)
}

// ShouldContinueAfterFailure asks whether to proceed past a failed subtask.
func (c *GeminiClient) ShouldContinueAfterFailure(ctx context.Context, failedSubtask, nextSubtask, systemState string) (*ContinueDecision, error) {
	text, err := c.generate(ctx, continuePrompt(failedSubtask, nextSubtask, systemState))
	if err != nil {
		return nil, err
	}
	return ParseContinueDecision(text)
}

// IsObjectiveAchieved asks whether the overall goal is already satisfied.
func (c *GeminiClient) IsObjectiveAchieved(ctx context.Context, task, subtask string, result agent.CommandResult) (*Objective, error) {
	text, err := c.generate(ctx, objectivePrompt(task, subtask, result))
	if err != nil {
		return nil, err
	}
	return ParseObjective(text)
}

// Converse answers a conversational message that is not a task.
func (c *GeminiClient) Converse(ctx context.Context, message string) (string, error) {
	return c.generate(ctx, conversePrompt(message))
}

// Prompt builders.

func planPrompt(task string, sc SessionContext) string {
	var b strings.Builder
	b.WriteString("# TASK PLANNING AND ANALYSIS AGENT\n\n## CONTEXT INFORMATION\n")
	fmt.Fprintf(&b, "- User Task: %s\n- Current Directory: %s\n- OS: %s\n", task, sc.WorkingDir, platformLabel(sc))
	if len(sc.RecentCommands) > 0 {
		fmt.Fprintf(&b, "- Previous Commands: %s\n", strings.Join(sc.RecentCommands, ", "))
	}
	b.WriteString(`
## INSTRUCTIONS
Break the task into logical subtasks. Return a JSON object:
{
  "task_summary": "Brief summary of the task",
  "subtasks": [
    {
      "description": "Subtask description",
      "approach": "How you will accomplish this subtask",
      "commands": ["command1", "command2"],
      "rationale": "Why this approach is best",
      "potential_issues": "What might go wrong",
      "required_resources": ["resource1"],
      "fallback_commands": ["fallback1"]
    }
  ],
  "estimated_steps": 1
}
`)
	return b.String()
}

func commandPrompt(task, subtask string, sc SessionContext) string {
	var b strings.Builder
	b.WriteString("# TERMINAL COMMAND GENERATOR\n\n## CONTEXT\n")
	taskContext := task
	if subtask != "" {
		taskContext = task + " - Subtask: " + subtask
	}
	fmt.Fprintf(&b, "- Task: %s\n- Current Directory: %s\n- OS: %s\n", taskContext, sc.WorkingDir, platformLabel(sc))
	if len(sc.RecentCommands) > 0 {
		b.WriteString("- Recent Commands:\n")
		for _, cmd := range sc.RecentCommands {
			fmt.Fprintf(&b, "  %s\n", cmd)
		}
	}
	if len(sc.RecentErrors) > 0 {
		b.WriteString("- Recent Errors:\n")
		for _, e := range sc.RecentErrors {
			fmt.Fprintf(&b, "  Command: %s, Error: %s\n", e.Command, truncate(e.Error, 200))
		}
	}
	b.WriteString(`
## INSTRUCTIONS
Generate the most efficient terminal commands to accomplish this task.
Return ONLY raw, executable commands, one per line, with NO explanations,
backticks, or markdown. Commands must suit the user's operating system.
`)
	return b.String()
}

func verifyPrompt(command string, result agent.CommandResult) string {
	return fmt.Sprintf(`# COMMAND EXECUTION VERIFICATION

## COMMAND CONTEXT
Command: %s
Exit Code: %d
Output:
%s
Errors:
%s

## INSTRUCTIONS
Analyze the command execution result. Return a JSON object:
{
    "success": true/false,
    "system_state": "description of current state",
    "next_action": {
        "action": "continue/retry/skip/abort",
        "reason": "why this action was chosen",
        "fallback_command": "alternative command if retrying"
    },
    "diagnostics": {
        "is_installed": true/false,
        "error_type": "none/not_found/permission/network/etc",
        "suggested_fix": "what needs to be done"
    }
}
`, command, result.ExitCode, truncate(result.Stdout, 4000), truncate(result.Stderr, 2000))
}

func continuePrompt(failedSubtask, nextSubtask, systemState string) string {
	return fmt.Sprintf(`# SUBTASK CONTINUATION DECISION

Current subtask failed but there are more subtasks available.
Should we continue to the next subtask?

Context:
- Failed Subtask: %s
- Next Subtask: %s
- System State: %s

Return a JSON object:
{
    "should_continue": true/false,
    "reason": "why we should or shouldn't continue"
}
`, failedSubtask, nextSubtask, systemState)
}

func objectivePrompt(task, subtask string, result agent.CommandResult) string {
	return fmt.Sprintf(`# TASK CONTINUATION EVALUATION

Evaluate if the main task objective has been achieved and execution should stop.

Context:
- Main Task: %s
- Current Subtask: %s
- Command Output: %s

Return a JSON object:
{
    "is_complete": true/false,
    "reason": "why the task is complete or needs to continue",
    "result": "summary of findings so far"
}
`, task, subtask, truncate(result.Stdout, 4000))
}

func conversePrompt(message string) string {
	return fmt.Sprintf(`# CONVERSATIONAL RESPONSE

You are an AI terminal assistant that helps users with computer tasks.
The user has sent a conversational message rather than a task request.
Respond naturally and concisely. Don't provide commands unless asked.

User message: %s
`, message)
}

func platformLabel(sc SessionContext) string {
	if sc.Platform != "" {
		return sc.Platform
	}
	return runtime.GOOS
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
