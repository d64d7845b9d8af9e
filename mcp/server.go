// Package mcp exposes the engine over the Model Context Protocol on stdio,
// so other agents can run single commands, full orchestrated tasks, and
// command chains through it.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rohanthewiz/logger"

	"opsagent/agent"
	"opsagent/chain"
	"opsagent/executor"
	"opsagent/oracle"
	"opsagent/planner"
)

// Server handles MCP protocol communication over stdio.
type Server struct {
	sess   *agent.Session
	exec   *executor.Executor
	oracle oracle.Client
}

// NewServer creates a new MCP server instance.
func NewServer(sess *agent.Session, exec *executor.Executor, client oracle.Client) *Server {
	return &Server{
		sess:   sess,
		exec:   exec,
		oracle: client,
	}
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run() error {
	mcpServer := server.NewMCPServer(
		"opsagent",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	logger.Info("MCP server starting on stdio")

	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// run_command
	mcpServer.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Execute a single shell command and return its full result record"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The shell command to execute"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Timeout in seconds, default 30"),
			mcp.Min(0),
		),
	), s.handleRunCommand)

	// run_task
	mcpServer.AddTool(mcp.NewTool("run_task",
		mcp.WithDescription("Plan and execute a natural-language task: decompose into subtasks, run the commands, verify each result"),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("The task to accomplish, in natural language"),
		),
	), s.handleRunTask)

	// run_chain
	mcpServer.AddTool(mcp.NewTool("run_chain",
		mcp.WithDescription("Execute a command chain defined as a JSON list of steps with optional conditions"),
		mcp.WithString("steps",
			mcp.Required(),
			mcp.Description(`JSON array of steps: [{"command": "...", "name": "...", "condition": "success|error|exit_code == N"}]`),
		),
		mcp.WithBoolean("fail_fast",
			mcp.Description("Stop at the first failing step, default false"),
		),
	), s.handleRunChain)

	// list_history
	mcpServer.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List recent command executions from this session"),
		mcp.WithNumber("limit",
			mcp.Description("Number of records to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListHistory)

	logger.Info("MCP tools registered", "count", 4)
}

// handleRunCommand handles the run_command tool call.
func (s *Server) handleRunCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(request, "command", "")
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}

	timeout := time.Duration(mcp.ParseFloat64(request, "timeout_seconds", 0) * float64(time.Second))
	result := s.exec.RunWithTimeout(ctx, command, timeout)
	s.sess.AddCommand(result)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleRunTask handles the run_task tool call.
func (s *Server) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := mcp.ParseString(request, "task", "")
	if task == "" {
		return mcp.NewToolResultError("task is required"), nil
	}

	// MCP callers cannot answer approval prompts; tasks run unattended.
	orch := planner.New(s.sess, s.exec, s.oracle, nil, nil)
	state := orch.RunTask(ctx, task)

	result := fmt.Sprintf("Task: %s\nStatus: %s\n", state.Description, state.Status)
	if state.Output != "" {
		result += fmt.Sprintf("Output: %s\n", state.Output)
	}
	if state.Error != "" {
		result += fmt.Sprintf("Error: %s\n", state.Error)
	}
	for _, sub := range state.Subtasks {
		result += fmt.Sprintf("  [%s] %s %s\n", sub.Status, sub.ID, sub.Description)
	}
	return mcp.NewToolResultText(result), nil
}

// handleRunChain handles the run_chain tool call.
func (s *Server) handleRunChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepsJSON := mcp.ParseString(request, "steps", "")
	if stepsJSON == "" {
		return mcp.NewToolResultError("steps is required"), nil
	}

	var steps []*chain.Step
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid steps JSON: %v", err)), nil
	}

	c := chain.New("mcp-chain", s.sess.WorkingDir())
	for _, st := range steps {
		added := c.Add(st.Command)
		added.Name = st.Name
		added.Condition = st.Condition
		added.Timeout = st.Timeout
	}

	failFast := mcp.ParseBoolean(request, "fail_fast", false)
	report := c.Run(ctx, s.exec, failFast)

	// Executed steps join the session log so list_history reflects them.
	for _, step := range report.Steps {
		if step.Result != nil && (step.Status == chain.StepSuccess || step.Status == chain.StepError) {
			s.sess.AddCommand(*step.Result)
		}
	}

	return mcp.NewToolResultText(report.Summary()), nil
}

// handleListHistory handles the list_history tool call.
func (s *Server) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 20))

	log := s.sess.CommandLog()
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	if len(log) == 0 {
		return mcp.NewToolResultText("No commands executed yet"), nil
	}

	result := fmt.Sprintf("Last %d command(s):\n\n", len(log))
	for _, r := range log {
		result += fmt.Sprintf("[exit %d, %.2fs] %s\n", r.ExitCode, r.ExecutionTime, r.Command)
	}
	return mcp.NewToolResultText(result), nil
}
