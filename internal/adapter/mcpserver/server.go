// Package mcpserver exposes detection, command composition and task runs as
// MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"uetools/internal/domain"
	"uetools/internal/usecase/session"
	"uetools/internal/usecase/task"
)

// Operations is the subset of the operations service the tools call.
type Operations interface {
	Detect(ctx context.Context) (session.Snapshot, error)
	Compose(ctx context.Context, req domain.OperationRequest) (domain.ComposedCommand, error)
	Run(ctx context.Context, req domain.OperationRequest) (*task.Handle, error)
	Plugins() ([]domain.PluginDescriptor, error)
}

// TaskQueries reads tracked tasks.
type TaskQueries interface {
	List() []domain.TaskRecord
	Output(name string, offset, limit int) (*domain.TaskOutput, error)
}

// Server wraps an MCP server with the uetools tools registered.
type Server struct {
	mcp    *server.MCPServer
	ops    Operations
	tasks  TaskQueries
	logger *slog.Logger
}

// New creates a Server and registers its tools.
func New(ops Operations, tasks TaskQueries, version string, logger *slog.Logger) *Server {
	s := &Server{
		mcp:    server.NewMCPServer("uetools", version, server.WithToolCapabilities(false)),
		ops:    ops,
		tasks:  tasks,
		logger: logger,
	}
	s.register()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP on in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) register() {
	kinds := make([]string, len(domain.OperationKinds))
	for i, k := range domain.OperationKinds {
		kinds[i] = string(k)
	}
	opParams := []mcp.ToolOption{
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kinds...), mcp.Description("Operation to run")),
		mcp.WithString("target", mcp.Enum(string(domain.TargetEditor), string(domain.TargetGame)),
			mcp.Description("Build target, default Editor")),
		mcp.WithString("configuration", mcp.Enum(string(domain.ConfigDevelopment), string(domain.ConfigDebug)),
			mcp.Description("Build configuration, default Development")),
		mcp.WithString("module", mcp.Description("Module name for build-module")),
		mcp.WithBoolean("trace", mcp.Description("Add Unreal Insights trace flags to launch-game")),
	}

	s.mcp.AddTool(mcp.NewTool("detect",
		mcp.WithDescription("Detect the Unreal project in the workspace and its engine installation"),
	), s.handleDetect)

	s.mcp.AddTool(mcp.NewTool("compose",
		append([]mcp.ToolOption{mcp.WithDescription("Show the command an operation would run, without running it")}, opParams...)...,
	), s.handleCompose)

	s.mcp.AddTool(mcp.NewTool("run",
		append([]mcp.ToolOption{mcp.WithDescription("Start an operation as a background task")}, opParams...)...,
	), s.handleRun)

	s.mcp.AddTool(mcp.NewTool("tasks",
		mcp.WithDescription("List tracked tasks and their status"),
	), s.handleTasks)

	s.mcp.AddTool(mcp.NewTool("task_output",
		mcp.WithDescription("Read captured output of a task by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Task name, e.g. \"Build Project\"")),
		mcp.WithNumber("offset", mcp.Description("First line to return")),
		mcp.WithNumber("limit", mcp.Description("Maximum lines to return")),
	), s.handleTaskOutput)

	s.mcp.AddTool(mcp.NewTool("plugins",
		mcp.WithDescription("List the plugins of the detected project"),
	), s.handlePlugins)
}

type detectResult struct {
	Project           string `json:"project"`
	ManifestPath      string `json:"manifest_path"`
	EngineAssociation string `json:"engine_association"`
	EngineRoot        string `json:"engine_root,omitempty"`
	BuildTool         string `json:"build_tool,omitempty"`
	Editor            string `json:"editor,omitempty"`
}

func (s *Server) handleDetect(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.ops.Detect(ctx)
	if err != nil {
		return toolError(err), nil
	}
	res := detectResult{
		Project:           snap.Project.PrimaryModule(),
		ManifestPath:      snap.Project.ManifestPath,
		EngineAssociation: snap.Project.EngineAssociation,
	}
	if snap.Installation != nil {
		res.EngineRoot = snap.Installation.RootPath
	}
	if snap.Paths != nil {
		res.BuildTool = snap.Paths.BuildTool
		res.Editor = snap.Paths.Editor
	}
	return jsonResult(res)
}

type composeResult struct {
	Task             string   `json:"task"`
	ShellLine        string   `json:"shell_line"`
	Argv             []string `json:"argv"`
	WorkingDirectory string   `json:"working_directory"`
	Variant          string   `json:"variant"`
}

func (s *Server) handleCompose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opReq, err := operationRequest(req)
	if err != nil {
		return toolError(err), nil
	}
	cmd, err := s.ops.Compose(ctx, opReq)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(composeResult{
		Task:             opReq.TaskName(),
		ShellLine:        cmd.ShellLine(),
		Argv:             append([]string{cmd.Executable}, cmd.Argv()...),
		WorkingDirectory: cmd.WorkingDirectory,
		Variant:          cmd.Variant,
	})
}

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opReq, err := operationRequest(req)
	if err != nil {
		return toolError(err), nil
	}
	h, err := s.ops.Run(ctx, opReq)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]string{"id": h.ID, "name": h.Name, "status": string(domain.TaskStatusRunning)})
}

func (s *Server) handleTasks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records := s.tasks.List()
	if records == nil {
		records = []domain.TaskRecord{}
	}
	return jsonResult(records)
}

func (s *Server) handleTaskOutput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.tasks.Output(name, req.GetInt("offset", 0), req.GetInt("limit", task.DefaultOutputLimit))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(out)
}

func (s *Server) handlePlugins(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plugins, err := s.ops.Plugins()
	if err != nil {
		return toolError(err), nil
	}
	if plugins == nil {
		plugins = []domain.PluginDescriptor{}
	}
	return jsonResult(plugins)
}

func operationRequest(req mcp.CallToolRequest) (domain.OperationRequest, error) {
	kind, err := domain.ParseOperationKind(req.GetString("kind", ""))
	if err != nil {
		return domain.OperationRequest{}, err
	}
	target, err := domain.ParseTarget(req.GetString("target", ""))
	if err != nil {
		return domain.OperationRequest{}, err
	}
	cfg, err := domain.ParseConfiguration(req.GetString("configuration", ""))
	if err != nil {
		return domain.OperationRequest{}, err
	}
	return domain.OperationRequest{
		Kind:          kind,
		Target:        target,
		Configuration: cfg,
		ModuleName:    req.GetString("module", ""),
		Trace:         req.GetBool("trace", false),
	}, nil
}

// toolError reports err to the model as a tool-level failure with its code.
func toolError(err error) *mcp.CallToolResult {
	msg := string(domain.ErrorCodeOf(err)) + ": " + err.Error()
	if domain.NeedsDetection(err) {
		msg += " (call the detect tool first)"
	}
	return mcp.NewToolResultError(msg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
