package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"testing"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uetools/internal/domain"
	"uetools/internal/usecase/session"
	"uetools/internal/usecase/task"
)

type fakeOps struct {
	snap      session.Snapshot
	detectErr error
	cmd       domain.ComposedCommand
	composed  []domain.OperationRequest
	ran       []domain.OperationRequest
	plugins   []domain.PluginDescriptor
}

func (f *fakeOps) Detect(context.Context) (session.Snapshot, error) { return f.snap, f.detectErr }

func (f *fakeOps) Compose(_ context.Context, req domain.OperationRequest) (domain.ComposedCommand, error) {
	f.composed = append(f.composed, req)
	return f.cmd, nil
}

func (f *fakeOps) Run(_ context.Context, req domain.OperationRequest) (*task.Handle, error) {
	f.ran = append(f.ran, req)
	return &task.Handle{ID: "01TASK", Name: req.TaskName()}, nil
}

func (f *fakeOps) Plugins() ([]domain.PluginDescriptor, error) {
	if f.plugins == nil {
		return nil, &domain.MissingFieldError{Field: "project"}
	}
	return f.plugins, nil
}

type fakeTasks struct {
	records []domain.TaskRecord
	gotName string
	gotOff  int
	gotLim  int
}

func (f *fakeTasks) List() []domain.TaskRecord { return f.records }

func (f *fakeTasks) Output(name string, offset, limit int) (*domain.TaskOutput, error) {
	f.gotName, f.gotOff, f.gotLim = name, offset, limit
	if name != "Build Project" {
		return nil, domain.NewSubSystemError("task", "Coordinator.Output", domain.ErrNotFound, name)
	}
	return &domain.TaskOutput{Name: name, Output: "line 1\nline 2", TotalLines: 2}, nil
}

func newTestServer(ops *fakeOps, tasks *fakeTasks) *Server {
	return New(ops, tasks, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func testSnapshot() session.Snapshot {
	return session.Snapshot{
		Project: &domain.ProjectDescriptor{
			EngineAssociation: "5.5",
			Modules:           []domain.Module{{Name: "Game"}},
			ManifestPath:      "/work/Game.uproject",
		},
		Installation: &domain.EngineInstallation{VersionTag: "UE_5.5", RootPath: "/opt/UE_5.5"},
		Paths:        &domain.ToolPaths{BuildTool: "/opt/UE_5.5/ubt.dll", Editor: "/opt/UE_5.5/UnrealEditor"},
		MajorVersion: 5,
	}
}

func TestDetectTool(t *testing.T) {
	s := newTestServer(&fakeOps{snap: testSnapshot()}, &fakeTasks{})

	res, err := s.handleDetect(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got detectResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "Game", got.Project)
	assert.Equal(t, "/opt/UE_5.5", got.EngineRoot)
	assert.Equal(t, "/opt/UE_5.5/UnrealEditor", got.Editor)
}

func TestDetectToolFailure(t *testing.T) {
	ops := &fakeOps{detectErr: domain.NewSubSystemError("engine", "Locator.Locate", domain.ErrNotFound, "UE_5.5")}
	s := newTestServer(ops, &fakeTasks{})

	res, err := s.handleDetect(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "ENGINE_NOT_FOUND")
	assert.Contains(t, text, "call the detect tool first")
}

func TestComposeTool(t *testing.T) {
	ops := &fakeOps{cmd: domain.ComposedCommand{
		Executable:       "/opt/UE_5.5/dotnet",
		Arguments:        []domain.Argument{domain.Flag("Game"), domain.Flag("Linux")},
		WorkingDirectory: "/opt/UE_5.5",
		OS:               domain.OSLinux,
		Variant:          "modern",
	}}
	s := newTestServer(ops, &fakeTasks{})

	res, err := s.handleCompose(context.Background(), call(map[string]any{
		"kind":          "build-project",
		"target":        "game",
		"configuration": "debug",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	require.Len(t, ops.composed, 1)
	assert.Equal(t, domain.OpBuildProject, ops.composed[0].Kind)
	assert.Equal(t, domain.TargetGame, ops.composed[0].Target)
	assert.Equal(t, domain.ConfigDebug, ops.composed[0].Configuration)

	var got composeResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "Build Project", got.Task)
	assert.Equal(t, []string{"/opt/UE_5.5/dotnet", "Game", "Linux"}, got.Argv)
	assert.Equal(t, "modern", got.Variant)
}

func TestComposeToolRejectsBadArguments(t *testing.T) {
	ops := &fakeOps{}
	s := newTestServer(ops, &fakeTasks{})

	for name, args := range map[string]map[string]any{
		"kind":          {"kind": "deploy"},
		"target":        {"kind": "build-project", "target": "Server"},
		"configuration": {"kind": "build-project", "configuration": "Shipping"},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := s.handleCompose(context.Background(), call(args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
	assert.Empty(t, ops.composed)
}

func TestRunTool(t *testing.T) {
	ops := &fakeOps{}
	s := newTestServer(ops, &fakeTasks{})

	res, err := s.handleRun(context.Background(), call(map[string]any{
		"kind":   "build-module",
		"module": "Inventory",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	require.Len(t, ops.ran, 1)
	assert.Equal(t, "Inventory", ops.ran[0].ModuleName)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "Build Inventory Module", got["name"])
	assert.Equal(t, "01TASK", got["id"])
}

func TestRunToolTrace(t *testing.T) {
	ops := &fakeOps{}
	s := newTestServer(ops, &fakeTasks{})

	_, err := s.handleRun(context.Background(), call(map[string]any{"kind": "launch-game", "trace": true}))
	require.NoError(t, err)
	require.Len(t, ops.ran, 1)
	assert.True(t, ops.ran[0].Trace)
}

func TestTasksToolEmptyList(t *testing.T) {
	s := newTestServer(&fakeOps{}, &fakeTasks{})

	res, err := s.handleTasks(context.Background(), call(nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, res))
}

func TestTaskOutputTool(t *testing.T) {
	tasks := &fakeTasks{}
	s := newTestServer(&fakeOps{}, tasks)

	res, err := s.handleTaskOutput(context.Background(), call(map[string]any{"name": "Build Project", "offset": 5}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 5, tasks.gotOff)
	assert.Equal(t, task.DefaultOutputLimit, tasks.gotLim)

	var got domain.TaskOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, 2, got.TotalLines)
}

func TestTaskOutputToolErrors(t *testing.T) {
	s := newTestServer(&fakeOps{}, &fakeTasks{})

	res, err := s.handleTaskOutput(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleTaskOutput(context.Background(), call(map[string]any{"name": "Run Game"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "TASK_NOT_FOUND")
}

func TestPluginsTool(t *testing.T) {
	s := newTestServer(&fakeOps{}, &fakeTasks{})
	res, err := s.handlePlugins(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	s = newTestServer(&fakeOps{plugins: []domain.PluginDescriptor{{FriendlyName: "Inventory"}}}, &fakeTasks{})
	res, err = s.handlePlugins(context.Background(), call(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Inventory")
}

func TestToolsOverInProcessClient(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(&fakeOps{snap: testSnapshot()}, &fakeTasks{})

	c, err := mcpclient.NewInProcessClient(s.MCP())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, initReq)
	require.NoError(t, err)

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"compose", "detect", "plugins", "run", "task_output", "tasks"}, names)

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = "detect"
	res, err := c.CallTool(ctx, callReq)
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"engine_root": "/opt/UE_5.5"`)
}
