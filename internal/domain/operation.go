package domain

import (
	"fmt"
	"strings"
)

// OperationKind names an operation the composer can build a command for.
type OperationKind string

const (
	OpBuildModule           OperationKind = "build-module"
	OpBuildProject          OperationKind = "build-project"
	OpBuildServer           OperationKind = "build-server"
	OpPackageProject        OperationKind = "package-project"
	OpOpenEditor            OperationKind = "open-editor"
	OpLaunchGame            OperationKind = "launch-game"
	OpGenerateClangDatabase OperationKind = "generate-clang-database"
)

// OperationKinds lists every kind in a stable order.
var OperationKinds = []OperationKind{
	OpBuildModule, OpBuildProject, OpBuildServer, OpPackageProject,
	OpOpenEditor, OpLaunchGame, OpGenerateClangDatabase,
}

// ParseOperationKind accepts the kind names above.
func ParseOperationKind(s string) (OperationKind, error) {
	for _, k := range OperationKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", NewDomainError("ParseOperationKind", ErrUnsupportedOperation, s)
}

// Target selects the Editor or the standalone Game build.
type Target string

const (
	TargetEditor Target = "Editor"
	TargetGame   Target = "Game"
)

// ParseTarget accepts "Editor" or "Game" in any case. Empty stays empty.
func ParseTarget(s string) (Target, error) {
	for _, t := range []Target{TargetEditor, TargetGame} {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	if s == "" {
		return "", nil
	}
	return "", NewDomainError("ParseTarget", ErrUnsupportedOperation, s)
}

// Configuration is the build configuration.
type Configuration string

const (
	ConfigDevelopment Configuration = "Development"
	ConfigDebug       Configuration = "Debug"
)

// ParseConfiguration accepts "Development" or "Debug" in any case. Empty
// stays empty.
func ParseConfiguration(s string) (Configuration, error) {
	for _, c := range []Configuration{ConfigDevelopment, ConfigDebug} {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	if s == "" {
		return "", nil
	}
	return "", NewDomainError("ParseConfiguration", ErrInvalidInput, s)
}

// OperationRequest describes one invocation. Kind decides which of the other
// fields are meaningful; the rest are ignored.
type OperationRequest struct {
	Kind          OperationKind `json:"kind"`
	Target        Target        `json:"target,omitempty"`
	Configuration Configuration `json:"configuration,omitempty"`

	// ModuleName is used by OpBuildModule only.
	ModuleName string `json:"module_name,omitempty"`
	// Trace adds Unreal Insights tracing flags to OpLaunchGame.
	Trace bool `json:"trace,omitempty"`
	// ArchiveDirectory is used by OpPackageProject; defaults to <project>/Packaged.
	ArchiveDirectory string `json:"archive_directory,omitempty"`
	// SolutionPath and MSBuildPath are used by OpBuildServer.
	SolutionPath string `json:"solution_path,omitempty"`
	MSBuildPath  string `json:"msbuild_path,omitempty"`
}

// EffectiveTarget returns Target, defaulting to the Editor.
func (r OperationRequest) EffectiveTarget() Target {
	if r.Target == "" {
		return TargetEditor
	}
	return r.Target
}

// EffectiveConfiguration returns Configuration, defaulting to Development.
func (r OperationRequest) EffectiveConfiguration() Configuration {
	if r.Configuration == "" {
		return ConfigDevelopment
	}
	return r.Configuration
}

// TaskName returns the de-duplication key for the task that runs r.
func (r OperationRequest) TaskName() string {
	switch r.Kind {
	case OpBuildModule:
		return fmt.Sprintf("Build %s Module", r.ModuleName)
	case OpBuildProject:
		return "Build Project"
	case OpBuildServer:
		return "Build Server"
	case OpPackageProject:
		return "Package Project"
	case OpOpenEditor:
		return "Run Editor"
	case OpLaunchGame:
		return "Run Game"
	case OpGenerateClangDatabase:
		return "Generate Clang Database"
	}
	return string(r.Kind)
}
