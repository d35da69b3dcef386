package domain

import "strings"

// Module is one entry of a project manifest's Modules list.
type Module struct {
	Name         string `json:"Name"`
	Type         string `json:"Type,omitempty"`
	LoadingPhase string `json:"LoadingPhase,omitempty"`
}

// PluginDescriptor is a plugin manifest found under the project's Plugins directory.
type PluginDescriptor struct {
	Dir          string   `json:"-"`
	FriendlyName string   `json:"FriendlyName,omitempty"`
	VersionName  string   `json:"VersionName,omitempty"`
	Description  string   `json:"Description,omitempty"`
	Category     string   `json:"Category,omitempty"`
	Modules      []Module `json:"Modules,omitempty"`
}

// Name returns the plugin's display name, falling back to its directory name.
func (p PluginDescriptor) Name() string {
	if p.FriendlyName != "" {
		return p.FriendlyName
	}
	return p.Dir
}

// ProjectDescriptor is a parsed project manifest. It is replaced wholesale on
// every detection run and never mutated after loading.
type ProjectDescriptor struct {
	EngineAssociation string             `json:"EngineAssociation"`
	Modules           []Module           `json:"Modules"`
	Plugins           []PluginDescriptor `json:"-"`

	// Dir is the workspace root the manifest was found in.
	Dir string `json:"-"`
	// ManifestPath is the absolute path of the manifest file.
	ManifestPath string `json:"-"`
}

// PrimaryModule returns the canonical project/target name: the first module.
// Only this module participates in command construction.
func (p *ProjectDescriptor) PrimaryModule() string {
	if p == nil || len(p.Modules) == 0 {
		return ""
	}
	return p.Modules[0].Name
}

// EngineVersion returns the engine association without a leading "UE_" marker.
func (p *ProjectDescriptor) EngineVersion() string {
	if p == nil {
		return ""
	}
	return strings.TrimPrefix(p.EngineAssociation, "UE_")
}
