package domain

// OperatingSystem identifies the platform commands are composed for.
// Values match runtime.GOOS.
type OperatingSystem string

const (
	OSWindows OperatingSystem = "windows"
	OSMac     OperatingSystem = "darwin"
	OSLinux   OperatingSystem = "linux"
)

// Supported reports whether commands can be composed for os.
func (os OperatingSystem) Supported() bool {
	switch os {
	case OSWindows, OSMac, OSLinux:
		return true
	}
	return false
}

// BuildType returns the platform label embedded in composed commands
// ("Win64", "Mac", "Linux"), or "" for an unsupported os.
func (os OperatingSystem) BuildType() string {
	switch os {
	case OSWindows:
		return "Win64"
	case OSMac:
		return "Mac"
	case OSLinux:
		return "Linux"
	}
	return ""
}

// Separator returns the path separator used by os.
func (os OperatingSystem) Separator() string {
	if os == OSWindows {
		return `\`
	}
	return "/"
}

// EngineInstallation is an engine directory matched against a project's
// engine association.
type EngineInstallation struct {
	VersionTag string `json:"version_tag"`
	RootPath   string `json:"root_path"`
}

// ToolPaths are the absolute tool locations derived from an installation.
type ToolPaths struct {
	BuildTool     string `json:"build_tool"`
	Editor        string `json:"editor"`
	Runtime       string `json:"runtime"`
	PackagingTool string `json:"packaging_tool"`
}
