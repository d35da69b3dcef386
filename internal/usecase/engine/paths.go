package engine

import (
	"strconv"
	"strings"

	"uetools/internal/domain"
)

type era int

const (
	legacy era = iota // UE4
	modern            // UE5 and later
)

type toolLayout struct {
	buildTool string
	editor    string
	runtime   string
}

// Relative to the installation root, "/"-separated.
var layouts = map[era]map[domain.OperatingSystem]toolLayout{
	legacy: {
		domain.OSWindows: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool.exe",
			editor:    "Engine/Binaries/Win64/UE4Editor.exe",
			runtime:   "Engine/Binaries/ThirdParty/DotNet/Windows/dotnet.exe",
		},
		domain.OSMac: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool.exe",
			editor:    "Engine/Binaries/Mac/UE4Editor.app/Contents/MacOS/UE4Editor",
			runtime:   "Engine/Binaries/ThirdParty/Mono/Mac/bin/mono",
		},
		domain.OSLinux: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool.exe",
			editor:    "Engine/Binaries/Linux/UE4Editor",
			runtime:   "Engine/Binaries/ThirdParty/Mono/Linux/bin/mono",
		},
	},
	modern: {
		domain.OSWindows: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool/UnrealBuildTool.dll",
			editor:    "Engine/Binaries/Win64/UnrealEditor.exe",
			runtime:   "Engine/Binaries/ThirdParty/DotNet/Windows/dotnet.exe",
		},
		domain.OSMac: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool/UnrealBuildTool.dll",
			editor:    "Engine/Binaries/Mac/UnrealEditor.app/Contents/MacOS/UnrealEditor",
			runtime:   "Engine/Binaries/ThirdParty/DotNet/Mac/dotnet",
		},
		domain.OSLinux: {
			buildTool: "Engine/Binaries/DotNET/UnrealBuildTool/UnrealBuildTool.dll",
			editor:    "Engine/Binaries/Linux/UnrealEditor",
			runtime:   "Engine/Binaries/ThirdParty/DotNet/Linux/dotnet",
		},
	},
}

// ResolvePaths derives tool locations for an installation. It is a pure
// function of its inputs and joins with the target OS's separator regardless
// of the host.
func ResolvePaths(inst domain.EngineInstallation, os domain.OperatingSystem, major int) (domain.ToolPaths, error) {
	e := modern
	if major == 4 {
		e = legacy
	}
	layout, ok := layouts[e][os]
	if !ok {
		return domain.ToolPaths{}, domain.NewSubSystemError("engine", "ResolvePaths", domain.ErrUnsupportedPlatform, string(os))
	}

	packaging := "Engine/Build/BatchFiles/RunUAT.sh"
	if os == domain.OSWindows {
		packaging = "Engine/Build/BatchFiles/RunUAT.bat"
	}

	return domain.ToolPaths{
		BuildTool:     JoinPath(os, inst.RootPath, layout.buildTool),
		Editor:        JoinPath(os, inst.RootPath, layout.editor),
		Runtime:       JoinPath(os, inst.RootPath, layout.runtime),
		PackagingTool: JoinPath(os, inst.RootPath, packaging),
	}, nil
}

// JoinPath joins elements with the separator of os. Elements may use "/",
// which is converted on Windows.
func JoinPath(os domain.OperatingSystem, elem ...string) string {
	sep := os.Separator()
	var b strings.Builder
	for _, e := range elem {
		if e == "" {
			continue
		}
		if os == domain.OSWindows {
			e = strings.ReplaceAll(e, "/", sep)
		}
		if b.Len() == 0 {
			b.WriteString(e)
			continue
		}
		if !strings.HasSuffix(b.String(), sep) {
			b.WriteString(sep)
		}
		b.WriteString(strings.TrimLeft(e, sep))
	}
	return b.String()
}

// MajorVersion extracts the major version from an engine association such
// as "5.5", "UE_4.27" or "4". It returns 0 if no number is present.
func MajorVersion(association string) int {
	s := strings.TrimPrefix(strings.TrimSpace(association), "UE_")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
