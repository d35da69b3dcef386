package ops

import (
	"uetools/internal/domain"
)

// msbuildCandidates are probed in order: VS 2022 then 2019, Community,
// Professional, Enterprise.
var msbuildCandidates = func() []string {
	var out []string
	for _, vs := range []string{
		`C:\Program Files\Microsoft Visual Studio\2022`,
		`C:\Program Files (x86)\Microsoft Visual Studio\2019`,
	} {
		for _, edition := range []string{"Community", "Professional", "Enterprise"} {
			out = append(out, vs+`\`+edition+`\MSBuild\Current\Bin\MSBuild.exe`)
		}
	}
	return out
}()

// FindMSBuild returns the first MSBuild.exe that exists.
func FindMSBuild(fsys FileSystem) (string, error) {
	for _, p := range msbuildCandidates {
		if fsys.Exists(p) {
			return p, nil
		}
	}
	return "", domain.NewSubSystemError("msbuild", "FindMSBuild", domain.ErrNotFound,
		"install Visual Studio 2022 or 2019 with the MSBuild component")
}
