package domain

import "strings"

// Argument is one argv entry. When Path is set, Value is a filesystem path
// that gets escaped when the command is rendered as a shell line.
type Argument struct {
	Prefix string `json:"prefix,omitempty"`
	Value  string `json:"value"`
	Path   bool   `json:"path,omitempty"`
}

// Flag returns a plain argument.
func Flag(s string) Argument { return Argument{Value: s} }

// PathArg returns a path argument with an optional flag prefix such as "-project=".
func PathArg(prefix, path string) Argument {
	return Argument{Prefix: prefix, Value: path, Path: true}
}

// String returns the raw argv form.
func (a Argument) String() string { return a.Prefix + a.Value }

// Shell returns the argument escaped for a shell line on os.
func (a Argument) Shell(os OperatingSystem) string {
	if a.Path {
		return a.Prefix + QuotePath(a.Value, os)
	}
	return a.Prefix + a.Value
}

// ComposedCommand is the immutable output of the command composer.
type ComposedCommand struct {
	Executable       string          `json:"executable"`
	Arguments        []Argument      `json:"arguments"`
	WorkingDirectory string          `json:"working_directory"`
	OS               OperatingSystem `json:"os"`
	// Variant records which composer branch produced the command.
	Variant string `json:"variant"`
}

// Argv returns the unescaped argument list for direct process execution.
func (c ComposedCommand) Argv() []string {
	out := make([]string, len(c.Arguments))
	for i, a := range c.Arguments {
		out[i] = a.String()
	}
	return out
}

// ShellLine renders the command as a single OS-appropriate shell line.
func (c ComposedCommand) ShellLine() string {
	parts := make([]string, 0, len(c.Arguments)+1)
	parts = append(parts, QuotePath(c.Executable, c.OS))
	for _, a := range c.Arguments {
		parts = append(parts, a.Shell(c.OS))
	}
	return strings.Join(parts, " ")
}

// QuotePath escapes path for insertion into a shell line on os. Windows wraps
// paths containing spaces in double quotes; other systems backslash-escape
// each space.
func QuotePath(path string, os OperatingSystem) string {
	if !strings.Contains(path, " ") {
		return path
	}
	if os == OSWindows {
		if strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`) {
			return path
		}
		return `"` + path + `"`
	}
	return strings.ReplaceAll(path, " ", `\ `)
}
