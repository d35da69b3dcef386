package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"uetools/internal/domain"
	"uetools/internal/infra/config"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "version":
		fmt.Println("uetools", version)
		return
	}

	name := os.Args[1]
	flags, args, err := parseFlags(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(2)
	}
	if err := run(name, flags, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(exitCode(err))
	}
}

func showUsage() {
	fmt.Println(`uetools - Unreal Engine project tooling

USAGE:
    uetools <COMMAND> [ARGS] [FLAGS]

COMMANDS:
    detect              Detect the project and its engine installation
    build               Build the project (--target, --configuration)
    build-module NAME   Build one module of the project
    build-server        Build the dedicated server solution (Windows only)
    package             Package the project (--archive DIR)
    editor              Open the editor without building
    launch              Build and open the editor, or run the game (--target Game)
    clang-db            Generate compile_commands.json into .vscode/
    compose KIND        Print the command for KIND without running it
    plugins             List the project's plugins
    history             Show recent task runs
    watch               Re-detect whenever a project manifest changes
    mcp                 Serve the operations as MCP tools on stdio
    doctor              Run health checks on your setup
    encrypt [VALUE]     Encrypt a Slack or Discord secret with UETOOLS_CONFIG_KEY

FLAGS:
    -h, --help               Show this help message
    --config PATH            Config file (default: ./uetools.yaml)
    --target Editor|Game     Build or launch target (default: Editor)
    --configuration NAME     Development or Debug (default: Development)
    --trace                  Add Unreal Insights trace flags when running the game
    --archive DIR            Package output directory (default: <project>/Packaged)

CONFIGURATION:
    Config file: ./uetools.yaml
    Environment: UETOOLS_* variables override config
    Secrets:     "enc:..." values are decrypted with UETOOLS_CONFIG_KEY

EXAMPLES:
    uetools detect
    uetools build --target Game --configuration Debug
    uetools launch --target Game --trace
    uetools compose build-project`)
}

// cliFlags holds the flags shared by every command.
type cliFlags struct {
	Config        string
	Target        domain.Target
	Configuration domain.Configuration
	Trace         bool
	Archive       string
}

// parseFlags separates flags from positional arguments. Flags may appear
// anywhere after the command name, as "--name value" or "--name=value".
func parseFlags(args []string) (cliFlags, []string, error) {
	var (
		flags      cliFlags
		positional []string
	)
	flags.Config = os.Getenv("UETOOLS_CONFIG")
	if flags.Config == "" {
		flags.Config = config.DefaultPath
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "trace" {
			flags.Trace = !hasValue || value == "true"
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			value = args[i]
		}

		var err error
		switch name {
		case "config":
			flags.Config = value
		case "target":
			flags.Target, err = domain.ParseTarget(value)
		case "configuration":
			flags.Configuration, err = domain.ParseConfiguration(value)
		case "archive":
			flags.Archive = value
		default:
			return flags, nil, fmt.Errorf("unknown flag --%s", name)
		}
		if err != nil {
			return flags, nil, fmt.Errorf("--%s: %w", name, err)
		}
	}
	return flags, positional, nil
}

func run(name string, flags cliFlags, args []string) error {
	switch name {
	case "doctor":
		return runDoctor(os.Stdout, flags.Config)
	case "encrypt":
		return runEncrypt(os.Stdout, os.Stdin, args, os.Getenv("UETOOLS_CONFIG_KEY"))
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n\nRun 'uetools --help' for usage information", name)
	}
	if len(args) < cmd.args {
		return fmt.Errorf("usage: uetools %s", cmd.usage)
	}

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the protocol in mcp mode.
	var out io.Writer = os.Stdout
	if name == "mcp" {
		out = os.Stderr
	}
	a, err := newApp(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd.detect {
	case detectRequired:
		if _, err := a.svc.Detect(ctx); err != nil {
			return err
		}
	case detectBestEffort:
		_, _ = a.svc.Detect(ctx)
	}
	return cmd.run(ctx, a, flags, args)
}

// exitCode mirrors a failed build tool's exit code so scripts can react to it.
func exitCode(err error) int {
	var pe *domain.ProcessExitError
	if errors.As(err, &pe) && pe.Code > 0 && pe.Code < 256 {
		return pe.Code
	}
	return 1
}
