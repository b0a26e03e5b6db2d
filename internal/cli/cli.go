// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command dispatch and argument parsing for ragchat.
package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdThreads
	CmdShow
	CmdEdits
	CmdExport
	CmdHealth
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"chat":    CmdChat,
	"ask":     CmdAsk,
	"threads": CmdThreads,
	"ls":      CmdThreads,
	"show":    CmdShow,
	"edits":   CmdEdits,
	"export":  CmdExport,
	"health":  CmdHealth,
	"status":  CmdHealth,
	"config":  CmdConfig,
	"version": CmdVersion,
	"help":    CmdHelp,
}

// boolFlagNames never take a value.
var boolFlagNames = []string{
	"json", "quiet", "q", "verbose", "v", "no-markdown", "no-color", "thinking",
	"all", "stdout", "help", "h", "version",
}

// Args holds parsed CLI arguments.
type Args struct {
	Command Command

	// Global flags
	Model      string
	ConfigPath string
	JSON       bool
	Quiet      bool
	Verbose    bool
	NoMarkdown bool
	NoColor    bool
	Thinking   bool

	// Command-specific
	All         bool
	Stdout      bool
	Thread      string
	Files       []string
	RemotePaths []string
	Query       string
	Format      string
	Output      string
	Subcommand  string

	// Positional holds the arguments after the command name.
	Positional []string

	// Topic is the command named by "help <topic>".
	Topic string
}

const usageText = `ragchat - chat with a local LLM backend, with document context

Usage:
  ragchat                          Start interactive chat (default)
  ragchat chat                     Interactive chat
  ragchat ask "question"           Ask a single question
  ragchat threads, ls              List conversation threads
  ragchat show <thread>            Show a thread's conversation
  ragchat edits <thread> <message> Show every edit of one message
  ragchat export <thread>          Export a thread to Markdown or JSON
  ragchat health, status           Check backend and database health
  ragchat config [subcommand]      Configuration
  ragchat version                  Show version
  ragchat help [command]           Show help

Global Flags:
  -m, --model NAME     Model for new questions (default: from config)
  -c, --config PATH    Use a specific config file
  --json               Machine-readable output
  -q, --quiet          Minimal output
  -v, --verbose        Debug logging to stderr
  --no-markdown        Print answers without markdown rendering
  --no-color           Disable colored output
  --thinking           Show the model's thinking section

Run 'ragchat help <command>' for details on a command.
`

var commandHelp = map[Command]string{
	CmdChat: `Usage: ragchat chat [--thread ID] [--model NAME]

Start an interactive chat. Answers stream as they are generated.

Interactive Commands:
  /new                 Start a new thread
  /threads             List threads
  /switch <n|id>       Switch to a thread by list number or id
  /delete [n|id]       Remove a thread from this session
  /history             Show the active thread
  /refresh             Reload the active thread from the backend
  /edit <n> [text]     Resubmit message n with a revised question
  /prev <n>, /next <n> Step through the edits of message n
  /attach <path>       Attach a document to the next question
  /remote <path>       Attach a document already on the backend host
  /detach              Drop pending attachments
  /model [name]        Show or switch the thread's model
  /models              List known models
  /retry               Resubmit the last failed question
  /export [md|json]    Export the active thread
  /help                Show this help
  /quit                Exit
`,
	CmdAsk: `Usage: ragchat ask "question" [flags]

Ask one question in a new thread (or --thread) and stream the answer.

Flags:
  -f, --file PATH      Attach a local document (repeatable)
  --remote PATH        Attach a document on the backend host
  -t, --thread ID      Continue an existing thread
  -m, --model NAME     Model to use
  --json               Print the result as JSON

Examples:
  ragchat ask "What is retrieval-augmented generation?"
  ragchat ask -f report.pdf "Summarize the findings"
  echo "Hello" | ragchat ask
`,
	CmdThreads: `Usage: ragchat threads [--json]

List conversation threads, newest first.
`,
	CmdShow: `Usage: ragchat show <thread> [--all] [--json]

Show a thread's conversation. --all prints every edit of each message.
`,
	CmdEdits: `Usage: ragchat edits <thread> <message> [--json]

Show the edit history of one message.
`,
	CmdExport: `Usage: ragchat export <thread> [flags]

Export a thread to a file in the current directory.

Flags:
  --format md|json     Output format (default: md)
  -o, --output DIR     Directory for the exported file
  --all                Include every edit of each message
  --thinking           Include thinking sections
  --stdout             Print instead of writing a file
`,
	CmdHealth: `Usage: ragchat health [--json]

Check that the backend and its database are reachable.
`,
	CmdConfig: `Usage: ragchat config <subcommand>

Subcommands:
  show                 Print the effective configuration (default)
  get <key>            Print one value
  set <key> <value>    Change a value and save
  keys                 List settable keys
  path                 Print the config file path
  init                 Write a default config file
`,
}

// =============================================================================
// PARSING
// =============================================================================

// ParseArgs parses the arguments after the program name.
func ParseArgs(argv []string) (*Args, error) {
	p := NewArgParser(argv, boolFlagNames...)

	args := &Args{
		Command:     CmdChat,
		Model:       p.Flag("model", "m"),
		ConfigPath:  p.Flag("config", "c"),
		JSON:        p.BoolFlag("json"),
		Quiet:       p.BoolFlag("quiet", "q"),
		Verbose:     p.BoolFlag("verbose", "v"),
		NoMarkdown:  p.BoolFlag("no-markdown"),
		NoColor:     p.BoolFlag("no-color"),
		Thinking:    p.BoolFlag("thinking"),
		All:         p.BoolFlag("all"),
		Stdout:      p.BoolFlag("stdout"),
		Format:      p.Flag("format"),
		Output:      p.Flag("output", "o"),
		Thread:      p.Flag("thread", "t"),
		Files:       p.Flags("file", "f"),
		RemotePaths: p.Flags("remote"),
	}

	if p.BoolFlag("version") {
		args.Command = CmdVersion
		return args, nil
	}

	if name := p.Subcommand(); name != "" {
		cmd, ok := commandNames[strings.ToLower(name)]
		if !ok {
			reason := fmt.Sprintf("unknown command %q", name)
			if hint := SuggestCommand(name); hint != "" {
				reason += fmt.Sprintf(" (did you mean %q?)", hint)
			}
			return nil, NewUsageError(reason, "ragchat help")
		}
		args.Command = cmd
		args.Positional = p.PositionalFrom(1)
	}

	if p.BoolFlag("help", "h") && args.Command != CmdHelp {
		args.Topic = commandName(args.Command)
		args.Command = CmdHelp
		return args, nil
	}

	switch args.Command {
	case CmdAsk:
		args.Query = strings.Join(args.Positional, " ")
	case CmdConfig:
		if len(args.Positional) > 0 {
			args.Subcommand = strings.ToLower(args.Positional[0])
		}
	case CmdHelp:
		if len(args.Positional) > 0 {
			args.Topic = strings.ToLower(args.Positional[0])
		}
	}
	return args, nil
}

func commandName(cmd Command) string {
	for name, c := range commandNames {
		if c == cmd && name != "ls" && name != "status" {
			return name
		}
	}
	return ""
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes one invocation and returns the process exit code.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args, err := ParseArgs(argv)
	if err != nil {
		DisplayError(stderr, err, false)
		return GetExitCode(err)
	}
	if args.NoColor {
		ForceColorsEnabled(false)
	}

	switch args.Command {
	case CmdHelp:
		PrintHelp(stdout, args.Topic)
		return ExitSuccess
	case CmdVersion:
		PrintVersion(stdout)
		return ExitSuccess
	}

	app, err := NewApp(args, stdin, stdout, stderr)
	if err != nil {
		DisplayError(stderr, err, args.JSON)
		return GetExitCode(err)
	}
	defer app.Close()

	if err := app.Dispatch(ctx); err != nil {
		DisplayError(stderr, err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// Dispatch runs the parsed command.
func (a *App) Dispatch(ctx context.Context) error {
	switch a.Args.Command {
	case CmdChat:
		return a.HandleChat(ctx)
	case CmdAsk:
		return a.HandleAsk(ctx)
	case CmdThreads:
		return a.HandleThreads(ctx)
	case CmdShow:
		return a.HandleShow(ctx)
	case CmdEdits:
		return a.HandleEdits(ctx)
	case CmdExport:
		return a.HandleExport(ctx)
	case CmdHealth:
		return a.HandleHealth(ctx)
	case CmdConfig:
		return a.HandleConfig(ctx)
	default:
		return NewUsageError("unsupported command", "ragchat help")
	}
}

// PrintHelp prints general usage or the help for one command.
func PrintHelp(w io.Writer, topic string) {
	if topic != "" {
		if cmd, ok := commandNames[topic]; ok {
			if text, ok := commandHelp[cmd]; ok {
				fmt.Fprint(w, text)
				return
			}
		}
	}
	fmt.Fprint(w, usageText)
}

// PrintVersion prints version and build information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "ragchat %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
