package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// options holds flag values shared across subcommands.
type options struct {
	RegistryPath string
	Endpoint     string
	DBPath       string
	TimeoutSecs  int
	Verbose      bool
}

// Execute runs the acp command tree.
func Execute() error {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "acp",
		Short: "ACP agent discovery, routing, and streaming calls",
		Long: `ACP is a command-line interface for the Agent Communication Protocol:
discover agents, track them in a local registry, and call them over the
best available transport with sync or streaming responses.`,
		Example: `  # Discover agents at an endpoint
  acp discover http://localhost:8000

  # List known agents
  acp agents

  # Call an agent synchronously
  acp call kimi "Summarize this design"

  # Stream a run, highlights only
  acp run kimi_swarm "Plan the migration" --chat

  # Host the demo runtime with a monitor feed at /ws
  acp serve --addr :8000`,
		Version:       formatVersion(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.RegistryPath, "registry", "", "registry file path (default: ~/.acp/agents.json)")
	flags.StringVar(&opts.Endpoint, "endpoint", "http://127.0.0.1:8000", "default ACP endpoint")
	flags.StringVar(&opts.DBPath, "db", "", "call-history SQLite path (default: ~/.acp/history.db)")
	flags.IntVar(&opts.TimeoutSecs, "timeout", 300, "per-call timeout in seconds")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newAgentsCmd(opts),
		newDiscoverCmd(opts),
		newRegisterCmd(opts),
		newProbeCmd(opts),
		newFindCmd(opts),
		newRemoveCmd(opts),
		newCallCmd(opts),
		newRunCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd.Execute()
}

func (o *options) registryPath() string {
	if o.RegistryPath != "" {
		return o.RegistryPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "agents.json"
	}
	return filepath.Join(home, ".acp", "agents.json")
}

func (o *options) historyPath() string {
	if o.DBPath != "" {
		return o.DBPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	path := filepath.Join(home, ".acp", "history.db")
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return path
}

// formatVersion returns formatted version information
func formatVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// PrintError prints an error message
func PrintError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "❌ %s: %v\n", msg, err)
}

// PrintInfo prints an info message
func PrintInfo(msg string) {
	fmt.Printf("ℹ️  %s\n", msg)
}

func joinCapabilities(caps []string, max int) string {
	if len(caps) > max {
		caps = caps[:max]
	}
	if len(caps) == 0 {
		return "-"
	}
	return strings.Join(caps, ", ")
}
