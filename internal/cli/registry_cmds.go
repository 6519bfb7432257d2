package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhound420/acp-agents-skill/internal/registry"
)

func newAgentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(opts.registryPath())
			agents := reg.List()
			if len(agents) == 0 {
				fmt.Println("No agents registered. Run: acp discover http://localhost:8000")
				return nil
			}

			fmt.Printf("\n%-15s %-10s %-10s %s\n", "Name", "Status", "Latency", "Capabilities")
			fmt.Println(strings.Repeat("-", 60))
			for _, a := range agents {
				lat := "-"
				if a.LatencyMs > 0 {
					lat = fmt.Sprintf("%dms", a.LatencyMs)
				}
				fmt.Printf("%-15s %-10s %-10s %s\n", a.Name, a.Status, lat, joinCapabilities(a.Capabilities, 3))
			}
			fmt.Println()
			return nil
		},
	}
}

func newDiscoverCmd(opts *options) *cobra.Command {
	var timeoutSecs int
	cmd := &cobra.Command{
		Use:   "discover <endpoint>",
		Short: "Discover agents at an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(opts.registryPath())
			discovered := reg.Discover(cmd.Context(), args[0], time.Duration(timeoutSecs)*time.Second)
			fmt.Printf("Discovered %d agent(s)\n", len(discovered))
			for _, a := range discovered {
				caps := joinCapabilities(a.Capabilities, len(a.Capabilities))
				if caps == "-" {
					caps = "no capabilities listed"
				}
				fmt.Printf("  → %s: %s\n", a.Name, caps)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&timeoutSecs, "discover-timeout", 10, "discovery timeout in seconds")
	return cmd
}

func newRegisterCmd(opts *options) *cobra.Command {
	var model, description string
	cmd := &cobra.Command{
		Use:   "register <name> <endpoint> [capabilities]",
		Short: "Register an agent manually",
		Long:  "Register an agent by name and endpoint. Capabilities are a comma-separated list.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var caps []string
			if len(args) > 2 {
				caps = strings.Split(args[2], ",")
			}
			reg := registry.New(opts.registryPath())
			rec := reg.Register(args[0], args[1], caps, model, description, nil)
			fmt.Printf("Registered %s → %s\n", rec.Name, rec.Endpoint)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model backing the agent")
	cmd.Flags().StringVar(&description, "description", "", "agent description")
	return cmd
}

func newProbeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <name>",
		Short: "Check whether an agent is online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(opts.registryPath())
			rec, err := reg.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s (%dms)\n", rec.Name, rec.Status, rec.LatencyMs)
			return nil
		},
	}
}

func newFindCmd(opts *options) *cobra.Command {
	var status string
	var onlineOnly bool
	cmd := &cobra.Command{
		Use:   "find <capability>",
		Short: "Find agents with a capability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(opts.registryPath())
			agents := reg.Find(registry.Filter{
				Capability: args[0],
				Status:     status,
				OnlineOnly: onlineOnly,
			})
			fmt.Printf("Found %d agent(s) with %q:\n", len(agents), args[0])
			for _, a := range agents {
				fmt.Printf("  - %s: %s\n", a.Name, a.Endpoint)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().BoolVar(&onlineOnly, "online", false, "only online agents")
	return cmd
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove an agent from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New(opts.registryPath())
			reg.Remove(args[0])
			return nil
		},
	}
}
