package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zhound420/acp-agents-skill/internal/acp"
	"github.com/zhound420/acp-agents-skill/internal/history"
	"github.com/zhound420/acp-agents-skill/internal/registry"
	"github.com/zhound420/acp-agents-skill/internal/router"
	"github.com/zhound420/acp-agents-skill/internal/stream"
)

const chatTruncateLen = 2000

func newCallCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "call <agent> <message...>",
		Short: "Call an agent synchronously",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			message := joinArgs(args[1:])

			hist, err := history.New(opts.historyPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			rt := router.New(router.Config{
				Timeout: time.Duration(opts.TimeoutSecs) * time.Second,
				OnResult: func(resp *acp.Response) {
					_ = hist.RecordCall(&history.Call{
						Agent:     resp.Agent,
						Transport: resp.Transport,
						Status:    resp.Status,
						Task:      message,
						Response:  resp.Content,
						ElapsedMs: resp.ElapsedMs,
					})
				},
			})
			defer rt.Close()

			reg := registry.New(opts.registryPath())
			rt.ImportRegistry(reg)

			// Fall back to the default endpoint for unknown names.
			if !rt.Has(agent) {
				rt.RegisterHTTP(agent, opts.Endpoint, nil)
			}

			fmt.Printf("Calling %s...\n", agent)
			resp := rt.Call(cmd.Context(), agent, message, nil)

			fmt.Printf("\nStatus: %s\n", resp.Status)
			fmt.Printf("Transport: %s\n", resp.Transport)
			fmt.Printf("Time: %dms\n", resp.ElapsedMs)
			fmt.Printf("\n%s\n", resp.Content)
			return nil
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var chatMode bool
	cmd := &cobra.Command{
		Use:   "run <agent> <task...>",
		Short: "Run an agent with a streaming response",
		Long: `Run an agent in stream mode. By default every decoded log line goes to
stderr and the final output to stdout. With --chat only highlights and a
truncated final output are printed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			task := joinArgs(args[1:])

			hist, err := history.New(opts.historyPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			call := &history.Call{
				ID:        uuid.New().String(),
				Agent:     agent,
				Transport: acp.TransportHTTP,
				Task:      task,
			}

			client := stream.NewClient(opts.Endpoint)
			client.Timeout = time.Duration(opts.TimeoutSecs) * time.Second

			start := time.Now()
			output, runErr := client.Run(cmd.Context(), agent, task, func(ev stream.Event) {
				switch ev.Kind {
				case stream.KindLog:
					if !chatMode {
						fmt.Fprintf(os.Stderr, "[%s] %s\n", time.Now().Format("15:04:05"), ev.Text)
					}
				case stream.KindHighlight:
					if chatMode {
						fmt.Println(ev.Text)
					} else if opts.Verbose {
						fmt.Fprintf(os.Stderr, "[%s] ★ %s\n", time.Now().Format("15:04:05"), ev.Text)
					}
				}
				_ = hist.RecordEvent(&history.Event{CallID: call.ID, Kind: ev.Kind, Text: ev.Text})
			})

			call.ElapsedMs = time.Since(start).Milliseconds()
			call.Status = acp.StatusCompleted
			call.Response = output
			if runErr != nil {
				call.Status = acp.StatusError
				call.Response = runErr.Error()
			}
			_ = hist.RecordCall(call)

			if runErr != nil {
				return runErr
			}

			if chatMode {
				fmt.Println()
				if len(output) > chatTruncateLen {
					fmt.Println(output[:chatTruncateLen] + "\n...[truncated]")
				} else {
					fmt.Println(output)
				}
				return nil
			}

			fmt.Fprintln(os.Stderr, "\n==================================================")
			fmt.Fprintln(os.Stderr, "FINAL OUTPUT:")
			fmt.Fprintln(os.Stderr, "==================================================")
			fmt.Println(output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&chatMode, "chat", false, "highlights only (for chat surfaces)")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	var summary bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent agent calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := history.New(opts.historyPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			if summary {
				stats, err := hist.Summary()
				if err != nil {
					return err
				}
				fmt.Printf("Calls:       %v\n", stats["total_calls"])
				fmt.Printf("Errors:      %v\n", stats["error_count"])
				fmt.Printf("Avg latency: %vms\n", stats["avg_elapsed_ms"])
				fmt.Printf("Transports:  %v\n", stats["transport_counts"])
				return nil
			}

			calls, err := hist.ListCalls(limit)
			if err != nil {
				return err
			}
			if len(calls) == 0 {
				fmt.Println("No calls recorded")
				return nil
			}
			fmt.Printf("\n%-20s %-15s %-10s %-10s %s\n", "Time", "Agent", "Status", "Transport", "Elapsed")
			for _, c := range calls {
				fmt.Printf("%-20s %-15s %-10s %-10s %dms\n",
					c.CreatedAt.Format("2006-01-02 15:04:05"), c.Agent, c.Status, c.Transport, c.ElapsedMs)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max calls to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show aggregate statistics")
	return cmd
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
