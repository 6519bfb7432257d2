package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhound420/acp-agents-skill/internal/acp"
	"github.com/zhound420/acp-agents-skill/internal/history"
	"github.com/zhound420/acp-agents-skill/internal/monitor"
	"github.com/zhound420/acp-agents-skill/internal/runtime"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr, name string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host an ACP agent runtime",
		Long: `Start an ACP runtime serving the discovery manifest, liveness ping,
and sync/stream runs for the built-in demo agents. A WebSocket monitor
feed is mounted at /ws and every run is recorded in the call history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hist, err := history.New(opts.historyPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer hist.Close()

			hub := monitor.NewHub()
			go hub.Run()

			srv := runtime.New(runtime.Config{
				Name:        name,
				Description: "ACP demo agents",
				Version:     Version,
				Addr:        addr,
				OnThought: func(agent, thought string) {
					hub.BroadcastThought(agent, thought)
				},
				OnResult: func(agent, status, output string, elapsedMs int64) {
					resp := &acp.Response{
						Content:   output,
						Agent:     agent,
						Status:    status,
						ElapsedMs: elapsedMs,
						Transport: acp.TransportHTTP,
					}
					hub.BroadcastCall(resp)
					_ = hist.RecordCall(&history.Call{
						Agent:     agent,
						Transport: acp.TransportHTTP,
						Status:    status,
						Response:  output,
						ElapsedMs: elapsedMs,
					})
				},
			})

			srv.RegisterAgent("echo", "Echoes the task back", []string{"echo"}, runtime.EchoAgent)
			srv.RegisterAgent("swarm", "Simulated multi-agent orchestration",
				[]string{"streaming", "swarm"}, runtime.SwarmDemoAgent)
			srv.Handle("/ws", http.HandlerFunc(hub.HandleWebSocket))

			fmt.Printf("ACP runtime on %s\n", addr)
			fmt.Printf("  - GET  %s  (discovery)\n", acp.DiscoveryPath)
			fmt.Printf("  - GET  %s  (liveness)\n", acp.PingPath)
			fmt.Printf("  - POST %s  (run agent, sync or stream)\n", acp.RunsPath)
			fmt.Println("  - WS   /ws  (monitor feed)")

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				fmt.Printf("\nReceived %v, shutting down...\n", sig)
				return srv.Stop()
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().StringVar(&name, "name", "ACP Agents", "runtime name in the discovery manifest")
	return cmd
}
