/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// hcd runs one application instance: engine, ribosome, store,
// network coupling, and a WebSocket/HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dynaput247/holochain/tools"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hcd",
		Short:         "Run a distributed application instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newDocCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	var (
		opts     ServiceOptions
		httpAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an instance of the given DNA",
		Long: `Run an instance of the given DNA.

With --db, the action log is persisted and the instance's state is
restored by replay on the next start.  With --broker, the instance
joins the DNA's MQTT neighborhood; without it, a solo in-memory
network is used.

Example:
  hcd run --dna blog.yaml --db blog.db --http :8800`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DNAFile == "" {
				return fmt.Errorf("--dna is required")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				sigs := make(chan os.Signal, 1)
				signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
				<-sigs
				cancel()
			}()

			s, err := NewService(ctx, opts)
			if err != nil {
				return err
			}

			if httpAddr != "" {
				if err := s.WebSocketService(ctx); err != nil {
					return err
				}
				go func() {
					if err := s.HTTPServer(ctx, httpAddr); err != nil {
						fmt.Fprintln(os.Stderr, err)
						cancel()
					}
				}()
			}

			return s.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.DNAFile, "dna", "", "DNA package file (YAML)")
	cmd.Flags().StringVar(&opts.DBFile, "db", "", "action log filename")
	cmd.Flags().StringVar(&opts.BrokerURL, "broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	cmd.Flags().StringVar(&opts.SweepExpr, "sweep", "0 * * * * * *", "cron expression for the stale-call sweeper (empty disables)")
	cmd.Flags().DurationVar(&opts.MaxCallAge, "max-call-age", time.Minute, "cancel calls running longer than this")
	cmd.Flags().BoolVar(&opts.Tracing, "trace", false, "log each engine cycle")
	cmd.Flags().StringVar(&httpAddr, "http", ":8800", "address for the HTTP/WebSocket surface (empty disables)")

	return cmd
}

func newDocCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doc <dna.yaml>",
		Short: "Render a DNA package as an HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tools.ReadAndRenderDNAPage(args[0], nil, os.Stdout)
		},
	}
}
