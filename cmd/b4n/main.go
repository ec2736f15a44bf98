package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fioletoven/b4n/internal/app"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := app.Options{}

	root := &cobra.Command{
		Use:   "b4n",
		Short: "Terminal UI for browsing and managing Kubernetes clusters",
		// Running with no subcommand launches the TUI directly.
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.Kubeconfig, "kubeconfig", "", "path to the kubeconfig file (defaults to $KUBECONFIG or ~/.kube/config)")
	root.PersistentFlags().StringVar(&opts.Context, "context", "", "kubeconfig context to use (defaults to the current context)")
	root.PersistentFlags().StringVarP(&opts.Namespace, "namespace", "n", "", "namespace to start in (defaults to all namespaces)")
	root.PersistentFlags().BoolVar(&opts.InsecureSkipTLSVerify, "insecure-skip-tls-verify", false, "skip TLS certificate verification when talking to the API server")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.InitialKind, "kind", "pods", "resource kind to show on startup")

	root.AddCommand(newTuiCommand(&opts))

	return root
}

// newTuiCommand is an explicit alias for the root command's default action,
// kept for users who prefer to spell out "b4n tui".
func newTuiCommand(opts *app.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the terminal UI (default when no subcommand is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(*opts)
		},
	}
}
