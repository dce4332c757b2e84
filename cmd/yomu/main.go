// Package main is the yomu CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperjump/yomu/internal/cli"
	"github.com/hyperjump/yomu/internal/config"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yomu/config.yaml"

// envServerURL makes commands talk to a running server instead of opening the store.
const envServerURL = "YOMU_SERVER"

type globalFlags struct {
	configPath string
	debug      bool
	serverURL  string
	output     string
}

func (g *globalFlags) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(g.output)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "yomu",
		Short: "Local retrieval over your documents with a confidence gate",
		Long: `yomu ingests documents into a persisted vector store and answers queries
with the chunks it is confident about. When nothing clears the gate it says so
instead of guessing.`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&g.debug, "debug", false, "enable debug logging")
	pf.StringVar(&g.serverURL, "server", os.Getenv(envServerURL), "server URL; when empty the store is opened directly")
	pf.StringVarP(&g.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		newServeCmd(g),
		newIngestCmd(g),
		newSearchCmd(g),
		newAskCmd(g),
		newResetCmd(g),
		newReloadCmd(g),
		newStatusCmd(g),
		newSourcesCmd(g),
		newWatchCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yomu version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default, a config.yaml in
// the current directory wins so that running from a project dir uses the project's
// config. A missing default file yields the built-in defaults.
// Returns the config and the path it came from ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// buildQuery joins positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func requireQuery(args []string) (string, error) {
	q := buildQuery(args)
	if q == "" {
		return "", fmt.Errorf("query cannot be empty")
	}
	return q, nil
}
