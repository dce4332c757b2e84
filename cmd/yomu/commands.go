package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/answer"
	"github.com/hyperjump/yomu/internal/cli"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/server"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/watcher"
	"github.com/hyperjump/yomu/pkg/utils"
)

// withComponents opens the store directly for one command and closes it afterwards.
func withComponents(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, c *Components) error) error {
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || g.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and watch configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g)
		},
	}
}

func runServe(ctx context.Context, g *globalFlags) error {
	cfg, resolvedPath, err := loadConfig(g.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || g.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debug))

	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := watcher.New(cfg.Watch.Directories,
		func(ctx context.Context, path string) {
			if _, err := c.Pipeline.IngestFile(ctx, path); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
		watcher.WithExtensions(cfg.Ingest.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	go w.SyncExistingFiles()

	opts := []server.Option{
		server.WithLedger(c.Ledger),
		server.WithWatch(w, resolvedPath),
	}
	if c.Generator != nil {
		opts = append(opts, server.WithGenerator(c.Generator))
	}
	srv := server.NewServer(c.Retriever, c.Pipeline, cfg, logger, opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files or directories into the store",
		Long: `Extracts, chunks and embeds every supported file under the given paths.
Files whose size and modification time are unchanged since the last run are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			paths := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				paths = append(paths, abs)
			}

			if g.serverURL != "" {
				client := newAPIClient(g.serverURL)
				for _, p := range paths {
					var resp models.IngestResponse
					if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/ingest", map[string]string{"path": p}, &resp); err != nil {
						return fmt.Errorf("ingest %s: %w", p, err)
					}
					if err := cli.WriteIngestResult(cmd.OutOrStdout(), &resp, format); err != nil {
						return err
					}
				}
				return nil
			}

			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				for _, p := range paths {
					resp, err := ingestPath(ctx, c, p)
					if resp != nil {
						if werr := cli.WriteIngestResult(cmd.OutOrStdout(), resp, format); werr != nil {
							return werr
						}
					}
					if err != nil {
						return fmt.Errorf("ingest %s: %w", p, err)
					}
				}
				return nil
			})
		},
	}
}

func ingestPath(ctx context.Context, c *Components, path string) (*models.IngestResponse, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return c.Pipeline.IngestDirectory(ctx, path)
	}
	return c.Pipeline.IngestFile(ctx, path)
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve the chunks most similar to a query",
		Long: `Retrieves stored chunks similar to the query. Results are returned only when
the best match clears the score gate and stands apart from the runner-up;
otherwise yomu reports that it has no confident match.

The query is all arguments joined by spaces, so quoting is optional.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			query, err := requireQuery(args)
			if err != nil {
				return err
			}
			req := models.SearchRequest{Query: query, K: k}
			if err := req.Validate(); err != nil {
				return err
			}

			if g.serverURL != "" {
				var resp models.SearchResponse
				if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/search", req, &resp); err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(cmd.OutOrStdout(), &resp, format)
			}

			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				start := time.Now()
				results, err := c.Retriever.Search(ctx, req.Query, req.K)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(cmd.OutOrStdout(), &models.SearchResponse{
					Query:     req.Query,
					Results:   results,
					Total:     len(results),
					QueryTime: time.Since(start).Milliseconds(),
				}, format)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of results (0 = retrieval.top_k from config)")
	return cmd
}

func newAskCmd(g *globalFlags) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Long: `Retrieves confident chunks for the question and asks the configured chat model
to answer from them only. Without confident chunks the answer is "I don't know."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			question, err := requireQuery(args)
			if err != nil {
				return err
			}
			req := models.AskRequest{Question: question, K: k}
			if err := req.Validate(); err != nil {
				return err
			}

			if g.serverURL != "" {
				var resp models.AskResponse
				if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/ask", req, &resp); err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), &resp, format)
			}

			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				if c.Generator == nil {
					return fmt.Errorf("answer generation not configured (set answer.base_url)")
				}
				start := time.Now()
				text, chunks, err := answer.Ask(ctx, c.Retriever, c.Generator, req.Question, req.K)
				if err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), &models.AskResponse{
					Question:  req.Question,
					Answer:    text,
					Sources:   chunks,
					QueryTime: time.Since(start).Milliseconds(),
				}, format)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of context chunks (0 = retrieval.top_k from config)")
	return cmd
}

func newResetCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored chunk and the ingestion history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes every ingested chunk; rerun with --yes to confirm")
			}
			if g.serverURL != "" {
				if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/reset", nil, nil); err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Store reset")
				return nil
			}
			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				if err := c.Pipeline.Reset(ctx); err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Store reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newReloadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make a running server re-read the persisted store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.serverURL == "" {
				return fmt.Errorf("reload requires --server (or %s)", envServerURL)
			}
			var report struct {
				State  string `json:"state"`
				Reason string `json:"reason"`
				Count  int    `json:"count"`
			}
			if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodPost, "/api/v1/reload", nil, &report); err != nil {
				return fmt.Errorf("reload failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reloaded: %s, %d chunks\n", report.State, report.Count)
			if report.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Reason: %s\n", report.Reason)
			}
			return nil
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store size, model and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			if g.serverURL != "" {
				var resp models.StatusResponse
				if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(cmd.OutOrStdout(), &resp, format)
			}
			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				resp, err := server.BuildStatus(ctx, c.Retriever, c.Ledger, c.Config.Storage.DatabasePath)
				if err != nil {
					return err
				}
				return cli.WriteStatus(cmd.OutOrStdout(), resp, format)
			})
		},
	}
}

func newSourcesCmd(g *globalFlags) *cobra.Command {
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List ingested source files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := g.format()
			if err != nil {
				return err
			}
			if g.serverURL != "" {
				var resp struct {
					Sources []*storage.Source `json:"sources"`
				}
				q := url.Values{}
				q.Set("offset", fmt.Sprint(offset))
				q.Set("limit", fmt.Sprint(limit))
				if err := newAPIClient(g.serverURL).do(cmd.Context(), http.MethodGet, "/api/v1/sources?"+q.Encode(), nil, &resp); err != nil {
					return fmt.Errorf("list sources failed: %w", err)
				}
				return cli.WriteSources(cmd.OutOrStdout(), resp.Sources, format)
			}
			return withComponents(cmd, g, func(ctx context.Context, c *Components) error {
				sources, err := c.Ledger.ListSources(ctx, offset, limit)
				if err != nil {
					return fmt.Errorf("list sources failed: %w", err)
				}
				return cli.WriteSources(cmd.OutOrStdout(), sources, format)
			})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many sources")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of sources")
	return cmd
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage directories watched by a running server",
	}
	requireServer := func() (*apiClient, error) {
		if g.serverURL == "" {
			return nil, fmt.Errorf("watch requires --server (or %s)", envServerURL)
		}
		return newAPIClient(g.serverURL), nil
	}

	var noSync bool
	addCmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Watch a directory and ingest the files already in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			body := map[string]any{"path": path, "sync": !noSync}
			if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/watch/directories", body, nil); err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
			return nil
		},
	}
	addCmd.Flags().BoolVar(&noSync, "no-sync", false, "do not ingest files already in the directory")

	removeCmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop watching a directory (its chunks stay in the store)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := client.do(cmd.Context(), http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, nil); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List watched directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := requireServer()
			if err != nil {
				return err
			}
			var out struct {
				Directories []string `json:"directories"`
			}
			if err := client.do(cmd.Context(), http.MethodGet, "/api/v1/watch/directories", nil, &out); err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			for _, d := range out.Directories {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}

	watchCmd.AddCommand(addCmd, removeCmd, listCmd)
	return watchCmd
}
