package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/config"
	"github.com/dshills/gigsearch/internal/engine"
	"github.com/dshills/gigsearch/internal/httpapi"
	"github.com/dshills/gigsearch/internal/logger"
	"github.com/dshills/gigsearch/internal/mcp"
	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// runtime carries what Before resolved into every command
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
	opts   []engine.Option
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer, opts ...engine.Option) *cli.App {
	rt := &runtime{out: out, opts: opts}

	return &cli.App{
		Name:    "gigsearch",
		Usage:   "Hybrid keyword and semantic search over freelancer profiles",
		Version: fmt.Sprintf("%s (built %s, sqlite %s/%s)", version, buildTime, storage.BuildMode, storage.DriverName),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				EnvVars: []string{config.EnvConfigFile},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the config",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: rt.setup,
		After:  rt.teardown,
		Commands: []*cli.Command{
			{
				Name:   "serve-mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: rt.serveMCP,
			},
			{
				Name:   "serve-http",
				Usage:  "Serve the HTTP API",
				Action: rt.serveHTTP,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides http.addr)"},
				},
			},
			{
				Name:   "bootstrap",
				Usage:  "Populate both indexes from the profile store",
				Action: rt.bootstrap,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Reindex every profile even when the indexes are populated"},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index entries of one freelancer",
				Action: rt.reindex,
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Usage: "Freelancer id", Required: true},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a search and print ranked freelancer ids",
				ArgsUsage: "[query]",
				Action:    rt.search,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "Exact category"},
					&cli.StringFlag{Name: "min-budget", Usage: "Keep freelancers whose max_budget is at least this"},
					&cli.StringFlag{Name: "max-budget", Usage: "Keep freelancers whose min_budget is at most this"},
					&cli.StringFlag{Name: "location", Usage: "Location substring"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum results"},
				},
			},
			{
				Name:   "health",
				Usage:  "Print search health; exits non-zero when unavailable",
				Action: rt.health,
			},
			{
				Name:   "import",
				Usage:  "Load profiles and portfolio items from a JSON file and index them",
				Action: rt.importProfiles,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON file to import", Required: true},
				},
			},
		},
	}
}

func (rt *runtime) setup(c *cli.Context) error {
	if err := config.LoadDotEnv(c.String("env-file")); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	l, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	rt.logger = l
	return nil
}

func (rt *runtime) teardown(*cli.Context) error {
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
	return nil
}

func (rt *runtime) open(ctx context.Context) (*engine.Engine, error) {
	return engine.Open(ctx, rt.cfg, rt.logger, rt.opts...)
}

// withEngine opens the engine for one command and always closes it
func (rt *runtime) withEngine(c *cli.Context, fn func(ctx context.Context, eng *engine.Engine) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := rt.open(ctx)
	if err != nil {
		return err
	}
	runErr := fn(ctx, eng)
	if err := eng.Close(); err != nil {
		rt.logger.Error("close engine", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func (rt *runtime) print(v any) error {
	enc := json.NewEncoder(rt.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (rt *runtime) serveMCP(c *cli.Context) error {
	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		srv, err := mcp.NewServer(eng, rt.logger)
		if err != nil {
			return err
		}
		err = srv.Serve(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

func (rt *runtime) serveHTTP(c *cli.Context) error {
	metrics.Register()
	addr := rt.cfg.HTTP.Addr
	if a := c.String("addr"); a != "" {
		addr = a
	}

	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		api := httpapi.NewServer(eng, eng.Store(), rt.logger)
		srv := httpapi.NewHTTPServer(addr, api.Router(), rt.cfg.HTTP.ReadTimeout, rt.cfg.HTTP.WriteTimeout)

		errCh := make(chan error, 1)
		go func() {
			rt.logger.Info("starting HTTP server", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		rt.logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		rt.logger.Info("server stopped gracefully")
		return nil
	})
}

func (rt *runtime) bootstrap(c *cli.Context) error {
	rt.cfg.Bootstrap.OnStart = false
	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		report, err := eng.Bootstrap(ctx, c.Bool("force"))
		if report != nil {
			if perr := rt.print(report); perr != nil {
				return perr
			}
		}
		return err
	})
}

func (rt *runtime) reindex(c *cli.Context) error {
	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		res := eng.OnProfileChanged(ctx, c.Int64("id"))
		if err := rt.print(map[string]any{
			"freelancer_id": res.FreelancerID,
			"deleted":       res.Deleted,
			"ok":            res.OK(),
		}); err != nil {
			return err
		}
		if !res.OK() {
			return cli.Exit(res.Err().Error(), 2)
		}
		return nil
	})
}

func (rt *runtime) search(c *cli.Context) error {
	filters, err := types.ParseFilters(c.String("category"), c.String("min-budget"), c.String("max-budget"), c.String("location"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		resp, err := eng.SearchDetailed(ctx, searcher.SearchRequest{
			Query:   c.Args().First(),
			Filters: filters,
			Limit:   c.Int("limit"),
		})
		if types.IsValidation(err) {
			return cli.Exit(err.Error(), 2)
		}
		if err != nil {
			return err
		}
		return rt.print(map[string]any{
			"freelancer_ids": resp.IDs(),
			"mode":           resp.Mode,
			"degraded":       resp.Degraded,
		})
	})
}

func (rt *runtime) health(c *cli.Context) error {
	rt.cfg.Bootstrap.OnStart = false
	return rt.withEngine(c, func(ctx context.Context, eng *engine.Engine) error {
		h := eng.Health(ctx)
		if err := rt.print(h); err != nil {
			return err
		}
		if h.Status == types.HealthUnavailable {
			return cli.Exit("search unavailable: "+h.Detail, 1)
		}
		return nil
	})
}
