package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/metagate/internal/server"
	"github.com/matzehuels/metagate/pkg/config"
	"github.com/matzehuels/metagate/pkg/filter"
	"github.com/matzehuels/metagate/pkg/integrations/mediaserver"
	"github.com/matzehuels/metagate/pkg/integrations/peer"
	"github.com/matzehuels/metagate/pkg/metadata"
)

func (c *CLI) serveCommand() *cobra.Command {
	var configPath, listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metadata gateway",
		Long: `Run the metadata gateway.

Items are served under /library/metadata/<key>, where <key> is a qualified
identifier such as "friend:movie:42" or "friend://movie/42". Append
/children or /related for an item's children or related hubs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if !c.Verbose {
				level, _ := cfg.Log.ParseLevel()
				c.SetLogLevel(level)
			}

			p := newProgress(c.Logger)
			srv, n, err := c.newServer(cfg)
			if err != nil {
				return err
			}
			p.done(fmt.Sprintf("Configured %d sources", n))
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "configuration file")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	_ = cmd.RegisterFlagCompletionFunc("config", completeConfigFiles)
	return cmd
}

// newServer wires the configured upstreams, sources and filters into a
// server. It returns the number of sources.
func (c *CLI) newServer(cfg config.Config) (*server.Server, int, error) {
	execs := cfg.Executor.Manager(c.Logger)

	backend, err := mediaserver.NewClient(mediaserver.Config{
		BaseURL:   cfg.Backend.URL,
		Token:     cfg.Backend.Token,
		Address:   cfg.Backend.Address,
		Executors: execs,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("backend: %w", err)
	}
	var catalog metadata.Backend
	if cfg.Catalog.Enabled {
		cat, err := mediaserver.NewClient(mediaserver.Config{
			BaseURL:   cfg.Catalog.URL,
			Token:     cfg.Catalog.Token,
			Executors: execs,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("catalog: %w", err)
		}
		catalog = cat
	}

	filters := filter.NewBuilder(server.Points()...).WithLogger(c.Logger)
	if err := server.RegisterBuiltins(filters); err != nil {
		return nil, 0, err
	}
	for point, order := range cfg.Filters.Order {
		if err := filters.Order(point, order...); err != nil {
			return nil, 0, err
		}
	}

	var resolvers []metadata.Resolver
	for _, pc := range cfg.Sources.Peer {
		client, err := mediaserver.NewClient(mediaserver.Config{
			BaseURL:   pc.URL,
			Token:     pc.Token,
			Executors: execs,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("peer %s: %w", pc.Slug, err)
		}
		src, err := peer.New(pc.Slug, client, pc.Hubs...)
		if err != nil {
			return nil, 0, err
		}
		p, err := metadata.NewProvider[*metadata.Item](src, metadata.Config{
			Backend:              backend,
			Catalog:              catalog,
			CatalogFallback:      cfg.Catalog.Fallback,
			Defaults:             pc.Options(),
			MatchLifetime:        cfg.Cache.MatchLifetime.Duration,
			ItemLifetime:         cfg.Cache.ItemLifetime.Duration,
			AccessResetsLifetime: cfg.Cache.AccessResetsLifetime,
			SweepLimit:           cfg.Cache.SweepLimit,
			MatchConcurrency:     cfg.Cache.MatchConcurrency,
			Logger:               c.Logger,
		})
		if err != nil {
			return nil, 0, err
		}
		c.Logger.Debug("source configured", "source", pc.Slug, "url", pc.URL, "capabilities", src.Capabilities())
		resolvers = append(resolvers, p)
	}

	srv, err := server.New(server.Options{
		Listen:       cfg.Server.Listen,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		Resolvers:    resolvers,
		Filters:      filters.Build(),
		Logger:       c.Logger,
	})
	if err != nil {
		return nil, 0, err
	}
	return srv, len(resolvers), nil
}
