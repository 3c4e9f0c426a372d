package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/metagate/pkg/config"
)

func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the gateway configuration",
	}
	cmd.AddCommand(c.configCheckCommand())
	cmd.AddCommand(c.configDefaultsCommand())
	return cmd
}

func (c *CLI) configCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				printError(c.out, "%s", path)
				return err
			}

			printSuccess(c.out, "%s is valid", path)
			printKeyValue(c.out, "listen", cfg.Server.Listen)
			printKeyValue(c.out, "backend", cfg.Backend.URL)
			if cfg.Catalog.Enabled {
				mode := "matching"
				if cfg.Catalog.Fallback {
					mode = "matching, fallback"
				}
				printKeyValue(c.out, "catalog", fmt.Sprintf("%s (%s)", cfg.Catalog.URL, mode))
			} else {
				printKeyValue(c.out, "catalog", "")
			}
			for _, p := range cfg.Sources.Peer {
				printKeyValue(c.out, "source", p.Slug+" → "+p.URL)
			}
			if len(cfg.Sources.Peer) == 0 {
				printWarning(c.out, "no sources configured; serve will refuse to start")
			}

			domains := make([]string, 0, len(cfg.Executor.Domains))
			for d := range cfg.Executor.Domains {
				domains = append(domains, d)
			}
			sort.Strings(domains)
			if len(domains) > 0 {
				printDetail(c.out, "executor overrides: %s", strings.Join(domains, ", "))
			}
			return nil
		},
	}
	cmd.ValidArgsFunction = completeConfigFiles
	return cmd
}

func (c *CLI) configDefaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return toml.NewEncoder(c.out).Encode(config.Default())
		},
	}
}
