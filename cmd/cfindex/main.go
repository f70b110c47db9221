package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/climateseal/carbonmatch/internal/bootstrap"
	"github.com/climateseal/carbonmatch/internal/cli"
	"github.com/climateseal/carbonmatch/internal/config"
	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/repository/catalog"
)

// openStore is replaced in tests to share one in-memory backend across commands.
var openStore = bootstrap.OpenStore

type globalFlags struct {
	configPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "cfindex",
		Short:        "Administer the emission factor catalog index",
		SilenceUsage: true,
		Long: `cfindex inspects and maintains the Elasticsearch index holding the
emission factor catalog. Connection settings come from the config file.

Examples:
  cfindex ping
  cfindex count
  cfindex ensure carbon_factor_v2
  cfindex delete carbon_factor_v1 --force`,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: config/$ENV.yaml)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "overall deadline for the command")

	root.AddCommand(
		newDeleteCmd(g),
		newPingCmd(g),
		newCountCmd(g),
		newEnsureCmd(g),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// session is the per-command backend handle.
type session struct {
	cfg     config.Config
	store   db.Store
	printer *cli.Printer
}

func open(cmd *cobra.Command, g *globalFlags) (*session, error) {
	cfg, err := cli.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg.Elasticsearch)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		store:   store,
		printer: cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}, nil
}

func (s *session) catalog(index string) *catalog.Repo {
	return bootstrap.Catalog(s.store, &s.cfg, index)
}

// run opens a session and calls fn under the --timeout deadline.
func run(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, s *session) error) error {
	s, err := open(cmd, g)
	if err != nil {
		return err
	}
	defer s.store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return fn(ctx, s)
}

func optionalIndex(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete an index; an index that is already absent counts as deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := args[0]
			if !db.IsValidIndexName(index) {
				return fmt.Errorf("invalid index name %q", index)
			}
			return run(cmd, g, func(ctx context.Context, s *session) error {
				if !force {
					ok, err := cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
						fmt.Sprintf("Delete index %s and every document in it?", index))
					if err != nil {
						return err
					}
					if !ok {
						s.printer.Warn("aborted, index %s left unchanged", index)
						return nil
					}
				}
				existed, err := s.catalog(index).Delete(ctx)
				if err != nil {
					return err
				}
				if existed {
					s.printer.OK("index %s deleted", index)
				} else {
					s.printer.OK("index %s already absent", index)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

func newPingCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, g, func(ctx context.Context, s *session) error {
				info, err := s.catalog("").Ping(ctx)
				if err != nil {
					return err
				}
				s.printer.OK("cluster %s, version %s", info.ClusterName, info.Version)
				return nil
			})
		},
	}
}

func newCountCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count [index]",
		Short: "Print the document count of an index (default: the configured index)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, s *session) error {
				c := s.catalog(optionalIndex(args))
				n, err := c.Count(ctx)
				if err != nil {
					return err
				}
				s.printer.OK("index %s holds %d documents", c.Index(), n)
				return nil
			})
		},
	}
}

func newEnsureCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure [index]",
		Short: "Create the catalog index with its mapping when absent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(ctx context.Context, s *session) error {
				c := s.catalog(optionalIndex(args))
				if err := c.EnsureSchema(ctx); err != nil {
					return err
				}
				s.printer.OK("index %s ready (%d-dim content_vector)", c.Index(), s.cfg.Embedding.Dimensions)
				return nil
			})
		},
	}
}
