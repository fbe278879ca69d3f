package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/casebatch/internal/adapters/sqlite"
	"github.com/bft-labs/casebatch/internal/cliconfig"
	"github.com/bft-labs/casebatch/pkg/log"
)

const helpDescription = `
Work through a durable queue of cases with a pool of supervised executors.

Cases live in a SQLite database. Each worker claims a batch, runs every case
through its executor (an HTTP service or an external command) and writes the
result back. Failed workers are replaced; their claimed cases stay claimed
until "casebatch clean" releases them.

Configuration is read from $HOME/.casebatch/config.toml, then CASEBATCH_*
environment variables, then flags.

"clean" and "reset" must only be used while no run is active.
`

var exampleUsage = strings.TrimSpace(`
  casebatch prepare --profiles ./profiles --evidence ./evidence --params params.csv
  casebatch run --jobs 8 --service-url http://localhost:2926
  casebatch run --executor command --command ./drive-form.sh --sweep-dir ~/Downloads --sweep-glob '**/*.pdf'
  casebatch status
  casebatch export --out results.csv
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the configuration and logger shared by all subcommands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *log.ZerologAdapter
}

// loadConfig applies the config file and environment beneath explicitly set
// flags. Validation is left to the commands that need the full config.
func (a *app) loadConfig(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	} else if a.cfgPath != "" {
		return fmt.Errorf("config file %s not found", a.cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if a.cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	a.logger = log.NewZerologAdapter(os.Stderr, a.cfg.Verbose)
	return nil
}

func (a *app) openStore(autosave bool) (*sqlite.Store, error) {
	store, err := sqlite.Open(a.cfg.DBPath, sqlite.Options{
		Autosave: autosave,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	return store, nil
}

func newRootCommand() *cobra.Command {
	a := &app{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "casebatch",
		Short:         "Run a durable case queue through a pool of supervised executors",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.casebatch/config.toml)")
	root.PersistentFlags().StringVar(&a.cfg.DBPath, "db", a.cfg.DBPath, "case database path")
	root.PersistentFlags().BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "enable debug logging")

	root.AddCommand(
		newRunCommand(a),
		newStatusCommand(a),
		newListCommand(a),
		newCleanCommand(a),
		newResetCommand(a),
		newPrepareCommand(a),
		newExportCommand(a),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "casebatch: %v\n", err)
		os.Exit(1)
	}
}
