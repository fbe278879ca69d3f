package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/casebatch/internal/adapters/sqlite"
	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/export"
	"github.com/bft-labs/casebatch/internal/ingest"
	"github.com/bft-labs/casebatch/pkg/log"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print case counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(false, func(store *sqlite.Store) error {
				counts, err := store.Counts(cmdContext(cmd))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, counts)
				fmt.Fprintf(out, "Pending %d\n", counts.Pending())
				return nil
			})
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	var (
		filter string
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sqlite.ParseFilter(filter)
			if err != nil {
				return err
			}
			if output != "text" && output != "yaml" {
				return fmt.Errorf("unknown output %q (want text or yaml)", output)
			}
			return a.withStore(false, func(store *sqlite.Store) error {
				cases, err := store.List(cmdContext(cmd), f, limit)
				if err != nil {
					return err
				}
				if output == "yaml" {
					return writeYAML(cmd.OutOrStdout(), cases)
				}
				return writeTable(cmd.OutOrStdout(), cases)
			})
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "all", "all, pending, in-progress or finished")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of cases (0 = no limit)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

func newCleanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Release cases abandoned by failed workers",
		Long: `Release every claimed case that has no result so the next run picks it up.
Only use while no run is active: it also releases cases held by live workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(true, func(store *sqlite.Store) error {
				n, err := store.UnclaimIncomplete(cmdContext(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d cases\n", n)
				return nil
			})
		},
	}
}

func newResetCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard every claim and result",
		Long: `Clear the claimant and result of every case. Results are lost.
Only use while no run is active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset discards every result; pass --yes to confirm")
			}
			return a.withStore(true, func(store *sqlite.Store) error {
				n, err := store.ResetAll(cmdContext(cmd))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d cases\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm discarding all results")
	return cmd
}

func newPrepareCommand(a *app) *cobra.Command {
	cfg := ingest.Config{
		ProfilePattern:  ingest.DefaultPattern,
		EvidencePattern: ingest.DefaultPattern,
		Defaults:        ingest.Defaults{Theta: domain.DefaultTheta},
	}

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create cases from profile and evidence files",
		Long: `Pair every profile with every evidence file listed in the parameters CSV.
The CSV needs the columns Evidence, Contributors, Deducible and Quantity;
Theta and LabKitId are optional. Evidence files without parameters are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(false, func(store *sqlite.Store) error {
				sum, err := ingest.Run(cmdContext(cmd), cfg, store, a.logger)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created %d cases from %d profiles and %d evidence files\n",
					sum.Cases, sum.Profiles, sum.Evidence)
				for _, s := range sum.Skipped {
					fmt.Fprintf(out, "Skipped %s (no parameters)\n", s)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.ProfileDir, "profiles", "", "directory of profile files")
	f.StringVar(&cfg.EvidenceDir, "evidence", "", "directory of evidence files")
	f.StringVar(&cfg.ParamsFile, "params", "", "parameters CSV keyed by evidence file name")
	f.StringVar(&cfg.ProfilePattern, "profile-glob", cfg.ProfilePattern, "glob of profile files under --profiles")
	f.StringVar(&cfg.EvidencePattern, "evidence-glob", cfg.EvidencePattern, "glob of evidence files under --evidence")
	f.Float64Var(&cfg.Defaults.Theta, "theta", cfg.Defaults.Theta, "theta for rows without one")
	f.StringVar(&cfg.Defaults.LabKitID, "labkitid", "", "lab kit for rows without one")
	f.BoolVar(&cfg.SaveEveryEvidence, "save-every-evidence", false, "commit after each evidence file")
	for _, name := range []string{"profiles", "evidence", "params"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write finished cases as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(false, func(store *sqlite.Store) error {
				out := cmd.OutOrStdout()
				if outPath != "" && outPath != "-" {
					f, err := os.Create(outPath)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}

				rows, err := export.WriteCSV(cmdContext(cmd), store, out)
				if err != nil {
					return err
				}
				a.logger.Info("export complete", log.Int("rows", rows))
				if outPath != "" && outPath != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d cases to %s\n", rows, outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "output file (default: stdout)")
	return cmd
}

func (a *app) withStore(autosave bool, fn func(*sqlite.Store) error) error {
	store, err := a.openStore(autosave)
	if err != nil {
		return err
	}
	err = fn(store)
	if closeErr := store.Close(); err == nil {
		err = closeErr
	}
	return err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeTable(w io.Writer, cases []domain.Case) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tCLAIMANT\tPROFILE\tEVIDENCE\tN\tDEDUCIBLE\tQUANTITY\tTHETA")
	for _, c := range cases {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
			c.ID, caseState(c), c.Claimant, c.Profile, c.Evidence, c.Contributors, c.Deducible,
			strconv.FormatFloat(c.Quantity, 'g', -1, 64),
			strconv.FormatFloat(c.Theta, 'g', -1, 64),
		)
	}
	return tw.Flush()
}

func writeYAML(w io.Writer, cases []domain.Case) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cases); err != nil {
		return err
	}
	return enc.Close()
}

func caseState(c domain.Case) string {
	switch {
	case c.Finished():
		return "finished"
	case c.Claimed():
		return "in-progress"
	}
	return "pending"
}
