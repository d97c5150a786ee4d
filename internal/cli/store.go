package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medreport-explainer/internal/app"
	"github.com/medreport-explainer/internal/storage"
)

// NewStoreCmd creates the store command group for managing saved results.
func NewStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage stored results",
	}
	cmd.AddCommand(newStoreListCmd(), newStoreExportCmd(), newStoreImportCmd())
	return cmd
}

func openStore(cmd *cobra.Command) (*app.App, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	application, err := cliCtx.newApp(cmd.Context(), app.WithStore())
	if err != nil {
		return nil, err
	}
	if application.Store == nil {
		application.Close()
		return nil, fmt.Errorf("no result store configured: set storage.driver to sqlite or postgres")
	}
	return application, nil
}

func newStoreListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			records, err := application.Store.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return writeRecordTable(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of results to skip")
	return cmd
}

func writeRecordTable(w io.Writer, records []*storage.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tREPORT TYPE\tSOURCE\tCREATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.ReportType, r.Source, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func newStoreExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every stored result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}
			return application.Store.ExportJSON(cmd.Context(), w)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write (\"-\" for standard output)")
	return cmd
}

func newStoreImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import results from a JSON export, skipping existing IDs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			imported, skipped, err := application.Store.ImportJSON(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d results, skipped %d\n", imported, skipped)
			return nil
		},
	}
}
