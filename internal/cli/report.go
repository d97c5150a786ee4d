package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medreport-explainer/internal/app"
	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/export"
	"github.com/medreport-explainer/internal/storage"
)

// Output formats
const (
	FormatJSON = "json"
	FormatText = "text"
)

type reportOptions struct {
	local    bool
	preview  bool
	format   string
	images   []string
	document string
	save     bool
}

// NewReportCmd creates the report command, which explains one report file.
func NewReportCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report [file]",
		Short: "Explain a medical report",
		Long: "Explain the report text in file (\"-\" reads standard input). Page images and a\n" +
			"source document may be attached with --image and --document.",
		Example: "  explain report lab.txt\n" +
			"  explain report --local --format text lab.txt\n" +
			"  explain report --image page1.png --image page2.png",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.local, "local", false, "explain with the built-in dictionary only, without remote calls")
	f.BoolVar(&opts.preview, "preview", false, "print the structure preview instead of the full explanation")
	f.StringVarP(&opts.format, "format", "f", FormatJSON, "output format (json, text)")
	f.StringArrayVar(&opts.images, "image", nil, "page image to attach, in page order (repeatable)")
	f.StringVar(&opts.document, "document", "", "source document to attach")
	f.BoolVar(&opts.save, "save", false, "store the result in the configured result store")

	return cmd
}

func runReport(cmd *cobra.Command, args []string, opts *reportOptions) error {
	if opts.format != FormatJSON && opts.format != FormatText {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if opts.preview && opts.format == FormatText {
		return fmt.Errorf("previews are only available as json")
	}

	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}

	req, err := buildRequest(cmd, args, opts)
	if err != nil {
		return err
	}
	if !req.HasContent() {
		return fmt.Errorf("nothing to explain: provide a file, --image or --document")
	}

	ctx, cancel := cliCtx.withTimeout(cmd.Context())
	defer cancel()

	var appOpts []app.Option
	if opts.save {
		appOpts = append(appOpts, app.WithStore())
	}
	application, err := cliCtx.newApp(ctx, appOpts...)
	if err != nil {
		return err
	}
	defer application.Close()
	if opts.save && application.Store == nil {
		return fmt.Errorf("--save requires storage.driver to be sqlite or postgres")
	}

	out := cmd.OutOrStdout()

	if opts.preview {
		preview, err := application.Explainer.Preview(ctx, req)
		if err != nil {
			return err
		}
		if opts.save {
			record, err := storage.NewPreviewRecord(preview)
			if err != nil {
				return err
			}
			if err := saveResult(cmd, application.Store, record); err != nil {
				return err
			}
		}
		return printJSON(out, preview)
	}

	var explanation *domain.FullExplanation
	if opts.local {
		explanation = application.Explainer.ExplainLocal(req)
	} else if explanation, err = application.Explainer.Explain(ctx, req); err != nil {
		return err
	}

	if opts.save {
		record, err := storage.NewExplanationRecord(explanation)
		if err != nil {
			return err
		}
		if err := saveResult(cmd, application.Store, record); err != nil {
			return err
		}
	}

	if opts.format == FormatText {
		return export.WriteText(out, explanation)
	}
	return printJSON(out, explanation)
}

func buildRequest(cmd *cobra.Command, args []string, opts *reportOptions) (*domain.AnalysisRequest, error) {
	req := &domain.AnalysisRequest{}
	if len(args) == 1 {
		text, err := readInput(cmd, args[0])
		if err != nil {
			return nil, err
		}
		req.Text = string(text)
	}
	for _, path := range opts.images {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		req.Images = append(req.Images, data)
	}
	if opts.document != "" {
		data, err := os.ReadFile(opts.document)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		req.Document = data
	}
	return req, nil
}

// saveResult stores record and reports its ID on stderr.
func saveResult(cmd *cobra.Command, store storage.Store, record *storage.Record) error {
	if err := store.Save(cmd.Context(), record); err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved result %s\n", record.ID)
	return nil
}
