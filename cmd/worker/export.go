package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"djeworker/internal/export"
	"djeworker/internal/models"
	"djeworker/internal/storage"
	"djeworker/pkg/metadata"
)

// exportPageSize is the listing page size used to walk the store.
const exportPageSize = 500

type exportOptions struct {
	format string
	status string
	from   string
	to     string
	output string
}

func exportCMD(flags *rootFlags) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored publications as xlsx, markdown or html",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			q, err := opts.query()
			if err != nil {
				return err
			}

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.openStore(ctx); err != nil {
				return err
			}

			pubs, err := collect(ctx, a.repo, q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return fmt.Errorf("create %s: %w", opts.output, err)
				}
				defer f.Close()

				out = f
			}

			if err := render(out, opts.format, pubs); err != nil {
				return err
			}

			a.log.Info("✅ Export finished", "format", opts.format, "publications", len(pubs), "output", opts.output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "xlsx", "xlsx, md or html")
	cmd.Flags().StringVar(&opts.status, "status", "", "only publications with this status")
	cmd.Flags().StringVar(&opts.from, "from", "", "first filing day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last filing day (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func (o *exportOptions) query() (storage.ListQuery, error) {
	q := storage.ListQuery{Sort: "dataDisponibilizacao", Order: "asc", Limit: exportPageSize}

	switch strings.ToLower(o.format) {
	case "xlsx", "md", "html":
	default:
		return q, fmt.Errorf("unknown export format %q", o.format)
	}

	if o.status != "" {
		st, err := models.ParseStatus(o.status)
		if err != nil {
			return q, err
		}

		q.Status = st
	}

	for _, d := range []struct {
		raw string
		dst *time.Time
	}{{o.from, &q.From}, {o.to, &q.To}} {
		if d.raw == "" {
			continue
		}

		t, err := time.Parse(time.DateOnly, d.raw)
		if err != nil {
			return q, fmt.Errorf("invalid date %q: %w", d.raw, err)
		}

		*d.dst = t
	}

	return q, nil
}

type lister interface {
	List(ctx context.Context, q storage.ListQuery) (*storage.ListResult, error)
}

// collect walks every page of the listing.
func collect(ctx context.Context, repo lister, q storage.ListQuery) ([]models.Publication, error) {
	var pubs []models.Publication

	for q.Page = 1; ; q.Page++ {
		res, err := repo.List(ctx, q)
		if err != nil {
			return nil, err
		}

		pubs = append(pubs, res.Items...)

		if q.Page >= res.Pages || len(res.Items) == 0 {
			return pubs, nil
		}
	}
}

func render(w io.Writer, format string, pubs []models.Publication) error {
	if strings.EqualFold(format, "xlsx") {
		return export.WriteXLSX(w, pubs)
	}

	report, err := export.MarkdownReport(pubs, metadata.Metadata{Source: "publicacoes"})
	if err != nil {
		return err
	}

	if strings.EqualFold(format, "html") {
		if report, err = export.HTMLReport(report); err != nil {
			return err
		}
	}

	_, err = io.WriteString(w, report)

	return err
}
