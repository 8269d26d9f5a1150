package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/export"
)

// parseOutputFormat accepts text plus every export format
func parseOutputFormat(s string) (export.Format, error) {
	if s == "text" {
		return "", nil
	}
	return export.ParseFormat(s)
}

// write renders r to stdout, or exports it into --output. xlsx always goes
// to a file.
func (a *app) write(r *export.Report) error {
	format, err := parseOutputFormat(a.format)
	if err != nil {
		return err
	}

	dir := a.outputDir
	if dir == "" && format == export.FormatExcel {
		dir = a.cfg.Reconcile.OutputDir
	}
	if dir != "" {
		if format == "" {
			format = export.FormatJSON
		}
		path, err := export.NewExporter(dir).Export(r, format)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Wrote", path)
		return nil
	}

	if format != "" {
		return export.Write(a.out, r, format)
	}
	return a.writeText(r)
}

func (a *app) writeText(r *export.Report) error {
	for _, t := range r.Tables {
		fmt.Fprintf(a.out, "\n%s (%d)\n", t.Name, len(t.Rows))
		if len(t.Rows) == 0 {
			continue
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		for i, h := range t.Headers {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, h)
		}
		fmt.Fprintln(tw)
		for _, row := range t.Rows {
			for i, cell := range row {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, export.CellString(cell))
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
