package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/m365dash/internal/report"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	format string
	out    string
}

func newExportCmd(a *app) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Refresh the dashboard and write a report file",
		Long: "Writes the report snapshot (json), the user list (csv) or the workbook (xlsx).\n" +
			"Without --out the file is named after the report kind and today's date.\n" +
			"--out - writes json and csv to stdout.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, opts, time.Now())
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "json", "Output format: json, csv or xlsx")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output file or directory")
	return cmd
}

func (a *app) runExport(cmd *cobra.Command, opts exportOptions, now time.Time) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	kind := report.KindUsers
	switch format {
	case "json":
		kind = report.KindReport
	case "csv":
	case "xlsx":
		if opts.out == "-" {
			return withCode(exitUsage, fmt.Errorf("--format xlsx cannot be written to stdout"))
		}
	default:
		return withCode(exitUsage, fmt.Errorf("invalid --format %q: want json, csv or xlsx", opts.format))
	}

	st, err := a.refresh(cmd)
	if err != nil {
		return err
	}

	write := func(w io.Writer) error {
		switch format {
		case "json":
			b, err := report.Snapshot(st, now)
			if err != nil {
				return err
			}
			_, err = w.Write(b)
			return err
		case "csv":
			return report.UsersCSV(w, st.Data.Users)
		default:
			return report.UsersXLSX(w, st, now)
		}
	}

	if opts.out == "-" {
		if err := write(cmd.OutOrStdout()); err != nil {
			return withCode(exitOutput, err)
		}
		return nil
	}

	path := exportPath(opts.out, report.FileName(kind, format, now))
	if err := writeFile(path, write); err != nil {
		return withCode(exitOutput, err)
	}
	return writeJSON(cmd.OutOrStdout(), map[string]string{"status": st.Status, "file": path})
}

// exportPath resolves --out: empty means the default name in the working
// directory, an existing directory receives the default name.
func exportPath(out, name string) string {
	if out == "" {
		return name
	}
	if fi, err := os.Stat(out); err == nil && fi.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
