package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/render"
	"github.com/derickschaefer/sonarboard/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// resolveMetrics splits --metrics values, falling back to def when none are given.
func resolveMetrics(flag []string, def []string) []string {
	if m := util.SplitList(flag...); len(m) > 0 {
		return m
	}
	return append([]string(nil), def...)
}

// validateDate checks an optional YYYY-MM-DD flag value.
func validateDate(flag, val string) error {
	if val == "" {
		return nil
	}
	if _, err := util.ParseDate(val); err != nil {
		return fmt.Errorf("--%s: invalid date %q, expected YYYY-MM-DD", flag, val)
	}
	return nil
}

// outputWriter returns stdout, or the --out file when set. closeFn must be
// called once the output is complete.
func outputWriter(stdout io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result in the resolved format, then the warnings footer on
// stderr. Quiet mode drops the footer.
func emit(stdout, stderr io.Writer, result *model.Result, cfgFormat string, verbose, quiet bool) error {
	w, closeFn, err := outputWriter(stdout)
	if err != nil {
		return err
	}
	if err := render.Render(w, result, resolveFormat(cfgFormat)); err != nil {
		closeFn()
		return err
	}
	if err := closeFn(); err != nil {
		return err
	}
	if !quiet {
		render.PrintFooter(stderr, result, verbose)
	}
	return nil
}

// newResult wraps data in a Result envelope.
func newResult(kind, command string, data interface{}, items int, start time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTable renders two-column FIELD/VALUE rows.
func printKVTable(w io.Writer, rows [][]string) {
	printSimpleTable(w, []string{"FIELD", "VALUE"}, func(add func(...string)) {
		for _, r := range rows {
			add(r...)
		}
	})
}

// success prints a green check line unless quiet.
func success(w io.Writer, format string, args ...interface{}) {
	if globalFlags.Quiet {
		return
	}
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// hint prints an indented follow-up line unless quiet.
func hint(w io.Writer, lines ...string) {
	if globalFlags.Quiet {
		return
	}
	for _, l := range lines {
		fmt.Fprintf(w, "  %s\n", strings.TrimSpace(l))
	}
}
