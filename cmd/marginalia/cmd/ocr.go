package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
	"github.com/MeKo-Tech/marginalia/internal/pdf"
)

// PageRecognition is one page of the ocr command output.
type PageRecognition struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// ocrCmd represents the ocr command.
var ocrCmd = &cobra.Command{
	Use:   "ocr <document>",
	Short: "Recognize the text of document pages",
	Long: `Render the selected pages of a PDF document and recognize their text
through the configured OCR service.

Pages are processed one at a time. A failing page is reported and the
remaining pages are still attempted.

Examples:
  marginalia ocr paper.pdf
  marginalia ocr paper.pdf --pages 1-3,7
  marginalia ocr paper.pdf --format json --progress`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid format %q (must be text or json)", format)
		}
		pageRange, _ := cmd.Flags().GetString("pages")
		requested, err := pdf.ParsePageRange(pageRange)
		if err != nil {
			return err
		}

		var opts []ocr.Option
		if showProgress, _ := cmd.Flags().GetBool("progress"); showProgress {
			width, _ := cmd.Flags().GetInt("progress-width")
			interval, _ := cmd.Flags().GetDuration("progress-interval")
			opts = append(opts, ocr.WithCallback(progressReporter(cmd.ErrOrStderr(), slog.Default(), width, interval)))
		}

		var results []PageRecognition
		err = withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			results = recognizePages(cmd.Context(), sess, pdf.FilterPages(requested, sess.TotalPages()))
			return nil
		}, opts...)
		if err != nil {
			return err
		}
		return writeRecognitions(cmd.OutOrStdout(), format, results)
	},
}

func recognizePages(ctx context.Context, sess *engine.Session, pages []int) []PageRecognition {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([]PageRecognition, 0, len(pages))
	for _, page := range pages {
		res, err := sess.RunOCR(ctx, page)
		rec := PageRecognition{Page: page, Text: res.Text, Confidence: res.Confidence}
		if err != nil {
			slog.Error("Page recognition failed", "document", sess.Document(), "page", page, "error", err)
			rec.Error = err.Error()
		}
		out = append(out, rec)
	}
	return out
}

// progressReporter draws a bar of the given width on w and mirrors job
// transitions to logger. Bar redraws and debug progress lines are both
// limited to one per interval.
func progressReporter(w io.Writer, logger *slog.Logger, width int, interval time.Duration) ocr.ProgressCallback {
	if width < 1 {
		width = 30
	}
	console := ocr.NewConsoleProgressCallback(w, "").
		WithWidth(width).
		WithUpdateInterval(interval)
	logs := ocr.NewThrottledProgressCallback(ocr.NewLogProgressCallback(logger, slog.LevelDebug, "ocr"), interval)
	return ocr.NewMultiProgressCallback(console, logs)
}

func writeRecognitions(w io.Writer, format string, results []PageRecognition) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for i, r := range results {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "--- page %d: error: %s\n", r.Page, r.Error)
			continue
		}
		_, _ = fmt.Fprintf(w, "--- page %d (confidence %.0f)\n", r.Page, r.Confidence)
		_, _ = fmt.Fprintln(w, strings.TrimSpace(r.Text))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ocrCmd)
	ocrCmd.Flags().String("pages", "", "page range to recognize, e.g. 1-3,7 (default all pages)")
	ocrCmd.Flags().StringP("format", "f", "text", "output format: text or json")
	ocrCmd.Flags().Bool("progress", false, "draw recognition progress on stderr")
	ocrCmd.Flags().Int("progress-width", 30, "width of the progress bar in characters")
	ocrCmd.Flags().Duration("progress-interval", 250*time.Millisecond, "minimum time between progress redraws")
}
