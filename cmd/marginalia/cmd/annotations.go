package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/marginalia/internal/annotation"
	"github.com/MeKo-Tech/marginalia/internal/engine"
)

// AnnotationExport is the document written by annotations export.
type AnnotationExport struct {
	Document    string                  `json:"document"`
	Pages       int                     `json:"pages"`
	Annotations []annotation.Annotation `json:"annotations"`
}

var annotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Inspect stored annotations",
}

var annotationsListCmd = &cobra.Command{
	Use:   "list <document>",
	Short: "List the annotations of a document",
	Example: `  marginalia annotations list paper.pdf
  marginalia annotations list paper.pdf --page 3 --type highlight`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		types, _ := cmd.Flags().GetStringSlice("type")
		for _, t := range types {
			if !slices.Contains(annotation.Types, annotation.Type(t)) {
				return fmt.Errorf("unknown annotation type %q", t)
			}
		}

		var anns []annotation.Annotation
		err := withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			var err error
			anns, err = collectAnnotations(sess, page, types)
			return err
		})
		if err != nil {
			return err
		}
		return writeAnnotationTable(cmd.OutOrStdout(), anns)
	},
}

var annotationsExportCmd = &cobra.Command{
	Use:   "export <document>",
	Short: "Export the annotations of a document as JSON or YAML",
	Example: `  marginalia annotations export paper.pdf
  marginalia annotations export paper.pdf --format yaml --output notes.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "yaml" {
			return fmt.Errorf("invalid format %q (must be json or yaml)", format)
		}

		var export AnnotationExport
		err := withSession(cmd.Context(), args[0], func(sess *engine.Session) error {
			anns, err := collectAnnotations(sess, 0, nil)
			if err != nil {
				return err
			}
			export = AnnotationExport{
				Document:    sess.Document(),
				Pages:       sess.TotalPages(),
				Annotations: anns,
			}
			return nil
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		return writeExport(w, format, export)
	},
}

// collectAnnotations returns the committed annotations of one page, or of
// every page when page is 0, restricted to types when given.
func collectAnnotations(sess *engine.Session, page int, types []string) ([]annotation.Annotation, error) {
	var out []annotation.Annotation
	if err := sess.WithAnnotations(func(st *annotation.Store) error {
		if page > 0 {
			out = st.Annotations(page)
		} else {
			out = st.All()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return out, nil
	}
	filter := make(annotation.Filter, len(types))
	for _, t := range types {
		filter[annotation.Type(t)] = true
	}
	return filter.Apply(out), nil
}

func writeAnnotationTable(w io.Writer, anns []annotation.Annotation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PAGE\tTYPE\tID\tCOMMENTS\tTEXT")
	for _, a := range anns {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", a.PageNumber, a.Type, a.ID, len(a.Comments), summary(a))
	}
	return tw.Flush()
}

// summary is the text shown for an annotation in listings.
func summary(a annotation.Annotation) string {
	text := a.Text
	switch {
	case a.Type == annotation.TypeComment:
		text = a.Content
	case text == "" && len(a.Comments) > 0:
		text = a.Comments[0].Text
	}
	runes := []rune(text)
	if len(runes) > 48 {
		return string(runes[:47]) + "…"
	}
	return text
}

// writeExport writes the export in the requested format. YAML keys follow
// the JSON field names.
func writeExport(w io.Writer, format string, export AnnotationExport) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("converting export to YAML: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	rootCmd.AddCommand(annotationsCmd)
	annotationsCmd.AddCommand(annotationsListCmd, annotationsExportCmd)

	annotationsListCmd.Flags().Int("page", 0, "only list annotations of this page")
	annotationsListCmd.Flags().StringSlice("type", nil, "only list these annotation types")

	annotationsExportCmd.Flags().StringP("format", "f", "json", "export format: json or yaml")
	annotationsExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}
