package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/store"
)

var variantCmd = &cobra.Command{
	Use:   "variant",
	Short: "Manage the want/need question variants",
}

var (
	variantID       string
	variantText     string
	variantSubtext  string
	variantInactive bool
	variantFile     string
)

var variantAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or update a question variant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(variantText) == "" {
			return eris.New("question text is required (--text)")
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		v := &model.QuestionVariant{
			ID:           variantID,
			QuestionText: strings.TrimSpace(variantText),
			Subtext:      strings.TrimSpace(variantSubtext),
			IsActive:     !variantInactive,
		}
		if err := st.UpsertVariant(ctx, v); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), v.ID)
		return nil
	},
}

var variantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List question variants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vs, err := st.ListVariants(ctx)
		if err != nil {
			return err
		}
		formatVariants(cmd.OutOrStdout(), vs)
		return nil
	},
}

var variantImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert question variants from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := os.Open(variantFile)
		if err != nil {
			return eris.Wrap(err, "open variant file")
		}
		defer f.Close() //nolint:errcheck

		vs, err := parseVariants(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importVariants(cmd, st, vs)
		if err != nil {
			return err
		}
		zap.L().Info("variant import complete",
			zap.Int("upserted", n),
			zap.String("file", variantFile),
		)
		return nil
	},
}

// variantFileEntry is one entry of an import file. is_active defaults to true.
type variantFileEntry struct {
	ID           string `yaml:"id"`
	QuestionText string `yaml:"question_text"`
	Subtext      string `yaml:"subtext"`
	IsActive     *bool  `yaml:"is_active"`
}

// parseVariants reads a YAML document of the form {variants: [...]}.
func parseVariants(r io.Reader) ([]model.QuestionVariant, error) {
	var doc struct {
		Variants []variantFileEntry `yaml:"variants"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "parse variant file")
	}

	out := make([]model.QuestionVariant, 0, len(doc.Variants))
	for i, e := range doc.Variants {
		text := strings.TrimSpace(e.QuestionText)
		if text == "" {
			return nil, eris.Errorf("variant %d: question_text is required", i+1)
		}
		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		out = append(out, model.QuestionVariant{
			ID:           strings.TrimSpace(e.ID),
			QuestionText: text,
			Subtext:      strings.TrimSpace(e.Subtext),
			IsActive:     active,
		})
	}
	return out, nil
}

func importVariants(cmd *cobra.Command, st store.Store, vs []model.QuestionVariant) (int, error) {
	for i := range vs {
		if err := st.UpsertVariant(cmd.Context(), &vs[i]); err != nil {
			return i, err
		}
	}
	return len(vs), nil
}

// formatVariants writes a tabular list of variants to out.
func formatVariants(out io.Writer, vs []model.QuestionVariant) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tACTIVE\tQUESTION\tSUBTEXT")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t-------")
	for _, v := range vs {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", truncateID(v.ID), v.IsActive, truncate(v.QuestionText, 50), truncate(v.Subtext, 40))
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	variantAddCmd.Flags().StringVar(&variantID, "id", "", "variant id (generated when empty)")
	variantAddCmd.Flags().StringVar(&variantText, "text", "", "question text (required)")
	variantAddCmd.Flags().StringVar(&variantSubtext, "subtext", "", "secondary line under the question")
	variantAddCmd.Flags().BoolVar(&variantInactive, "inactive", false, "store the variant without offering it")

	variantImportCmd.Flags().StringVar(&variantFile, "file", "", "path to YAML file (required)")
	_ = variantImportCmd.MarkFlagRequired("file")

	variantCmd.AddCommand(variantAddCmd, variantListCmd, variantImportCmd)
	rootCmd.AddCommand(variantCmd)
}
