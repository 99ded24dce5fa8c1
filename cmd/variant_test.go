package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/truecost/internal/model"
)

const variantYAML = `
variants:
  - id: joy
    question_text: "  Will this bring lasting joy?  "
    subtext: Think a month ahead.
  - question_text: Could you wait a week?
    is_active: false
`

func TestParseVariants(t *testing.T) {
	vs, err := parseVariants(strings.NewReader(variantYAML))
	require.NoError(t, err)
	require.Len(t, vs, 2)

	assert.Equal(t, model.QuestionVariant{ID: "joy", QuestionText: "Will this bring lasting joy?", Subtext: "Think a month ahead.", IsActive: true}, vs[0])
	assert.Empty(t, vs[1].ID)
	assert.False(t, vs[1].IsActive)
}

func TestParseVariants_Errors(t *testing.T) {
	_, err := parseVariants(strings.NewReader("variants:\n  - subtext: no question\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question_text is required")

	_, err = parseVariants(strings.NewReader("variants: [unclosed"))
	assert.Error(t, err)
}

func TestVariantImportAndList(t *testing.T) {
	dir := t.TempDir()
	cfg = testConfig()
	cfg.Store.DatabaseURL = filepath.Join(dir, "variants.db")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Close())

	file := filepath.Join(dir, "variants.yaml")
	require.NoError(t, os.WriteFile(file, []byte(variantYAML), 0o600))
	variantFile = file
	variantImportCmd.SetContext(context.Background())
	require.NoError(t, variantImportCmd.RunE(variantImportCmd, nil))

	var out bytes.Buffer
	variantListCmd.SetOut(&out)
	variantListCmd.SetContext(context.Background())
	require.NoError(t, variantListCmd.RunE(variantListCmd, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, out.String(), "Will this bring lasting joy?")
	assert.Contains(t, out.String(), "false")
}

func TestVariantAdd_RequiresText(t *testing.T) {
	cfg = testConfig()
	variantText = "   "
	err := variantAddCmd.RunE(variantAddCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question text is required")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "12345678", truncateID("12345678-aaaa-bbbb"))
}
