package coupon

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition(code string) Definition {
	return Definition{
		Code:          code,
		Title:         "Test campaign " + code,
		DiscountType:  "PERCENTAGE",
		Value:         10,
		TotalQuantity: 100,
		LimitPerUser:  1,
		ValidFrom:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Enabled:       true,
	}
}

// createTestCampaignFile creates a gzipped JSON-lines campaign file.
func createTestCampaignFile(t *testing.T, filename string, lines []string) string {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, line := range lines {
		_, err := gzipWriter.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}

	return filePath
}

func marshalDefinition(t *testing.T, def Definition) string {
	data, err := json.Marshal(def)
	require.NoError(t, err)
	return string(data)
}

func TestFileLoader_Load_Success(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	lines := []string{
		marshalDefinition(t, testDefinition("WELCOME10")),
		marshalDefinition(t, testDefinition("SUMMERCAMP")),
		marshalDefinition(t, testDefinition("FLAT5")),
	}

	filePath := createTestCampaignFile(t, "campaign.gz", lines)

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "WELCOME10", defs[0].Code)
	assert.Equal(t, "SUMMERCAMP", defs[1].Code)
	assert.Equal(t, "FLAT5", defs[2].Code)
	assert.Equal(t, int64(10), defs[0].Value)
	assert.True(t, defs[0].Enabled)
}

func TestFileLoader_Load_SkipsBlankLines(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	lines := []string{
		marshalDefinition(t, testDefinition("CODE1")),
		"",
		"   ",
		marshalDefinition(t, testDefinition("CODE2")),
	}

	filePath := createTestCampaignFile(t, "campaign_with_blanks.gz", lines)

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "CODE1", defs[0].Code)
	assert.Equal(t, "CODE2", defs[1].Code)
}

func TestFileLoader_Load_MalformedLineAborts(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	lines := []string{
		marshalDefinition(t, testDefinition("CODE1")),
		"{not valid json",
		marshalDefinition(t, testDefinition("CODE3")),
	}

	filePath := createTestCampaignFile(t, "campaign_malformed.gz", lines)

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.Error(t, err)
	assert.Nil(t, defs)
	assert.Contains(t, err.Error(), "line 2")
}

func TestFileLoader_Load_InvalidDefinitionAborts(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	bad := testDefinition("BADVALUE")
	bad.Value = 150

	lines := []string{
		marshalDefinition(t, testDefinition("CODE1")),
		marshalDefinition(t, bad),
	}

	filePath := createTestCampaignFile(t, "campaign_invalid.gz", lines)

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.Error(t, err)
	assert.Nil(t, defs)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "BADVALUE")
}

func TestFileLoader_Load_FileNotFound(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	ctx := context.Background()
	defs, err := loader.Load(ctx, "/nonexistent/path/to/campaign.gz")

	require.Error(t, err)
	assert.Nil(t, defs)
	assert.Contains(t, err.Error(), "failed to open campaign file")
}

func TestFileLoader_Load_InvalidGzip(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "invalid.gz")

	err := os.WriteFile(filePath, []byte("not a gzip file"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.Error(t, err)
	assert.Nil(t, defs)
	assert.Contains(t, err.Error(), "failed to create gzip reader")
}

func TestFileLoader_Load_EmptyFile(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	filePath := createTestCampaignFile(t, "empty.gz", []string{})

	ctx := context.Background()
	defs, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestFileLoader_Load_ContextCancellation(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	lines := make([]string, 0, 10_000)
	for i := 0; i < 10_000; i++ {
		lines = append(lines, marshalDefinition(t, testDefinition("CODE"+string(rune('A'+i%26)))))
	}

	filePath := createTestCampaignFile(t, "large_campaign.gz", lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	defs, err := loader.Load(ctx, filePath)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, defs)
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
	}{
		{"Missing code", func(d *Definition) { d.Code = "" }},
		{"Unknown discount type", func(d *Definition) { d.DiscountType = "BOGOF" }},
		{"Percentage over 100", func(d *Definition) { d.Value = 150 }},
		{"Zero percentage", func(d *Definition) { d.Value = 0 }},
		{"Negative fixed value", func(d *Definition) {
			d.DiscountType = "FIXED"
			d.Value = -500
		}},
		{"Zero quantity", func(d *Definition) { d.TotalQuantity = 0 }},
		{"Zero per-user limit", func(d *Definition) { d.LimitPerUser = 0 }},
		{"Empty validity window", func(d *Definition) { d.ValidUntil = d.ValidFrom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := testDefinition("CHECK")
			tt.mutate(&def)
			assert.Error(t, def.Validate())
		})
	}

	valid := testDefinition("CHECK")
	assert.NoError(t, valid.Validate())
}

func TestDefinition_ToModel(t *testing.T) {
	def := testDefinition("WELCOME10")
	def.MinAmountCents = 2000
	def.MaxDiscountCents = 1500

	now := time.Now().UTC()
	c := def.ToModel(now)

	require.NotNil(t, c)
	assert.Equal(t, "WELCOME10", c.Code)
	assert.Equal(t, int64(2000), c.MinAmountCents)
	assert.Equal(t, int64(1500), c.MaxDiscountCents)
	assert.Zero(t, c.ClaimedQuantity)
	assert.Equal(t, now, c.CreatedAt)
	assert.True(t, c.IsEnabled)
}
