package coupon

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for reading gzipped campaign files.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based campaign loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "coupon-loader").Logger(),
	}
}

// Load reads a gzipped campaign file, one JSON coupon definition per line.
func (l *fileLoader) Load(ctx context.Context, filePath string) ([]Definition, error) {
	l.logger.Info().Str("file", filePath).Msg("loading campaign file")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open campaign file")
		return nil, fmt.Errorf("failed to open campaign file %s: %w", filePath, err)
	}
	defer file.Close()

	defs, err := decode(ctx, file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to read campaign file")
		return nil, fmt.Errorf("failed to read campaign file %s: %w", filePath, err)
	}

	l.logger.Info().
		Str("file", filePath).
		Int("definitions", len(defs)).
		Msg("campaign file loaded")
	return defs, nil
}

// decode reads gzipped JSON lines from r. Blank lines are skipped, a
// malformed or invalid line aborts the whole load: campaign files are
// applied all-or-nothing.
func decode(ctx context.Context, r io.Reader) ([]Definition, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var defs []Definition
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var def Definition
		if err := json.Unmarshal([]byte(line), &def); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", lineNo, def.Code, err)
		}
		defs = append(defs, def)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}
