package jsonl

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// flattenValue renders one JSON value as a CSV cell: nulls become "",
// nested objects and arrays are JSON encoded, booleans are lowercased,
// numbers keep their source text.
func flattenValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("encode nested value: %w", err)
		}
		return string(data), nil
	default:
		return fmt.Sprint(val), nil
	}
}

// ConvertCSV flattens a JSONL file into a CSV file. The header leads
// with the preferred columns that occur in the data, in the given
// order, followed by the remaining keys sorted alphabetically; absent
// keys render as empty cells. Lines that do not parse are logged and
// skipped.
func ConvertCSV(inputPath, outputPath string, preferred []string, log *zap.Logger) error {
	log = log.Named("csv")

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer in.Close()

	var records []map[string]any
	skipped := 0
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			log.Warn("skipping malformed line",
				zap.String("path", inputPath), zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	columnSet := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			columnSet[k] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for _, col := range preferred {
		if columnSet[col] {
			columns = append(columns, col)
			delete(columnSet, col)
		}
	}
	rest := make([]string, 0, len(columnSet))
	for k := range columnSet {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	columns = append(columns, rest...)

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			cell, err := flattenValue(rec[col])
			if err != nil {
				return fmt.Errorf("flatten column %s: %w", col, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	log.Info("converted records to csv",
		zap.Int("rows", len(records)),
		zap.Int("columns", len(columns)),
		zap.Int("skipped", skipped))
	return nil
}
