package jsonl_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/warehouse"
)

type row struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestWriteReadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	records := []row{{1, "a"}, {2, "b"}}

	if err := jsonl.Write(path, records, jsonl.FormatJSONL); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "{\"id\":1,\"name\":\"a\"}\n{\"id\":2,\"name\":\"b\"}\n"
	if string(data) != want {
		t.Errorf("file contents = %q, want %q", data, want)
	}

	got, err := jsonl.Read[row](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 || got[0] != records[0] || got[1] != records[1] {
		t.Errorf("Read = %v, want %v", got, records)
	}
}

func TestWriteJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := jsonl.Write(path, []row{{1, "a"}}, jsonl.FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {") {
		t.Errorf("json format should be an indented array, got %q", data)
	}

	got, err := jsonl.Read[row](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0] != (row{1, "a"}) {
		t.Errorf("Read = %v, want [{1 a}]", got)
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	err := jsonl.Write(filepath.Join(t.TempDir(), "x.dat"), []row{}, "parquet")
	if err == nil {
		t.Fatal("Write with an unknown format should fail")
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	content := "{\"id\":1,\"name\":\"a\"}\n\n   \n{\"id\":2,\"name\":\"b\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := jsonl.Read[row](path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Read returned %d records, want 2", len(got))
	}
}

func TestReadMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte("{\"id\":1}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := jsonl.Read[row](path); err == nil {
		t.Fatal("Read should fail on a malformed line")
	}
}

func TestEncodeLines(t *testing.T) {
	data, err := jsonl.EncodeLines([]row{{1, "a"}, {2, "b"}})
	if err != nil {
		t.Fatalf("EncodeLines: %v", err)
	}
	if got, want := string(data), "{\"id\":1,\"name\":\"a\"}\n{\"id\":2,\"name\":\"b\"}\n"; got != want {
		t.Errorf("EncodeLines = %q, want %q", got, want)
	}
}

func TestConvertCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "records.jsonl")
	output := filepath.Join(dir, "records.csv")

	content := `{"b": 2, "a": "x"}
{"a": null, "c": {"k": 1}, "flag": true}
not json
{"a": "with,comma", "n": 1.50}
`
	if err := os.WriteFile(input, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := jsonl.ConvertCSV(input, output, nil, zap.NewNop()); err != nil {
		t.Fatalf("ConvertCSV: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "a,b,c,flag,n\n" +
		"x,2,,,\n" +
		",,\"{\"\"k\"\":1}\",true,\n" +
		"\"with,comma\",,,,1.50\n"
	if string(data) != want {
		t.Errorf("csv contents = %q, want %q", data, want)
	}
}

func TestConvertCSVPreferredColumns(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "records.jsonl")
	output := filepath.Join(dir, "records.csv")

	content := `{"alpha_custom": "x", "billable": 1, "date": "2024-02-14", "user_id": "7", "id": 1}
{"id": 2, "description": "review"}
`
	if err := os.WriteFile(input, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	preferred := warehouse.ColumnNames(warehouse.EntryColumns)
	if err := jsonl.ConvertCSV(input, output, preferred, zap.NewNop()); err != nil {
		t.Fatalf("ConvertCSV: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Table columns keep their table order; the stray key sorts after.
	want := "id,user_id,date,billable,description,alpha_custom\n" +
		"1,7,2024-02-14,1,,x\n" +
		"2,,,,review,\n"
	if string(data) != want {
		t.Errorf("csv contents = %q, want %q", data, want)
	}
}

func TestConvertCSVEmptyInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "empty.jsonl")
	output := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(input, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := jsonl.ConvertCSV(input, output, []string{"id", "date"}, zap.NewNop()); err != nil {
		t.Fatalf("ConvertCSV: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "\n" {
		t.Errorf("empty input should produce just a header newline, got %q", data)
	}
}
