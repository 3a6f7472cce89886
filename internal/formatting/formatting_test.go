package formatting

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteJSON_ProducesTwoSpaceIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]string{"name": "github"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("expected 2-space-indented JSON, got %q", buf.String())
	}
}

func TestTable_WriteAlignsColumns(t *testing.T) {
	tbl := Table{
		Header: []string{"NAME", "KIND"},
		Rows: [][]string{
			{"github", "stdio"},
			{"search", "remote"},
		},
	}
	var buf bytes.Buffer
	if err := tbl.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "github") {
		t.Errorf("expected table output to contain header and rows, got %q", out)
	}
}
