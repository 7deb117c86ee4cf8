package cli

import (
	"strings"
	"testing"
)

func TestTableAddRow(t *testing.T) {
	table := NewTable([]string{"Name", "Age"})

	table.AddRow([]string{"Alice", "30"})
	table.AddRow([]string{"Bob"})
	table.AddRow([]string{"Charlie", "25", "Extra"})

	if len(table.rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(table.rows))
	}
	if len(table.rows[1]) != 2 || table.rows[1][1] != "" {
		t.Errorf("Expected short row to be padded, got %q", table.rows[1])
	}
	if len(table.rows[2]) != 2 {
		t.Errorf("Expected long row to be truncated, got %q", table.rows[2])
	}
}

func TestTableRender(t *testing.T) {
	table := NewTable([]string{"SCHEMA", "STATUS"})
	table.AddRow([]string{"tf2_msgs/TFMessage", "fresh"})
	table.AddRow([]string{"std_msgs/Header", "stale (1 staging)"})

	var b strings.Builder
	table.Render(&b)

	want := "" +
		"SCHEMA              STATUS\n" +
		"------------------  -----------------\n" +
		"tf2_msgs/TFMessage  fresh\n" +
		"std_msgs/Header     stale (1 staging)\n"
	if b.String() != want {
		t.Errorf("Render() =\n%s\nwant\n%s", b.String(), want)
	}
}

func TestTableRenderNoHeaders(t *testing.T) {
	var b strings.Builder
	NewTable(nil).Render(&b)
	if b.Len() != 0 {
		t.Errorf("Expected empty output, got %q", b.String())
	}
}
