package ui

import (
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	table := NewTable("Facilities", "ID", "STATUS")
	table.AddRow("fab-lab-berlin", "active")
	table.AddRow("makerspace-oslo", "planned")

	styles := DefaultStyles()
	view := table.View(styles)

	t.Logf("View:\n%q", view)

	if !strings.Contains(view, "Facilities") {
		t.Error("View missing title")
	}
	if !strings.Contains(view, "fab-lab-berlin") {
		t.Error("View missing cell content")
	}
	if !strings.Contains(view, "STATUS") {
		t.Error("View missing header")
	}
}

func TestTableNoTitle(t *testing.T) {
	table := NewTable("", "A", "B")
	table.AddRow("1", "2")

	view := table.View(DefaultStyles())
	if !strings.Contains(view, "1") {
		t.Error("View missing row content")
	}
}

func TestTableRaggedRow(t *testing.T) {
	table := NewTable("", "A", "B", "C")
	table.AddRow("only-one")

	view := table.View(DefaultStyles())
	if !strings.Contains(view, "only-one") {
		t.Error("View missing short row content")
	}
}
