package okh

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBOMRef_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"string form", `bom: parts/bom.csv.yaml`, "parts/bom.csv.yaml"},
		{"object form", "bom:\n  external_file: bom.json", "bom.json"},
		{"padded string", `bom: "  bom.yml  "`, "bom.yml"},
		{"absent", `title: x`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Manifest
			if err := yaml.Unmarshal([]byte(tt.doc), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.BOM.Path != tt.want {
				t.Errorf("BOM.Path = %q, want %q", m.BOM.Path, tt.want)
			}
		})
	}
}

func TestBOMRef_UnmarshalJSON(t *testing.T) {
	var m Manifest
	doc := `{"title":"t","bom":{"external_file":"sub/bom.json"}}`
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.BOM.Path != "sub/bom.json" {
		t.Errorf("BOM.Path = %q", m.BOM.Path)
	}

	var m2 Manifest
	if err := json.Unmarshal([]byte(`{"title":"t","bom":"plain.yaml"}`), &m2); err != nil {
		t.Fatalf("unmarshal string form: %v", err)
	}
	if m2.BOM.Path != "plain.yaml" {
		t.Errorf("BOM.Path = %q", m2.BOM.Path)
	}
}

func TestManifest_BOMType(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
		want BOMType
	}{
		{"external", Manifest{BOM: BOMRef{Path: "x.yaml"}}, BOMExternal},
		{"embedded parts", Manifest{Parts: []Component{{Name: "a"}}}, BOMEmbedded},
		{"embedded sub_parts", Manifest{SubParts: []Component{{Name: "a"}}}, BOMEmbedded},
		{"external wins over embedded", Manifest{BOM: BOMRef{Path: "x"}, Parts: []Component{{Name: "a"}}}, BOMExternal},
		{"empty", Manifest{Title: "bare"}, BOMEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.BOMType(); got != tt.want {
				t.Errorf("BOMType() = %v, want %v", got, tt.want)
			}
			if got := tt.m.HasNesting(); got != (tt.want != BOMEmpty) {
				t.Errorf("HasNesting() = %v for %v", got, tt.want)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Main Frame", "main-frame"},
		{"  M3 x 12 Bolt  ", "m3-x-12-bolt"},
		{"already-slugged", "already-slugged"},
		{"Ünïcode Née", "n-code-n-e"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComponent_Effective(t *testing.T) {
	c := Component{Name: "Drive Shaft"}
	if got := c.EffectiveID(); got != "drive-shaft" {
		t.Errorf("EffectiveID = %q", got)
	}
	if got := c.EffectiveQuantity(); got != 1 {
		t.Errorf("EffectiveQuantity = %v, want 1", got)
	}

	c = Component{ID: "c-7", Quantity: 4}
	if got := c.EffectiveID(); got != "c-7" {
		t.Errorf("EffectiveID = %q", got)
	}
	if got := c.EffectiveQuantity(); got != 4 {
		t.Errorf("EffectiveQuantity = %v", got)
	}
}

func TestFileLoader_LoadManifest(t *testing.T) {
	dir := t.TempDir()
	doc := `title: Test Widget
version: "1.2"
license: CERN-OHL-S-2.0
processes: [cnc milling]
parts:
  - name: Frame
    quantity: 1
    processes: [cnc milling]
    materials: [aluminum 6061]
  - id: fastener-kit
    name: Fastener Kit
    quantity: 12
    unit: pcs
`
	path := filepath.Join(dir, "widget.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loader := NewFileLoader(dir)

	// by explicit path, by relative name, and by bare id
	for _, ref := range []string{path, "widget.yaml", "widget"} {
		m, err := loader.LoadManifest(context.Background(), ref)
		if err != nil {
			t.Fatalf("LoadManifest(%q): %v", ref, err)
		}
		if m.Title != "Test Widget" {
			t.Errorf("title = %q", m.Title)
		}
		if m.ID != "widget" {
			t.Errorf("id = %q, want widget", m.ID)
		}
		if m.Origin == "" || !filepath.IsAbs(m.Origin) {
			t.Errorf("origin not absolute: %q", m.Origin)
		}
		if len(m.Parts) != 2 || m.Parts[1].ID != "fastener-kit" {
			t.Errorf("parts not parsed: %+v", m.Parts)
		}
	}
}

func TestFileLoader_NotFound(t *testing.T) {
	loader := NewFileLoader(t.TempDir())
	_, err := loader.LoadManifest(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should wrap fs.ErrNotExist: %v", err)
	}
}

func TestFileLoader_JSON(t *testing.T) {
	dir := t.TempDir()
	doc := `{"title":"JSON Widget","license":"MIT","parts":[{"name":"Shell","processes":["injection molding"]}]}`
	if err := os.WriteFile(filepath.Join(dir, "jw.json"), []byte(doc), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := NewFileLoader(dir).LoadManifest(context.Background(), "jw.json")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Title != "JSON Widget" || len(m.Parts) != 1 {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestFileLoader_RequiresTitle(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.yaml"), []byte("version: '1'\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileLoader(dir).LoadManifest(context.Background(), "x"); err == nil {
		t.Fatal("expected validation error for missing title")
	}
}
