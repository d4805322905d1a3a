package resolver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"openmatch/internal/okh"
)

// BillOfMaterials is the flat parse result of one BOM source, before
// explosion. Sibling order is preserved but not semantically significant.
type BillOfMaterials struct {
	Source     string
	Type       okh.BOMType
	Components []okh.Component
}

// bomDocument covers the object forms a BOM file may take.
type bomDocument struct {
	Components []okh.Component `yaml:"components" json:"components"`
	Parts      []okh.Component `yaml:"parts" json:"parts"`
	SubParts   []okh.Component `yaml:"sub_parts" json:"sub_parts"`
}

func (d *bomDocument) all() []okh.Component {
	out := make([]okh.Component, 0, len(d.Components)+len(d.Parts)+len(d.SubParts))
	out = append(out, d.Components...)
	out = append(out, d.Parts...)
	out = append(out, d.SubParts...)
	return out
}

// ParseBOM decodes BOM bytes. The content type selects the parser; when
// empty the format is sniffed. Supported: JSON, YAML, Markdown table, CSV.
func ParseBOM(data []byte, contentType, source string) ([]okh.Component, error) {
	switch {
	case strings.Contains(contentType, "json"):
		return parseJSONBOM(data, source)
	case strings.Contains(contentType, "yaml"):
		return parseYAMLBOM(data, source)
	case strings.Contains(contentType, "markdown"):
		return parseMarkdownBOM(data, source)
	case strings.Contains(contentType, "csv"):
		return parseCSVBOM(data, source)
	default:
		return sniffBOM(data, source)
	}
}

func sniffBOM(data []byte, source string) ([]okh.Component, error) {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		return parseJSONBOM(data, source)
	case strings.HasPrefix(trimmed, "|") || strings.Contains(trimmed, "\n|"):
		return parseMarkdownBOM(data, source)
	default:
		return parseYAMLBOM(data, source)
	}
}

func parseJSONBOM(data []byte, source string) ([]okh.Component, error) {
	var list []okh.Component
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc bomDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: source, Format: "json", Err: err}
	}
	return doc.all(), nil
}

func parseYAMLBOM(data []byte, source string) ([]okh.Component, error) {
	var list []okh.Component
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc bomDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: source, Format: "yaml", Err: err}
	}
	return doc.all(), nil
}

// parseMarkdownBOM reads the first pipe table in a Markdown document.
// Header cells map onto component fields by name; unknown columns are
// ignored so authors can keep notes columns.
func parseMarkdownBOM(data []byte, source string) ([]okh.Component, error) {
	var header []string
	var components []okh.Component

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			if header != nil {
				break // table ended
			}
			continue
		}

		cells := splitTableRow(line)
		if header == nil {
			header = make([]string, len(cells))
			for i, c := range cells {
				header[i] = strings.ToLower(strings.TrimSpace(c))
			}
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}

		c, ok := componentFromCells(header, cells)
		if ok {
			components = append(components, c)
		}
	}

	if header == nil {
		return nil, &ParseError{Path: source, Format: "markdown", Err: fmt.Errorf("no table found")}
	}
	return components, nil
}

func splitTableRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// parseCSVBOM reads a CSV BOM with the same header mapping as Markdown.
func parseCSVBOM(data []byte, source string) ([]okh.Component, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, &ParseError{Path: source, Format: "csv", Err: err}
	}
	if len(records) == 0 {
		return nil, &ParseError{Path: source, Format: "csv", Err: fmt.Errorf("empty file")}
	}

	header := make([]string, len(records[0]))
	for i, c := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(c))
	}

	var components []okh.Component
	for _, row := range records[1:] {
		c, ok := componentFromCells(header, row)
		if ok {
			components = append(components, c)
		}
	}
	return components, nil
}

// componentFromCells maps one table row onto a Component via header names.
func componentFromCells(header, cells []string) (okh.Component, bool) {
	var c okh.Component
	for i, cell := range cells {
		if i >= len(header) {
			break
		}
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		switch header[i] {
		case "id":
			c.ID = cell
		case "name", "component", "part", "item":
			c.Name = cell
		case "quantity", "qty", "count":
			if qty, err := strconv.ParseFloat(cell, 64); err == nil {
				c.Quantity = qty
			}
		case "unit", "units":
			c.Unit = cell
		case "process", "processes":
			c.Processes = splitList(cell)
		case "material", "materials":
			c.Materials = splitList(cell)
		case "reference", "ref", "manifest":
			c.Reference = cell
		case "description", "notes":
			c.Description = cell
		}
	}
	return c, c.Name != "" || c.ID != ""
}

func splitList(cell string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(cell, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
