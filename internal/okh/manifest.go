// Package okh models open-hardware requirement manifests: the design side of
// a match. A Manifest carries raw process and material strings exactly as
// authored; normalization to canonical process IDs happens at match time so
// that taxonomy reloads never mutate loaded manifests.
package okh

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a loaded requirement document.
type Manifest struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Version     string `yaml:"version" json:"version"`
	License     string `yaml:"license" json:"license"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Raw process and material strings; normalized during matching.
	Processes []string `yaml:"processes,omitempty" json:"processes,omitempty"`
	Materials []string `yaml:"materials,omitempty" json:"materials,omitempty"`

	// BOM is set when the bill of materials lives in an external file.
	BOM BOMRef `yaml:"bom,omitempty" json:"bom,omitempty"`

	// Parts and SubParts carry an embedded bill of materials.
	Parts    []Component `yaml:"parts,omitempty" json:"parts,omitempty"`
	SubParts []Component `yaml:"sub_parts,omitempty" json:"sub_parts,omitempty"`

	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	// Origin is the absolute path the manifest was loaded from; relative
	// BOM and reference paths resolve against its directory. Not serialized.
	Origin string `yaml:"-" json:"-"`
}

// Component is one node of a bill of materials.
type Component struct {
	ID            string         `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string         `yaml:"name" json:"name"`
	Quantity      float64        `yaml:"quantity,omitempty" json:"quantity,omitempty"`
	Unit          string         `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	Processes     []string       `yaml:"processes,omitempty" json:"processes,omitempty"`
	Materials     []string       `yaml:"materials,omitempty" json:"materials,omitempty"`
	Constraints   map[string]any `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Reference     string         `yaml:"reference,omitempty" json:"reference,omitempty"`
	SubComponents []Component    `yaml:"sub_components,omitempty" json:"sub_components,omitempty"`
	Metadata      map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// EffectiveID returns the component id, or a slug of its name when unset.
func (c *Component) EffectiveID() string {
	if c.ID != "" {
		return c.ID
	}
	return Slug(c.Name)
}

// EffectiveQuantity treats an unset quantity as 1.
func (c *Component) EffectiveQuantity() float64 {
	if c.Quantity <= 0 {
		return 1
	}
	return c.Quantity
}

// BOMType classifies how a manifest carries its bill of materials.
type BOMType string

const (
	BOMExternal BOMType = "external"
	BOMEmbedded BOMType = "embedded"
	BOMEmpty    BOMType = "empty"
)

// BOMRef points at an external bill-of-materials file. Authors write either
// a bare path string or an object with an external_file field; both decode
// into the same value.
type BOMRef struct {
	Path string
}

// IsExternal reports whether the reference names a file.
func (b BOMRef) IsExternal() bool { return b.Path != "" }

// IsZero reports whether the reference is empty, for omitempty support.
func (b BOMRef) IsZero() bool { return b.Path == "" }

func (b *BOMRef) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		b.Path = strings.TrimSpace(s)
		return nil
	case yaml.MappingNode:
		var obj struct {
			ExternalFile string `yaml:"external_file"`
		}
		if err := value.Decode(&obj); err != nil {
			return err
		}
		b.Path = strings.TrimSpace(obj.ExternalFile)
		return nil
	default:
		return fmt.Errorf("bom: expected string or mapping, got %v", value.Kind)
	}
}

func (b BOMRef) MarshalYAML() (any, error) {
	return b.Path, nil
}

func (b *BOMRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.Path = strings.TrimSpace(s)
		return nil
	}
	var obj struct {
		ExternalFile string `json:"external_file"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bom: expected string or object: %w", err)
	}
	b.Path = strings.TrimSpace(obj.ExternalFile)
	return nil
}

func (b BOMRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Path)
}

// BOMType classifies the manifest's bill of materials. External wins over
// embedded parts when both are present.
func (m *Manifest) BOMType() BOMType {
	if m.BOM.IsExternal() {
		return BOMExternal
	}
	if len(m.Parts) > 0 || len(m.SubParts) > 0 {
		return BOMEmbedded
	}
	return BOMEmpty
}

// AllParts returns the embedded top-level components, parts before sub_parts.
func (m *Manifest) AllParts() []Component {
	if len(m.SubParts) == 0 {
		return m.Parts
	}
	out := make([]Component, 0, len(m.Parts)+len(m.SubParts))
	out = append(out, m.Parts...)
	out = append(out, m.SubParts...)
	return out
}

// HasNesting reports whether the manifest carries components below its root:
// an embedded parts list, or an external BOM reference. Used by depth
// auto-detection to decide whether single-level matching loses information.
func (m *Manifest) HasNesting() bool {
	return m.BOMType() != BOMEmpty
}

// Validate checks the minimum shape a manifest must have to be matched.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("manifest has no title")
	}
	return nil
}

// Slug lowercases a name and replaces runs of non-alphanumerics with dashes,
// producing a stable id for components authored without one.
func Slug(name string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
