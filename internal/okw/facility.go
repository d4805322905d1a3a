// Package okw models manufacturing facilities: the capability side of a
// match. Like manifests, facilities carry raw process strings; canonical
// process IDs are derived per match run.
package okw

import "strings"

// Facility describes one manufacturing facility.
type Facility struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Processes []string    `yaml:"processes,omitempty" json:"processes,omitempty"`
	Equipment []Equipment `yaml:"equipment,omitempty" json:"equipment,omitempty"`
	Materials []string    `yaml:"materials,omitempty" json:"materials,omitempty"`

	BatchRange     BatchRange     `yaml:"batch_range,omitempty" json:"batch_range,omitempty"`
	AccessType     AccessType     `yaml:"access_type,omitempty" json:"access_type,omitempty"`
	Status         FacilityStatus `yaml:"status,omitempty" json:"status,omitempty"`
	Location       Location       `yaml:"location,omitempty" json:"location,omitempty"`
	Certifications []string       `yaml:"certifications,omitempty" json:"certifications,omitempty"`

	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Equipment is one machine or workstation with the process it performs.
type Equipment struct {
	Name        string   `yaml:"name" json:"name"`
	Process     string   `yaml:"process,omitempty" json:"process,omitempty"`
	Materials   []string `yaml:"materials,omitempty" json:"materials,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// AllProcesses returns the facility's process strings plus every equipment
// process, deduplicated case-insensitively, preserving first-seen order.
func (f *Facility) AllProcesses() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, raw)
	}
	for _, p := range f.Processes {
		add(p)
	}
	for _, e := range f.Equipment {
		add(e.Process)
	}
	return out
}

// AllMaterials returns facility plus equipment material tokens, deduplicated.
func (f *Facility) AllMaterials() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, raw)
	}
	for _, m := range f.Materials {
		add(m)
	}
	for _, e := range f.Equipment {
		for _, m := range e.Materials {
			add(m)
		}
	}
	return out
}

// BatchRange bounds the production quantities a facility accepts.
// Max = 0 means unbounded above.
type BatchRange struct {
	Min int `yaml:"min,omitempty" json:"min,omitempty"`
	Max int `yaml:"max,omitempty" json:"max,omitempty"`
}

// IsZero reports an unspecified range, which accepts any quantity.
func (b BatchRange) IsZero() bool { return b.Min == 0 && b.Max == 0 }

// Contains reports whether the range accepts a quantity.
func (b BatchRange) Contains(qty float64) bool {
	if b.IsZero() {
		return true
	}
	if qty < float64(b.Min) {
		return false
	}
	return b.Max == 0 || qty <= float64(b.Max)
}

// AccessType is how open a facility is to outside production runs.
type AccessType string

const (
	AccessPublic     AccessType = "public"
	AccessMembership AccessType = "membership"
	AccessRestricted AccessType = "restricted"
)

// accessRank orders access types from most to least open.
var accessRank = map[AccessType]int{
	AccessPublic:     2,
	AccessMembership: 1,
	AccessRestricted: 0,
}

// AccessSatisfies reports whether an offered access type meets a required
// minimum openness. An unset requirement accepts anything; an unknown
// offered type satisfies only an exact match.
func AccessSatisfies(required, offered AccessType) bool {
	if required == "" {
		return true
	}
	if required == offered {
		return true
	}
	reqRank, reqOK := accessRank[required]
	offRank, offOK := accessRank[offered]
	return reqOK && offOK && offRank >= reqRank
}

// FacilityStatus is the operational state of a facility.
type FacilityStatus string

const (
	StatusActive   FacilityStatus = "active"
	StatusPlanned  FacilityStatus = "planned"
	StatusInactive FacilityStatus = "inactive"
)

// Location is a coarse geographic position, informational only.
type Location struct {
	City    string  `yaml:"city,omitempty" json:"city,omitempty"`
	Country string  `yaml:"country,omitempty" json:"country,omitempty"`
	Lat     float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lon     float64 `yaml:"lon,omitempty" json:"lon,omitempty"`
}
