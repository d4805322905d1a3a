package okw

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"openmatch/internal/logging"
)

// Filter narrows a facility listing. Zero-value fields match everything.
type Filter struct {
	Statuses    []FacilityStatus
	AccessTypes []AccessType
	IDs         []string
}

// Match reports whether a facility passes the filter.
func (f Filter) Match(fac *Facility) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, fac.Status) {
		return false
	}
	if len(f.AccessTypes) > 0 && !containsAccess(f.AccessTypes, fac.AccessType) {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, fac.ID) {
		return false
	}
	return true
}

func containsStatus(xs []FacilityStatus, x FacilityStatus) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsAccess(xs []AccessType, x AccessType) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Provider lists facilities available for matching.
type Provider interface {
	ListFacilities(ctx context.Context, filter Filter) ([]*Facility, error)
}

// FileProvider reads facilities from a YAML/JSON file or a directory of
// them. A file holds either one facility document or a list under a
// top-level "facilities" key. Results are sorted by id for stable
// iteration.
type FileProvider struct {
	Path string
}

// NewFileProvider builds a provider over a facility file or directory.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// facilityFile is the multi-facility file shape.
type facilityFile struct {
	Facilities []Facility `yaml:"facilities" json:"facilities"`
}

// ListFacilities loads, filters, and sorts every facility under Path.
func (p *FileProvider) ListFacilities(ctx context.Context, filter Filter) ([]*Facility, error) {
	info, err := os.Stat(p.Path)
	if err != nil {
		return nil, fmt.Errorf("list facilities in %s: %w", p.Path, err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(p.Path)
		if err != nil {
			return nil, fmt.Errorf("list facilities in %s: %w", p.Path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext != ".yaml" && ext != ".yml" && ext != ".json" {
				continue
			}
			files = append(files, filepath.Join(p.Path, entry.Name()))
		}
	} else {
		files = append(files, p.Path)
	}

	var out []*Facility
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		facs, err := loadFacilityFile(path, strings.ToLower(filepath.Ext(path)))
		if err != nil {
			return nil, err
		}
		for i := range facs {
			fac := &facs[i]
			if fac.ID == "" {
				fac.ID = deriveID(filepath.Base(path), i, len(facs))
			}
			if filter.Match(fac) {
				out = append(out, fac)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	logging.API("listed %d facilities from %s", len(out), p.Path)
	return out, nil
}

func loadFacilityFile(path, ext string) ([]Facility, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facility file %s: %w", path, err)
	}

	var wrapper facilityFile
	var single Facility
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(wrapper.Facilities) == 0 {
			if err := json.Unmarshal(data, &single); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	default:
		if err := yaml.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if len(wrapper.Facilities) == 0 {
			if err := yaml.Unmarshal(data, &single); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if len(wrapper.Facilities) > 0 {
		return wrapper.Facilities, nil
	}
	if single.Name == "" && single.ID == "" {
		return nil, nil
	}
	return []Facility{single}, nil
}

// deriveID produces a stable facility id from the file name, suffixed with
// the index for multi-facility files.
func deriveID(filename string, index, total int) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	if total > 1 {
		return fmt.Sprintf("%s-%d", base, index+1)
	}
	return base
}

// StaticProvider serves a fixed facility slice, mainly for tests and for
// callers that assemble facilities programmatically.
type StaticProvider struct {
	Facilities []*Facility
}

// ListFacilities filters the static slice, preserving order.
func (p *StaticProvider) ListFacilities(ctx context.Context, filter Filter) ([]*Facility, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*Facility
	for _, fac := range p.Facilities {
		if filter.Match(fac) {
			out = append(out, fac)
		}
	}
	return out, nil
}
