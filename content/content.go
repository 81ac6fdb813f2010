// Package content loads the site's static dataset: identity, experience,
// skills, contact links and the showcase projects.
package content

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Zachkp/folio/carousel"
	"github.com/Zachkp/folio/errs"
)

//go:embed site.yaml
var defaultSite []byte

var (
	ErrDuplicateProject = errors.New("duplicate project id")
	ErrMissingName      = errors.New("site name is required")
)

// TimelineEntry is one role in the experience section.
type TimelineEntry struct {
	Period      string `yaml:"period"`
	Role        string `yaml:"role"`
	Company     string `yaml:"company"`
	Description string `yaml:"description"`
}

// SkillCategory groups skills under a heading.
type SkillCategory struct {
	Title  string   `yaml:"title"`
	Skills []string `yaml:"skills"`
}

// Link is a contact link.
type Link struct {
	Label string `yaml:"label"`
	Href  string `yaml:"href"`
}

// External reports whether the link leaves the site.
func (l Link) External() bool {
	return len(l.Href) > 4 && l.Href[:4] == "http"
}

// Site is the whole dataset.
type Site struct {
	Name         string             `yaml:"name"`
	Initials     string             `yaml:"initials"`
	Headline     string             `yaml:"headline"`
	Tagline      string             `yaml:"tagline"`
	Location     string             `yaml:"location"`
	Availability string             `yaml:"availability"`
	About        string             `yaml:"about"`
	Focus        []string           `yaml:"focus"`
	Timeline     []TimelineEntry    `yaml:"timeline"`
	Skills       []SkillCategory    `yaml:"skills"`
	Links        []Link             `yaml:"links"`
	Projects     []carousel.Project `yaml:"projects"`
}

// Default returns the embedded dataset.
func Default() (*Site, error) {
	return Parse(defaultSite)
}

// Load reads a dataset from path, or the embedded one when path is empty.
func Load(path string) (*Site, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("content.Load", fmt.Errorf("read %s: %w", path, err))
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML dataset. Unknown keys are rejected.
func Parse(raw []byte) (*Site, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var s Site
	if err := dec.Decode(&s); err != nil {
		return nil, errs.Config("content.Parse", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports the first problem that would break rendering.
func (s *Site) Validate() error {
	if s.Name == "" {
		return errs.Config("content.Validate", ErrMissingName)
	}
	if len(s.Projects) == 0 {
		return errs.Config("content.Validate", carousel.ErrNoProjects)
	}
	seen := make(map[int]bool, len(s.Projects))
	for _, p := range s.Projects {
		if seen[p.ID] {
			return errs.Config("content.Validate", ErrDuplicateProject).With("project", p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
