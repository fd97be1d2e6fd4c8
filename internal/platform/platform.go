// Package platform describes the social platforms a probe can check.
package platform

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPlatform is returned by Lookup for an unregistered name
var ErrUnknownPlatform = errors.New("unknown platform")

// Platform holds the URL template and marker phrases for one site.
// Markers are matched case-insensitively against the fetched page.
type Platform struct {
	Name        string `yaml:"name" json:"name"`
	URLTemplate string `yaml:"url" json:"url"`
	Website     string `yaml:"website,omitempty" json:"website,omitempty"`

	UnavailableMarkers []string `yaml:"unavailable" json:"unavailable"`
	PresentMarkers     []string `yaml:"present" json:"present"`

	// JSON paths checked when the response body is JSON
	UnavailableJSONPath string `yaml:"unavailable_json_path,omitempty" json:"unavailable_json_path,omitempty"`
	PresentJSONPath     string `yaml:"present_json_path,omitempty" json:"present_json_path,omitempty"`
}

// Validate checks the definition is usable
func (p Platform) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("platform name is required")
	}
	if !strings.Contains(p.URLTemplate, "{username}") {
		return fmt.Errorf("platform %s: url must contain {username}", p.Name)
	}
	if len(p.PresentMarkers) == 0 && p.PresentJSONPath == "" {
		return fmt.Errorf("platform %s: at least one present marker is required", p.Name)
	}
	return nil
}

var profileMarkers = []string{"followers", "following"}

// Builtin returns the default platform set
func Builtin() []Platform {
	return []Platform{
		{
			Name:               "Instagram",
			URLTemplate:        "https://www.instagram.com/{username}/",
			Website:            "instagram.com",
			UnavailableMarkers: []string{"sorry, this page isn't available"},
			PresentMarkers:     profileMarkers,
		},
		{
			Name:               "Twitter",
			URLTemplate:        "https://twitter.com/{username}",
			Website:            "twitter.com",
			UnavailableMarkers: []string{"account suspended", "this account doesn't exist", "doesn't exist"},
			PresentMarkers:     profileMarkers,
		},
		{
			Name:               "TikTok",
			URLTemplate:        "https://www.tiktok.com/@{username}",
			Website:            "tiktok.com",
			UnavailableMarkers: []string{"couldn't find this account"},
			PresentMarkers:     profileMarkers,
		},
	}
}

// Registry is a case-insensitive set of platforms
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

// NewRegistry creates a registry holding the given platforms
func NewRegistry(platforms ...Platform) (*Registry, error) {
	r := &Registry{platforms: make(map[string]Platform)}
	for _, p := range platforms {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry with the built-in platforms
func Default() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds p, replacing any platform with the same name
func (r *Registry) Register(p Platform) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.platforms[key(p.Name)] = p
	r.mu.Unlock()
	return nil
}

// Lookup finds a platform by name
func (r *Registry) Lookup(name string) (Platform, error) {
	r.mu.RLock()
	p, ok := r.platforms[key(name)]
	r.mu.RUnlock()
	if !ok {
		return Platform{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// List returns all platforms sorted by name
func (r *Registry) List() []Platform {
	r.mu.RLock()
	out := make([]Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type fileFormat struct {
	Platforms []Platform `yaml:"platforms"`
}

// LoadFile registers the platforms defined in a YAML file
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, p := range f.Platforms {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
