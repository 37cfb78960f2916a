// Package roster loads the cast of characters a script is parsed against.
package roster

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"scriptreel/internal/services"
)

// Character describes one cast member and the generation hints for them.
type Character struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	VoiceID     string   `yaml:"voice_id,omitempty" json:"voice_id,omitempty"`
	Emotion     string   `yaml:"emotion,omitempty" json:"emotion,omitempty"`
	ImageStyle  string   `yaml:"image_style,omitempty" json:"image_style,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Roster is an ordered cast list.
type Roster struct {
	Characters []Character `yaml:"characters" json:"characters"`
}

// Load reads a roster YAML file.
func Load(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}

// Parse decodes roster YAML. Both a top-level `characters:` list and a bare
// list of characters are accepted.
func Parse(data []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil || len(r.Characters) == 0 {
		var list []Character
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			if err == nil {
				err = listErr
			}
			return Roster{}, services.Wrap(services.ErrValidation, "roster", "parse", "invalid roster yaml", err)
		}
		r.Characters = list
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

// FromNames builds a roster from bare character names.
func FromNames(names []string) Roster {
	r := Roster{Characters: make([]Character, 0, len(names))}
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			r.Characters = append(r.Characters, Character{Name: name})
		}
	}
	return r
}

// Validate rejects blank names and names or aliases claimed twice.
func (r Roster) Validate() error {
	seen := make(map[string]string)
	for i, c := range r.Characters {
		if strings.TrimSpace(c.Name) == "" {
			return services.Wrap(services.ErrValidation, "roster", "validate", fmt.Sprintf("character %d has no name", i+1), nil)
		}
		for _, key := range append([]string{c.Name}, c.Aliases...) {
			k := strings.ToLower(strings.TrimSpace(key))
			if k == "" {
				continue
			}
			if owner, ok := seen[k]; ok && owner != c.Name {
				return services.Wrap(services.ErrValidation, "roster", "validate", fmt.Sprintf("%q is claimed by %s and %s", key, owner, c.Name), nil)
			}
			seen[k] = c.Name
		}
	}
	return nil
}

// Names returns every name and alias the parser should recognise.
func (r Roster) Names() []string {
	out := make([]string, 0, len(r.Characters))
	for _, c := range r.Characters {
		out = append(out, c.Name)
		out = append(out, c.Aliases...)
	}
	return out
}

// Resolve maps a name or alias to its character, ignoring case.
func (r Roster) Resolve(name string) (Character, bool) {
	name = strings.TrimSpace(name)
	for _, c := range r.Characters {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, name) {
				return c, true
			}
		}
	}
	return Character{}, false
}
