package strategy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

//go:embed presets.yaml
var builtinPresets []byte

// LegTemplate is one leg of a preset, placed relative to the ATM strike.
type LegTemplate struct {
	Type      models.OptionType `yaml:"type" json:"type"`
	Direction models.Direction  `yaml:"direction" json:"direction"`
	Offset    int               `yaml:"offset" json:"offset"`
	Lots      int               `yaml:"lots" json:"lots"`
}

// Preset is a named strategy template.
type Preset struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Legs        []LegTemplate `yaml:"legs" json:"legs"`
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Build materialises the template at atmStrike. Market fields are left zero.
func (p Preset) Build(atmStrike, strikeStep float64) []models.OptionLeg {
	legs := make([]models.OptionLeg, 0, len(p.Legs))
	for _, t := range p.Legs {
		legs = append(legs, models.OptionLeg{
			Strike:    atmStrike + float64(t.Offset)*strikeStep,
			Type:      t.Type,
			Direction: t.Direction,
			Lots:      t.Lots,
		})
	}
	return legs
}

// Validate checks that every template leg is usable.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.NewValidationError("name", p.Name, "preset name is required")
	}
	if len(p.Legs) == 0 {
		return apperrors.NewValidationError("legs", p.Name, "preset has no legs")
	}
	for i, t := range p.Legs {
		if t.Type != models.Call && t.Type != models.Put {
			return apperrors.NewValidationError(fmt.Sprintf("legs[%d].type", i), t.Type, "must be CE or PE")
		}
		if t.Direction != models.Long && t.Direction != models.Short {
			return apperrors.NewValidationError(fmt.Sprintf("legs[%d].direction", i), t.Direction, "must be LONG or SHORT")
		}
		if t.Lots <= 0 {
			return apperrors.NewValidationError(fmt.Sprintf("legs[%d].lots", i), t.Lots, "must be positive")
		}
	}
	return nil
}

// Catalog is the set of presets known to the application.
type Catalog struct {
	presets map[string]Preset
}

// DefaultCatalog returns the built-in presets.
func DefaultCatalog() *Catalog {
	c := &Catalog{presets: make(map[string]Preset)}
	if err := c.merge(builtinPresets); err != nil {
		panic(fmt.Sprintf("built-in presets: %v", err))
	}
	return c
}

// LoadCatalog returns the built-in presets extended or overridden by the
// presets in path. A missing file is not an error.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading presets file: %w", err)
	}
	if err := c.merge(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

func (c *Catalog) merge(data []byte) error {
	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, p := range f.Presets {
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if err := p.Validate(); err != nil {
			return err
		}
		c.presets[p.Name] = p
	}
	return nil
}

// Get looks up a preset by name, case-insensitively.
func (c *Catalog) Get(name string) (Preset, error) {
	p, ok := c.presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, apperrors.Wrapf(apperrors.ErrPresetNotFound, "preset %q", name)
	}
	return p, nil
}

// List returns all presets sorted by name.
func (c *Catalog) List() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
