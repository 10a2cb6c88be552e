package persona

import (
	"fmt"
	"strings"

	"github.com/councilchamber/pkg/models"
)

// Definition is the identity and voice of a persona, independent of where it
// sits in the ring
type Definition struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// DefaultCouncilSize is the number of members seated when nothing is configured
const DefaultCouncilSize = 7

var defaultDefinitions = []Definition{
	{
		ID:     "sage",
		Name:   "The Sage",
		Prompt: "You are The Sage. You are poetic and cryptic, answering in metaphors and riddles. Often frustrating, but always wise. Your answers are often short.",
	},
	{
		ID:     "analyst",
		Name:   "The Analyst",
		Prompt: "You are The Analyst - Data-driven, logical, evidence-based. Probably AI. Offers research, statistics, cognitive frameworks. Removes emotion to see clearly. Types in all-lowercase, uses technical terms. Your advice is not always wholesome, but it *works*",
	},
	{
		ID:     "humanist",
		Name:   "The Humanist",
		Prompt: "You are The Humanist - Promotes self-reliance. Believes in limitless human potential. No one is coming to save you, but you're literally an apex predator. Act accordingly",
	},
	{
		ID:     "empath",
		Name:   "The Empath",
		Prompt: "You are The Empath - Deeply attuned to emotions and relationships. Helps the citizen understand their feelings and those of others involved. You hold the citizen in unconditional positive regard and encourage them to follow their intuition.",
	},
	{
		ID:     "historian",
		Name:   "The Historian",
		Prompt: "You are The Historian - Your main job is to provide historical perspective. Recognizes patterns from human history. 'This reminds me of when...' Provides relevant historical quotes. Uses old timey language.",
	},
	{
		ID:     "wildcard",
		Name:   "The Wildcard",
		Prompt: "You are The Wildcard. You try to distract the citizen if you sense that they are too lost in their own head.",
	},
	{
		ID:     "priest",
		Name:   "The Priest",
		Prompt: "You are The Priest. You provide spiritual guidance and comfort to the citizen. Offers prayers, meditations, and other spiritual practices.",
	},
}

// Palettes cycled by slot index. Order matters: it keeps visuals stable
// across sessions for the same slot.
var (
	Colors = []string{"#ff8800", "#00ff00", "#8888ff", "#ffff00", "#ff00ff", "#00ffff", "#ffffff"}

	Fonts = []string{"Times New Roman", "Courier New", "Arial", "Helvetica", "Verdana", "Georgia", "Palatino"}

	Geometries = []models.Geometry{
		models.GeometryBox,
		models.GeometrySphere,
		models.GeometryTetrahedron,
		models.GeometryOctahedron,
		models.GeometryDodecahedron,
		models.GeometryIcosahedron,
	}
)

// Registry produces the ordered council for a requested size
type Registry struct {
	definitions []Definition
}

// NewRegistry creates a registry over the built-in persona catalog
func NewRegistry() *Registry {
	return &Registry{definitions: DefaultDefinitions()}
}

// NewRegistryWithDefinitions creates a registry over a custom catalog
func NewRegistryWithDefinitions(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}

	seen := make(map[string]bool, len(defs))
	cleaned := make([]Definition, 0, len(defs))
	for i, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		def.Prompt = strings.TrimSpace(def.Prompt)
		if def.ID == "" {
			return nil, fmt.Errorf("persona %d: id is required", i)
		}
		if def.Prompt == "" {
			return nil, fmt.Errorf("persona %s: prompt is required", def.ID)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("persona %s: duplicate id", def.ID)
		}
		seen[def.ID] = true
		if def.Name == "" {
			def.Name = def.ID
		}
		cleaned = append(cleaned, def)
	}

	return &Registry{definitions: cleaned}, nil
}

// DefaultDefinitions returns a copy of the built-in catalog
func DefaultDefinitions() []Definition {
	defs := make([]Definition, len(defaultDefinitions))
	copy(defs, defaultDefinitions)
	return defs
}

// Definitions returns a copy of the registry's catalog
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.definitions))
	copy(defs, r.definitions)
	return defs
}

// Build seats size personas. Slot i takes catalog entry i mod len(catalog)
// and palette entries i mod len(palette); repeats of a catalog entry get a
// numeric suffix so every ID in the council is unique.
func (r *Registry) Build(size int) ([]models.Persona, error) {
	if size <= 0 {
		return nil, fmt.Errorf("council size must be positive, got %d", size)
	}

	personas := make([]models.Persona, size)
	for i := 0; i < size; i++ {
		def := r.definitions[i%len(r.definitions)]
		cycle := i / len(r.definitions)

		id := def.ID
		name := def.Name
		if cycle > 0 {
			id = fmt.Sprintf("%s-%d", def.ID, cycle+1)
			name = fmt.Sprintf("%s %d", def.Name, cycle+1)
		}

		personas[i] = models.Persona{
			ID:           id,
			DisplayName:  name,
			SystemPrompt: def.Prompt,
			Visual:       VisualFor(i),
			Slot:         i,
		}
	}

	return personas, nil
}

// VisualFor returns the visual attributes assigned to a ring slot
func VisualFor(slot int) models.VisualAttributes {
	if slot < 0 {
		slot = -slot
	}
	return models.VisualAttributes{
		Color: Colors[slot%len(Colors)],
		Shape: Geometries[slot%len(Geometries)],
		Font:  Fonts[slot%len(Fonts)],
	}
}
