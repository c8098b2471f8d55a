package issuer

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed persona.yaml
var defaultPersonaYAML []byte

// Persona is the assistant's character: voice, sampling temperature and the
// base instructions every session starts from.
type Persona struct {
	Name         string  `yaml:"name"`
	Voice        string  `yaml:"voice"`
	Temperature  float64 `yaml:"temperature"`
	HomeCountry  string  `yaml:"home_country"`
	Greeting     string  `yaml:"greeting"`
	Instructions string  `yaml:"instructions"`
}

// DefaultPersona returns the embedded persona.
func DefaultPersona() Persona {
	p, err := ParsePersona(defaultPersonaYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded persona is invalid: %v", err))
	}
	return p
}

// LoadPersona reads a persona file. An empty path yields the default persona.
func LoadPersona(path string) (Persona, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPersona(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona: %w", err)
	}
	p, err := ParsePersona(b)
	if err != nil {
		return Persona{}, fmt.Errorf("persona %s: %w", path, err)
	}
	return p, nil
}

func ParsePersona(b []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	p.Instructions = strings.TrimSpace(p.Instructions)
	if p.Instructions == "" {
		return Persona{}, fmt.Errorf("instructions must not be empty")
	}
	if p.Voice == "" {
		p.Voice = "ash"
	}
	if p.Temperature == 0 {
		p.Temperature = 0.8
	}
	// Realtime sessions accept temperatures in [0.6, 1.2].
	if p.Temperature < 0.6 || p.Temperature > 1.2 {
		return Persona{}, fmt.Errorf("temperature must be between 0.6 and 1.2")
	}
	return p, nil
}
