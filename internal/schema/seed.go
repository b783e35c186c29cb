package schema

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"opreg/internal/models"
	"opreg/internal/validation"
)

// SeedFile is the YAML shape for bootstrapping categories and their
// fields at startup. Existing categories (matched by name + module) and
// existing field keys are left untouched, so re-running the seed is safe.
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	Name   string      `yaml:"name"`
	Module string      `yaml:"module"`
	Fields []SeedField `yaml:"fields"`
}

type SeedField struct {
	Label        string   `yaml:"label"`
	Key          string   `yaml:"key"`
	Kind         string   `yaml:"kind"`
	Required     bool     `yaml:"required"`
	Options      []string `yaml:"options"`
	WarnDays     *int     `yaml:"warn_days"`
	UrgentDays   *int     `yaml:"urgent_days"`
	CriticalDays *int     `yaml:"critical_days"`
}

// SeedFromFile loads a YAML seed file and applies it to the registry.
func (r *Registry) SeedFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var sf SeedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return r.Seed(sf)
}

// Seed applies the seed definition, skipping anything already present.
func (r *Registry) Seed(sf SeedFile) error {
	for _, sc := range sf.Categories {
		cat, err := r.findCategory(sc.Name, sc.Module)
		if err != nil {
			return err
		}
		if cat == nil {
			cat, err = r.CreateCategory(sc.Name, sc.Module)
			if err != nil {
				return fmt.Errorf("seed category %q: %w", sc.Name, err)
			}
		}

		for i, f := range sc.Fields {
			required := 0
			if f.Required {
				required = 1
			}
			_, err := r.CreateField(cat.ID, models.FieldDefinition{
				Label:        f.Label,
				FieldKey:     f.Key,
				Kind:         f.Kind,
				Required:     required,
				Options:      f.Options,
				DisplayOrder: i,
				WarnDays:     f.WarnDays,
				UrgentDays:   f.UrgentDays,
				CriticalDays: f.CriticalDays,
			})
			if err != nil {
				var ve *validation.ValidationErrors
				if errors.As(err, &ve) && hasDuplicateKey(ve) {
					continue
				}
				return fmt.Errorf("seed field %q on %q: %w", f.Key, sc.Name, err)
			}
		}
		log.Printf("seed: category %q (%s) ready", sc.Name, cat.ID)
	}
	return nil
}

func (r *Registry) findCategory(name, module string) (*models.Category, error) {
	cats, err := r.ListCategories(module)
	if err != nil {
		return nil, err
	}
	for _, c := range cats {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func hasDuplicateKey(ve *validation.ValidationErrors) bool {
	for _, e := range ve.Errors {
		if e.Field == "field_key" {
			return true
		}
	}
	return false
}
