package schema

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/systemshift/graphrest/internal/server/graph"
)

type schemaFile struct {
	Types []typeEntry `yaml:"types"`
}

type typeEntry struct {
	Name         string              `yaml:"name"`
	Kind         Kind                `yaml:"kind"`
	Properties   []PropertyKey       `yaml:"properties"`
	Relations    []relationEntry     `yaml:"relations"`
	Views        map[string][]string `yaml:"views"`
	DefaultSort  string              `yaml:"defaultSort"`
	DefaultOrder string              `yaml:"defaultOrder"`
}

type relationEntry struct {
	Property  string `yaml:"property"`
	Target    string `yaml:"target"`
	Type      string `yaml:"type"`
	Direction string `yaml:"direction"`
}

// LoadFile reads a YAML schema from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML schema into a new registry. Unknown fields are rejected
// and every relation target must be a declared node type.
func Load(r io.Reader) (*Registry, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	reg := NewRegistry()
	for _, e := range file.Types {
		t := Type{
			Name:         e.Name,
			Kind:         e.Kind,
			Properties:   e.Properties,
			Views:        e.Views,
			DefaultSort:  e.DefaultSort,
			DefaultOrder: e.DefaultOrder,
		}
		switch t.DefaultOrder {
		case "", "asc", "desc":
		default:
			return nil, fmt.Errorf("type %s: defaultOrder must be asc or desc", e.Name)
		}
		for _, rel := range e.Relations {
			rc, err := rel.class()
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", e.Name, err)
			}
			t.Relations = append(t.Relations, rc)
		}
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}

	for _, name := range reg.Types() {
		t, _ := reg.Type(name)
		for _, rc := range t.Relations {
			target, ok := reg.Type(rc.Target)
			if !ok || target.Kind != KindNode {
				return nil, fmt.Errorf("type %s: relation %s targets unknown node type %s", name, rc.Property, rc.Target)
			}
		}
	}
	return reg, nil
}

func (e relationEntry) class() (RelationClass, error) {
	if e.Property == "" || e.Target == "" || e.Type == "" {
		return RelationClass{}, fmt.Errorf("relation needs property, target and type")
	}
	rc := RelationClass{Property: e.Property, Target: e.Target, RelType: e.Type}
	switch e.Direction {
	case "", "out":
		rc.Direction = graph.Outgoing
	case "in":
		rc.Direction = graph.Incoming
	default:
		return RelationClass{}, fmt.Errorf("relation %s: direction must be in or out, got %q", e.Property, e.Direction)
	}
	return rc, nil
}
