package decl

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"

	"github.com/vango-dev/propgen/internal/errors"
)

// JSONSchema is the embedded schema for declaration snapshots.
//
//go:embed resources/snapshot.schema.json
var JSONSchema []byte

const schemaFile = "resources/snapshot.schema.json"

// GetJSONSchema compiles the snapshot schema once and caches it.
var GetJSONSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(JSONSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	if err := c.AddResource(schemaFile, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	sch, err := c.Compile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return sch, nil
})

// ValidateRaw checks raw YAML or JSON snapshot data against the schema.
func ValidateRaw(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.New("E200").Wrap(err)
	}
	schema, err := GetJSONSchema()
	if err != nil {
		return errors.New("E201").Wrap(err)
	}
	if err := schema.Validate(doc); err != nil {
		return errors.New("E201").
			Wrap(err).
			WithSuggestion("Regenerate the snapshot with 'propgen snapshot', or quote names that YAML reads as booleans (Y, N, On, Off, Yes, No)")
	}
	return nil
}

// Decode validates and decodes a YAML or JSON snapshot.
func Decode(raw []byte) (*Set, error) {
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	var set Set
	if err := yaml.UnmarshalStrict(raw, &set); err != nil {
		return nil, errors.New("E200").Wrap(err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Encode renders a declaration set as YAML.
func Encode(set *Set) ([]byte, error) {
	if set.Version == 0 {
		set.Version = SnapshotVersion
	}
	if set.Types == nil {
		set.Types = []Type{}
	}
	data, err := yaml.Marshal(set)
	if err != nil {
		return nil, errors.New("E200").Wrap(err)
	}
	return data, nil
}

// LoadFile reads a snapshot from disk.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E200").
			WithDetail("Failed to read snapshot " + path).
			Wrap(err)
	}
	set, err := Decode(data)
	if err != nil {
		if pe, ok := err.(*errors.Error); ok && pe.Subject == "" {
			pe.Subject = path
		}
		return nil, err
	}
	return set, nil
}

// SaveFile writes a snapshot to disk.
func SaveFile(path string, set *Set) error {
	data, err := Encode(set)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks identity constraints the schema cannot express.
// Types may be declared more than once (their members are pooled), but a
// member identity must be unique.
func (s *Set) Validate() error {
	seen := make(map[MemberID]bool, s.Len())
	for _, t := range s.Types {
		for _, m := range t.Members {
			id := MemberID{Owner: t.ID(), Name: m.Name}
			if seen[id] {
				return errors.New("E202").
					WithSubject(id.String()).
					WithPosition(m.Pos.File, m.Pos.Line, m.Pos.Column)
			}
			seen[id] = true
		}
	}
	return nil
}
