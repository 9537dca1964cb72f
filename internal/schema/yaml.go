package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/tabload/internal/dataset"
)

// fileDoc is the on-disk shape of a schema definition.
type fileDoc struct {
	Entity     string      `yaml:"entity"`
	Table      string      `yaml:"table"`
	PrimaryKey string      `yaml:"primary_key"`
	Unique     [][]string  `yaml:"unique"`
	Managed    []string    `yaml:"managed"`
	Columns    []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Name             string     `yaml:"name"`
	Source           string     `yaml:"source"`
	Relation         bool       `yaml:"relation"`
	Kind             string     `yaml:"kind"`
	Required         *bool      `yaml:"required"`
	AllowNull        bool       `yaml:"allow_null"`
	AllowBlank       bool       `yaml:"allow_blank"`
	TrimWhitespace   *bool      `yaml:"trim_whitespace"`
	AllowEmpty       *bool      `yaml:"allow_empty"`
	Default          any        `yaml:"default"`
	ReplaceNull      any        `yaml:"replace_null"`
	MinValue         *float64   `yaml:"min_value"`
	MaxValue         *float64   `yaml:"max_value"`
	MinLength        *int       `yaml:"min_length"`
	MaxLength        *int       `yaml:"max_length"`
	Format           string     `yaml:"format"`
	Child            *columnDoc `yaml:"child"`
	Hook             string     `yaml:"hook"`
	Managed          bool       `yaml:"managed"`
	ConflictSentinel any        `yaml:"conflict_sentinel"`
}

// Parse decodes one YAML schema document. Unknown keys are rejected so that
// typos like "max_lenght" do not silently disable a constraint.
func Parse(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty schema document")
		}
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	def := Definition{
		Entity:     doc.Entity,
		Table:      doc.Table,
		PrimaryKey: doc.PrimaryKey,
		Unique:     doc.Unique,
		Managed:    doc.Managed,
	}
	for _, c := range doc.Columns {
		spec, err := c.spec(false)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", doc.Entity, err)
		}
		def.Columns = append(def.Columns, spec)
	}
	return New(def)
}

func (c columnDoc) spec(child bool) (ColumnSpec, error) {
	kind, err := dataset.ParseKind(c.Kind)
	if err != nil {
		return ColumnSpec{}, fmt.Errorf("column %s: %w", c.Name, err)
	}
	spec := ColumnSpec{
		Name:             c.Name,
		Source:           c.Source,
		Relation:         c.Relation,
		Kind:             kind,
		Required:         !child,
		AllowNull:        c.AllowNull,
		AllowBlank:       c.AllowBlank,
		Default:          c.Default,
		ReplaceNull:      c.ReplaceNull,
		MinValue:         c.MinValue,
		MaxValue:         c.MaxValue,
		MinLength:        c.MinLength,
		MaxLength:        c.MaxLength,
		Format:           c.Format,
		Hook:             c.Hook,
		Managed:          c.Managed,
		ConflictSentinel: c.ConflictSentinel,
	}
	if c.Required != nil {
		spec.Required = *c.Required
	}
	if c.TrimWhitespace != nil {
		spec.KeepWhitespace = !*c.TrimWhitespace
	}
	if c.AllowEmpty != nil {
		spec.RejectEmpty = !*c.AllowEmpty
	}
	if c.Child != nil {
		childSpec, err := c.Child.spec(true)
		if err != nil {
			return ColumnSpec{}, fmt.Errorf("column %s: %w", c.Name, err)
		}
		spec.Child = &childSpec
	}
	return spec, nil
}

// LoadFile parses a single schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// LoadDir parses every *.yaml and *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSchemaFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		schemas []*Schema
		errs    []error
	)
	for _, name := range names {
		s, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		schemas = append(schemas, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return schemas, nil
}

func isSchemaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(filepath.Base(name), ".")
}
