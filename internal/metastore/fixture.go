package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"clslens/internal/names"

	"gopkg.in/yaml.v3"
)

// DefaultNamespace is used when a fixture names none.
const DefaultNamespace = "USER"

// OverrideCommand marks a cross-reference recorded for an override.
const OverrideCommand = "_Override"

// Fixture is the YAML description of a set of classes.
//
//	namespace: USER
//	classes:
//	  - name: Demo.Base
//	    super: [%Persistent]
//	    members:
//	      - {name: Run, type: method}
//	xrefs:
//	  - {class: Demo.Base, member: Run, callingClass: Demo.Caller, callingMember: Go, line: 3}
type Fixture struct {
	Namespace string `yaml:"namespace"`
	// Namespaces maps a namespace to the one holding its cross-reference
	// index. Every namespace maps to itself when unset.
	Namespaces map[string]string `yaml:"namespaces"`
	Classes    []ClassFixture    `yaml:"classes"`
	Xrefs      []XrefFixture     `yaml:"xrefs"`
}

// ClassFixture declares a class with its direct superclasses and the
// members it declares itself.
type ClassFixture struct {
	Name    string          `yaml:"name"`
	Super   []string        `yaml:"super"`
	Members []MemberFixture `yaml:"members"`
}

// MemberFixture is one declared member.
type MemberFixture struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Line        int    `yaml:"line"`
}

// XrefFixture is one call-site of a member.
type XrefFixture struct {
	Namespace     string `yaml:"namespace"`
	Class         string `yaml:"class"`
	Member        string `yaml:"member"`
	CallingClass  string `yaml:"callingClass"`
	CallingMember string `yaml:"callingMember"`
	Command       string `yaml:"command"`
	Line          int    `yaml:"line"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks required fields and duplicate classes.
func (f *Fixture) Validate() error {
	seen := make(map[string]bool, len(f.Classes))
	for i, c := range f.Classes {
		if c.Name == "" {
			return fmt.Errorf("classes[%d]: name is required", i)
		}
		key := strings.ToUpper(c.Name)
		if seen[key] {
			return fmt.Errorf("classes[%d]: duplicate class %q", i, c.Name)
		}
		seen[key] = true
		for j, m := range c.Members {
			if m.Name == "" {
				return fmt.Errorf("classes[%d].members[%d]: name is required", i, j)
			}
		}
	}
	for i, x := range f.Xrefs {
		if x.Class == "" || x.Member == "" || x.CallingClass == "" {
			return fmt.Errorf("xrefs[%d]: class, member and callingClass are required", i)
		}
	}
	return nil
}

func (f *Fixture) namespace() string {
	if f.Namespace == "" {
		return DefaultNamespace
	}
	return f.Namespace
}

// xrefNamespace resolves the index namespace of ns.
func (f *Fixture) xrefNamespace(ns string) string {
	if x, ok := f.Namespaces[ns]; ok && x != "" {
		return strings.ToUpper(x)
	}
	return strings.ToUpper(ns)
}

// compiledMember is a member as seen on a compiled class.
type compiledMember struct {
	Name        string
	Origin      string
	Type        string
	Description string
}

// compiler materializes inherited members the way class compilation does:
// a class sees every member of its superclasses, leftmost superclass first,
// and its own declarations replace inherited ones.
type compiler struct {
	classes map[string]ClassFixture
	done    map[string][]compiledMember
	active  map[string]bool
}

func newCompiler(f *Fixture) *compiler {
	c := &compiler{
		classes: make(map[string]ClassFixture, len(f.Classes)),
		done:    make(map[string][]compiledMember),
		active:  make(map[string]bool),
	}
	for _, cls := range f.Classes {
		c.classes[strings.ToUpper(cls.Name)] = cls
	}
	return c
}

func memberKey(name string) string {
	return names.Normalize(names.QuoteIdentifier(name, names.RemoveQuotes))
}

func (c *compiler) compile(className string) ([]compiledMember, error) {
	key := strings.ToUpper(className)
	if members, ok := c.done[key]; ok {
		return members, nil
	}
	cls, ok := c.classes[key]
	if !ok {
		// classes outside the fixture contribute nothing
		return nil, nil
	}
	if c.active[key] {
		return nil, fmt.Errorf("inheritance cycle through %s", cls.Name)
	}
	c.active[key] = true
	defer delete(c.active, key)

	var members []compiledMember
	index := make(map[string]int)
	for _, super := range cls.Super {
		inherited, err := c.compile(super)
		if err != nil {
			return nil, err
		}
		for _, m := range inherited {
			k := memberKey(m.Name)
			if _, dup := index[k]; dup {
				continue
			}
			index[k] = len(members)
			members = append(members, m)
		}
	}
	for _, m := range cls.Members {
		own := compiledMember{
			Name:        names.QuoteIdentifier(m.Name, names.RemoveQuotes),
			Origin:      cls.Name,
			Type:        memberType(m.Type),
			Description: m.Description,
		}
		if i, ok := index[memberKey(m.Name)]; ok {
			members[i] = own
			continue
		}
		index[memberKey(m.Name)] = len(members)
		members = append(members, own)
	}

	c.done[key] = members
	return members, nil
}

func memberType(t string) string {
	if t == "" {
		return "method"
	}
	return strings.ToLower(t)
}

// ImportStats summarizes an import.
type ImportStats struct {
	Classes   int
	Members   int
	Xrefs     int
	Overrides int
}

// Import replaces the store contents with the compiled fixture. Besides the
// listed cross-references, one override entry is derived for every declared
// member that replaces a member of a direct superclass.
func (s *Store) Import(ctx context.Context, f *Fixture) (ImportStats, error) {
	var stats ImportStats
	if err := f.Validate(); err != nil {
		return stats, err
	}
	comp := newCompiler(f)
	ns := f.namespace()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		namespaces := map[string]string{ns: f.xrefNamespace(ns)}
		for from := range f.Namespaces {
			namespaces[from] = f.xrefNamespace(from)
		}
		for from, to := range namespaces {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO namespace_map (namespace, xref_namespace) VALUES (?, ?)", from, to); err != nil {
				return fmt.Errorf("failed to map namespace %s: %w", from, err)
			}
		}

		for _, cls := range f.Classes {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO compiled_class (name, super) VALUES (?, ?)",
				cls.Name, strings.Join(cls.Super, ",")); err != nil {
				return fmt.Errorf("failed to insert class %s: %w", cls.Name, err)
			}
			for pos, super := range cls.Super {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO class_super (class, super, position) VALUES (?, ?, ?)",
					cls.Name, super, pos); err != nil {
					return fmt.Errorf("failed to insert superclass of %s: %w", cls.Name, err)
				}
			}

			members, err := comp.compile(cls.Name)
			if err != nil {
				return err
			}
			for _, m := range members {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO compiled_member (parent, name, origin, member_type, description) VALUES (?, ?, ?, ?, ?)",
					cls.Name, m.Name, m.Origin, m.Type, m.Description); err != nil {
					return fmt.Errorf("failed to insert member %s.%s: %w", cls.Name, m.Name, err)
				}
			}
			stats.Classes++
			stats.Members += len(members)

			n, err := insertOverrides(ctx, tx, comp, cls, f.xrefNamespace(ns))
			if err != nil {
				return err
			}
			stats.Overrides += n
		}

		for _, x := range f.Xrefs {
			xns := x.Namespace
			if xns == "" {
				xns = ns
			}
			if err := insertXref(ctx, tx, f.xrefNamespace(xns), x); err != nil {
				return err
			}
			stats.Xrefs++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}

	s.logger.Info("Imported fixture",
		"classes", stats.Classes,
		"members", stats.Members,
		"xrefs", stats.Xrefs,
		"overrides", stats.Overrides,
	)
	return stats, nil
}

// ImportFile loads and imports a YAML fixture.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return ImportStats{}, err
	}
	return s.Import(ctx, f)
}

func insertOverrides(ctx context.Context, tx *sql.Tx, comp *compiler, cls ClassFixture, xrefNS string) (int, error) {
	n := 0
	for _, super := range cls.Super {
		inherited, err := comp.compile(super)
		if err != nil {
			return n, err
		}
		byKey := make(map[string]compiledMember, len(inherited))
		for _, m := range inherited {
			byKey[memberKey(m.Name)] = m
		}
		for _, own := range cls.Members {
			base, ok := byKey[memberKey(own.Name)]
			if !ok {
				continue
			}
			x := XrefFixture{
				Class:         super,
				Member:        base.Name,
				CallingClass:  cls.Name,
				CallingMember: names.QuoteIdentifier(own.Name, names.RemoveQuotes),
				Command:       OverrideCommand,
				Line:          own.Line,
			}
			if err := insertXref(ctx, tx, xrefNS, x); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func insertXref(ctx context.Context, tx *sql.Tx, xrefNS string, x XrefFixture) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO xref_data
		   (namespace, item_type, item_key1, item_key2, called_by_command, called_by_key1, called_by_key2, line_number)
		 VALUES (?, 'CLS', ?, ?, ?, ?, ?, ?)`,
		xrefNS, x.Class, names.QuoteIdentifier(x.Member, names.RemoveQuotes),
		x.Command, x.CallingClass, x.CallingMember, x.Line)
	if err != nil {
		return fmt.Errorf("failed to insert xref %s.%s: %w", x.Class, x.Member, err)
	}
	return nil
}
