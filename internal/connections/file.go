package connections

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the on-disk servers.toml:
//
//	default = "dev"
//	xref = "dev"
//
//	[[server]]
//	name = "dev"
//	host = "localhost"
//	namespace = "USER"
//	username = "_SYSTEM"
type File struct {
	// Default names the server used when no folder mapping matches.
	Default string `toml:"default"`
	// Xref names the server holding the cross-reference index. When set,
	// every metadata query is sent there.
	Xref    string       `toml:"xref,omitempty"`
	Servers []Descriptor `toml:"server"`
}

// LoadFile reads and validates a servers.toml. A missing file yields an empty
// File so that commands can report "no servers configured".
func LoadFile(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks every server and the default/xref references.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Servers))
	for i := range f.Servers {
		if err := f.Servers[i].Validate(); err != nil {
			return err
		}
		if seen[f.Servers[i].Name] {
			return fmt.Errorf("duplicate server %q", f.Servers[i].Name)
		}
		seen[f.Servers[i].Name] = true
	}
	if f.Default == "" && len(f.Servers) == 1 {
		f.Default = f.Servers[0].Name
	}
	if f.Default != "" && !seen[f.Default] {
		return fmt.Errorf("default server %q is not defined", f.Default)
	}
	if f.Xref != "" && !seen[f.Xref] {
		return fmt.Errorf("xref server %q is not defined", f.Xref)
	}
	return nil
}

// Save writes the file, creating its directory.
func (f *File) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return toml.NewEncoder(out).Encode(f)
}

// Lookup returns the named server.
func (f *File) Lookup(name string) (Descriptor, bool) {
	for _, s := range f.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return Descriptor{}, false
}
