package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"opendax/internal/daxerr"
)

// cdtFile is the on-disk shape of a bulk CDT descriptor, one document
// listing every CDT the server should have registered before it starts
// accepting connections.
type cdtFile struct {
	Types []cdtFileEntry `yaml:"types"`
}

type cdtFileEntry struct {
	Name    string           `yaml:"name"`
	Members []cdtFileMember  `yaml:"members"`
}

type cdtFileMember struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Count uint   `yaml:"count"`
}

// LoadCDTFile bulk-registers CDTs from a YAML descriptor, resolving each
// member's type name against types already known to r (built-ins or CDTs
// registered earlier in the same file, since entries are processed in
// document order).
func (r *Registry) LoadCDTFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("types: reading cdt file %s: %w", path, err)
	}

	var doc cdtFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("types: parsing cdt file %s: %w", path, err)
	}

	for _, entry := range doc.Types {
		members := make([]Member, 0, len(entry.Members))
		for _, fm := range entry.Members {
			if fm.Count == 0 {
				fm.Count = 1
			}
			id, ok := r.ByName(fm.Type)
			if !ok {
				return daxerr.New(daxerr.BadArg, fmt.Sprintf("cdt %q: member %q names unknown type %q", entry.Name, fm.Name, fm.Type))
			}
			members = append(members, Member{Name: fm.Name, Type: id, Count: fm.Count})
		}
		if _, err := r.RegisterCDT(entry.Name, members); err != nil {
			return fmt.Errorf("types: registering cdt %q from %s: %w", entry.Name, path, err)
		}
	}

	return nil
}
