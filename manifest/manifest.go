package manifest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	LanguageAssemblyScript = "wasm/assemblyscript"
	LanguageRustV1         = "wasm/rust-v1"
	LanguageNative         = "native"
)

type Manifest struct {
	ID          string        `yaml:"id"`
	SpecVersion string        `yaml:"specVersion"`
	Description string        `yaml:"description"`
	Repository  string        `yaml:"repository"`
	Schema      *Schema       `yaml:"schema"`
	DataSources []*DataSource `yaml:"dataSources"`

	// Location is the directory relative mapping files are resolved against.
	Location string `yaml:"-"`
}

type Schema struct {
	File string `yaml:"file"`
}

type DataSource struct {
	Kind    string  `yaml:"kind"`
	Name    string  `yaml:"name"`
	Network string  `yaml:"network"`
	Source  Source  `yaml:"source"`
	Mapping Mapping `yaml:"mapping"`
}

type Source struct {
	Address    string  `yaml:"address"`
	ABI        string  `yaml:"abi"`
	StartBlock uint64  `yaml:"startBlock"`
	EndBlock   *uint64 `yaml:"endBlock"`
}

type Mapping struct {
	Kind          string          `yaml:"kind"`
	APIVersion    string          `yaml:"apiVersion"`
	Language      string          `yaml:"language"`
	File          string          `yaml:"file"`
	Entities      []string        `yaml:"entities"`
	ABIs          []*ABI          `yaml:"abis"`
	EventHandlers []*EventHandler `yaml:"eventHandlers"`
}

type ABI struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

type EventHandler struct {
	Event   string `yaml:"event"`
	Handler string `yaml:"handler"`
}

func New(path string) (*Manifest, error) {
	content, manif, err := DecodeYamlManifestFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	if manif.ID == "" {
		manif.ID = Signature([]byte(content))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving manifest path %q: %w", path, err)
	}
	manif.Location = filepath.Dir(absPath)

	if err := manif.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %q: %w", path, err)
	}

	return manif, nil
}

// Signature is the content hash used as subgraph id when the manifest does
// not name one.
func Signature(content []byte) string {
	h := sha1.New()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Manifest) Validate() error {
	seen := map[string]bool{}
	for i, ds := range m.DataSources {
		if ds == nil {
			return fmt.Errorf("data source #%d is empty", i)
		}
		if ds.Name == "" {
			return fmt.Errorf("data source #%d has no name", i)
		}
		if seen[ds.Name] {
			return fmt.Errorf("data source %q declared twice", ds.Name)
		}
		seen[ds.Name] = true

		if ds.Mapping.File == "" {
			return fmt.Errorf("data source %q: mapping file is required", ds.Name)
		}
		if ds.Source.EndBlock != nil && *ds.Source.EndBlock < ds.Source.StartBlock {
			return fmt.Errorf("data source %q: end block %d is before start block %d", ds.Name, *ds.Source.EndBlock, ds.Source.StartBlock)
		}

		for j, eh := range ds.Mapping.EventHandlers {
			if eh == nil || eh.Event == "" || eh.Handler == "" {
				return fmt.Errorf("data source %q: event handler #%d needs both event and handler", ds.Name, j)
			}
		}
	}
	return nil
}

func (m *Manifest) DataSource(name string) *DataSource {
	for _, ds := range m.DataSources {
		if ds.Name == name {
			return ds
		}
	}
	return nil
}

// ResolvePath turns a file reference from the manifest into a location
// loadable by a dstore. URLs are returned unchanged.
func (m *Manifest) ResolvePath(file string) string {
	if strings.Contains(file, "://") || filepath.IsAbs(file) || m.Location == "" {
		return file
	}
	return filepath.Join(m.Location, file)
}

// ABIFile returns the file of the ABI the data source source refers to, or
// an empty string if none is declared.
func (d *DataSource) ABIFile() string {
	for _, abi := range d.Mapping.ABIs {
		if abi != nil && abi.Name == d.Source.ABI {
			return abi.File
		}
	}
	return ""
}
