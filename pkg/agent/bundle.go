package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	bundleExt     = ".agent"
	bundleMetaExt = ".bundle-meta.xml"
)

var bundleNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// defaultBundleMeta is written for bundles that lack a descriptor. The
// descriptor is opaque text to this SDK; the platform owns its schema.
const defaultBundleMeta = `<?xml version="1.0" encoding="UTF-8"?>
<AiAuthoringBundle xmlns="http://soap.sforce.com/2006/04/metadata">
    <apiVersion>64.0</apiVersion>
</AiAuthoringBundle>
`

// Bundle is a script-defined agent on disk: <name>.agent source next
// to a <name>.bundle-meta.xml descriptor.
type Bundle struct {
	Name     string
	Dir      string
	Source   string
	Metadata string
}

// LoadBundle reads a bundle from dir by name.
func LoadBundle(dir, name string) (*Bundle, error) {
	if !bundleNameRegex.MatchString(name) {
		return nil, fmt.Errorf("invalid bundle name %q", name)
	}

	sourcePath := filepath.Join(dir, name+bundleExt)
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle source %s: %w", sourcePath, err)
	}

	bundle := &Bundle{
		Name:   name,
		Dir:    dir,
		Source: string(source),
	}

	// Descriptor is optional on read; publish writes the default.
	meta, err := os.ReadFile(filepath.Join(dir, name+bundleMetaExt))
	if err == nil {
		bundle.Metadata = string(meta)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read bundle descriptor: %w", err)
	}

	return bundle, nil
}

// FindBundle locates the single .agent file in dir. Errors when dir
// holds zero or more than one bundle.
func FindBundle(dir string) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), bundleExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), bundleExt))
	}

	switch len(names) {
	case 0:
		return nil, fmt.Errorf("no %s file found in %s", bundleExt, dir)
	case 1:
		return LoadBundle(dir, names[0])
	default:
		return nil, fmt.Errorf("multiple %s files found in %s: %v", bundleExt, dir, names)
	}
}

// Write persists the bundle source and descriptor to its directory.
func (b *Bundle) Write() error {
	if !bundleNameRegex.MatchString(b.Name) {
		return fmt.Errorf("invalid bundle name %q", b.Name)
	}

	if err := os.MkdirAll(b.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	if err := os.WriteFile(b.SourcePath(), []byte(b.Source), 0644); err != nil {
		return fmt.Errorf("failed to write bundle source: %w", err)
	}

	meta := b.Metadata
	if meta == "" {
		meta = defaultBundleMeta
	}
	if err := os.WriteFile(filepath.Join(b.Dir, b.Name+bundleMetaExt), []byte(meta), 0644); err != nil {
		return fmt.Errorf("failed to write bundle descriptor: %w", err)
	}

	return nil
}

// SourcePath is the absolute path of the .agent source file.
func (b *Bundle) SourcePath() string {
	return filepath.Join(b.Dir, b.Name+bundleExt)
}

// Reload re-reads the source from disk, picking up external edits.
func (b *Bundle) Reload() error {
	source, err := os.ReadFile(b.SourcePath())
	if err != nil {
		return fmt.Errorf("failed to reload bundle source: %w", err)
	}
	b.Source = string(source)
	return nil
}
