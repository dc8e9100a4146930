package publish

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	PackageJson = "package.json"
	JsrJson     = "jsr.json"
)

// PackageManifest is the subset of package.json the publish pipeline inspects.
type PackageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private"`
	Exports         json.RawMessage   `json:"exports,omitempty"`
	PublishConfig   *PublishConfig    `json:"publishConfig,omitempty"`
	PublishTargets  []TargetSpec      `json:"publishTargets,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// PublishConfig mirrors npm's single-destination publishConfig block.
type PublishConfig struct {
	Registry   string `json:"registry,omitempty"`
	Access     string `json:"access,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Provenance *bool  `json:"provenance,omitempty"`
	// Directory is the pnpm-style publish directory, relative to the
	// package root.
	Directory string `json:"directory,omitempty"`
}

// TargetSpec is one entry of the extended multi-target publish configuration.
type TargetSpec struct {
	Protocol   string `json:"protocol,omitempty"`
	Registry   string `json:"registry,omitempty"`
	Directory  string `json:"directory,omitempty"`
	Access     string `json:"access,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Provenance *bool  `json:"provenance,omitempty"`
}

// ReadManifest reads and parses the package.json in the given directory.
func ReadManifest(dir string) (*PackageManifest, error) {
	return readManifestFile(filepath.Join(dir, PackageJson))
}

func readManifestFile(path string) (*PackageManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest bytes and normalizes the version the way npm
// does: a leading "=" or "v" character is stripped off and ignored.
func ParseManifest(data []byte) (*PackageManifest, error) {
	manifest := new(PackageManifest)
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, errors.Wrap(err, "invalid package manifest")
	}
	manifest.Version = strings.TrimPrefix(manifest.Version, "v")
	manifest.Version = strings.TrimPrefix(manifest.Version, "=")
	return manifest, nil
}

// Scope returns the "@scope" prefix of the package name, or empty for
// unscoped packages.
func (m *PackageManifest) Scope() string {
	if IsScoped(m.Name) {
		return strings.SplitN(m.Name, "/", 2)[0]
	}
	return ""
}

// IsScoped reports whether a package name carries an "@scope/" prefix.
func IsScoped(name string) bool {
	return strings.HasPrefix(name, "@") && strings.Contains(name, "/")
}
