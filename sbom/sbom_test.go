package sbom

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/relvet/relvet/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers each external command from a script keyed by its
// first argument.
type scriptedRunner struct {
	calls   []string
	handler func(dir string, args []string) ([]byte, []byte, error)
}

func (r *scriptedRunner) Run(dir string, timeout time.Duration, executable string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, executable+" "+strings.Join(args, " "))
	if r.handler == nil {
		return nil, nil, nil
	}
	return r.handler(dir, args)
}

func setupPackage(t *testing.T, manifest string, installed bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, publish.PackageJson), []byte(manifest), 0644))
	if installed {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))
	}
	return dir
}

const appManifest = `{
	"name": "@org/app",
	"version": "1.1.0",
	"dependencies": {"left-pad": "^1.3.0"}
}`

const lsTree = `{
	"name": "@org/app",
	"version": "1.1.0",
	"dependencies": {
		"left-pad": {
			"version": "1.3.0",
			"dependencies": {
				"inner-dep": {"version": "0.2.0"}
			}
		},
		"missing-optional": {},
		"unresolved-peer": {"required": "^2.0.0", "missing": true}
	}
}`

func TestGenerateBuildsBomFromDependencyTree(t *testing.T) {
	dir := setupPackage(t, appManifest, true)
	runner := &scriptedRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "ls" {
			return []byte(lsTree), nil, nil
		}
		return nil, nil, nil
	}}
	generator := NewGenerator(runner, nil)

	bom, err := generator.Generate(dir)
	require.NoError(t, err)

	require.NotNil(t, bom.Metadata)
	root := bom.Metadata.Component
	assert.Equal(t, "pkg:npm/%40org/app@1.1.0", root.BOMRef)
	assert.Equal(t, cdx.ComponentTypeApplication, root.Type)

	require.NotNil(t, bom.Components)
	refs := make([]string, 0, len(*bom.Components))
	for _, component := range *bom.Components {
		refs = append(refs, component.BOMRef)
		assert.Equal(t, cdx.ComponentTypeLibrary, component.Type)
	}
	// Optional and unresolved entries are skipped; the rest is sorted.
	assert.Equal(t, []string{"pkg:npm/inner-dep@0.2.0", "pkg:npm/left-pad@1.3.0"}, refs)

	require.NotNil(t, bom.Dependencies)
	edges := map[string][]string{}
	for _, dependency := range *bom.Dependencies {
		edges[dependency.Ref] = *dependency.Dependencies
	}
	assert.Equal(t, []string{"pkg:npm/left-pad@1.3.0"}, edges["pkg:npm/%40org/app@1.1.0"])
	assert.Equal(t, []string{"pkg:npm/inner-dep@0.2.0"}, edges["pkg:npm/left-pad@1.3.0"])
}

// npm ls exits non-zero on peer dependency problems while still emitting a
// usable tree; the tree wins.
func TestGenerateToleratesLsExitCodeWithOutput(t *testing.T) {
	dir := setupPackage(t, appManifest, true)
	runner := &scriptedRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "ls" {
			return []byte(lsTree), []byte("npm error peer dep missing"), assert.AnError
		}
		return nil, nil, nil
	}}
	generator := NewGenerator(runner, nil)

	bom, err := generator.Generate(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, *bom.Components)
}

func TestGenerateInstallsWhenNodeModulesAbsent(t *testing.T) {
	dir := setupPackage(t, appManifest, false)
	runner := &scriptedRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "ls" {
			return []byte(`{}`), nil, nil
		}
		return nil, nil, nil
	}}
	generator := NewGenerator(runner, nil)

	_, err := generator.Generate(dir)
	require.NoError(t, err)
	assert.Contains(t, runner.calls, "npm install --no-audit --no-fund")
}

func TestGenerateSkipsInstallWhenAlreadyInstalled(t *testing.T) {
	dir := setupPackage(t, appManifest, true)
	runner := &scriptedRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "ls" {
			return []byte(`{}`), nil, nil
		}
		return nil, nil, nil
	}}
	generator := NewGenerator(runner, nil)

	_, err := generator.Generate(dir)
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(runner.calls, "\n"), "install")
}

// Workspace sibling references are rewritten to local paths only while the
// install runs; the manifest on disk always ends up byte-identical.
func TestGenerateRewritesWorkspaceDepsDuringInstall(t *testing.T) {
	manifest := `{
	"name": "@org/app",
	"version": "1.1.0",
	"dependencies": {"@org/sibling": "^2.0.0"}
}`
	dir := setupPackage(t, manifest, false)
	manifestPath := filepath.Join(dir, publish.PackageJson)

	var duringInstall map[string]interface{}
	runner := &scriptedRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		if args[0] == "install" {
			data, err := os.ReadFile(manifestPath)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(data, &duringInstall))
		}
		if args[0] == "ls" {
			return []byte(`{}`), nil, nil
		}
		return nil, nil, nil
	}}
	generator := NewGenerator(runner, nil)
	generator.WorkspacePackages = map[string]string{"@org/sibling": "/repo/packages/sibling"}

	_, err := generator.Generate(dir)
	require.NoError(t, err)

	deps := duringInstall["dependencies"].(map[string]interface{})
	assert.Equal(t, "file:/repo/packages/sibling", deps["@org/sibling"])

	restored, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, manifest, string(restored))
}

func TestEnsureIgnoreFileCreatedOnlyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	generator := NewGenerator(&scriptedRunner{}, nil)

	require.NoError(t, generator.ensureIgnoreFile(dir))
	data, err := os.ReadFile(filepath.Join(dir, ignoreFileName))
	require.NoError(t, err)
	assert.Equal(t, "*"+backupSuffix+"\n", string(data))

	// An existing ignore file is left untouched.
	custom := filepath.Join(dir, ignoreFileName)
	require.NoError(t, os.WriteFile(custom, []byte("dist/\n"), 0644))
	require.NoError(t, generator.ensureIgnoreFile(dir))
	data, err = os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "dist/\n", string(data))
}

func TestNpmPackageUrl(t *testing.T) {
	assert.Equal(t, "pkg:npm/%40org/app@1.1.0", npmPackageUrl("@org/app", "1.1.0"))
	assert.Equal(t, "pkg:npm/left-pad@1.3.0", npmPackageUrl("left-pad", "1.3.0"))
}
