package publish

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relvet/relvet/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PackageJson), []byte(content), 0644))
}

func TestPreValidateMissingDirectory(t *testing.T) {
	target := entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: filepath.Join(t.TempDir(), "missing")}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.False(t, result.Valid)
	assert.False(t, result.DirectoryExists)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "does not exist")
}

func TestPreValidateMissingManifest(t *testing.T) {
	target := entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: t.TempDir()}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.False(t, result.Valid)
	assert.True(t, result.DirectoryExists)
	assert.False(t, result.PackageJsonExists)
}

func TestPreValidateMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{broken`)
	target := entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: dir}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.False(t, result.Valid)
	assert.True(t, result.PackageJsonExists)
	assert.False(t, result.PackageJsonValid)
}

func TestPreValidatePrivateManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "@org/pkg", "version": "1.0.0", "private": true}`)
	target := entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: dir}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "private")
}

func TestPreValidateNameMismatchIsWarning(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "@org/PKG", "version": "1.0.0"}`)
	target := entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: dir}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.Warnings)
}

func TestPreValidateGitHubPackagesRequiresScope(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "pkg", "version": "1.0.0"}`)
	target := entities.ResolvedTarget{
		Protocol:  entities.NpmProtocol,
		Registry:  "https://npm.pkg.github.com/",
		Directory: dir,
	}
	result := PreValidateTarget(target, "pkg", "1.0.0")
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "scope")
}

func TestPreValidateJsr(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		valid    bool
	}{
		{"complete", `{"name": "@org/pkg", "version": "1.0.0", "exports": "./mod.ts"}`, true},
		{"unscoped name", `{"name": "pkg", "version": "1.0.0", "exports": "./mod.ts"}`, false},
		{"no exports", `{"name": "@org/pkg", "version": "1.0.0"}`, false},
		{"no version", `{"name": "@org/pkg", "exports": "./mod.ts"}`, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, test.manifest)
			target := entities.ResolvedTarget{Protocol: entities.JsrProtocol, Directory: dir}
			result := PreValidateTarget(target, "@org/pkg", "1.0.0")
			assert.Equal(t, test.valid, result.Valid, result.Errors)
		})
	}
}

// A JSR target may carry its manifest in jsr.json when package.json is
// absent.
func TestPreValidateJsrAlternateManifest(t *testing.T) {
	dir := t.TempDir()
	content := `{"name": "@org/pkg", "version": "1.0.0", "exports": "./mod.ts"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, JsrJson), []byte(content), 0644))
	target := entities.ResolvedTarget{Protocol: entities.JsrProtocol, Directory: dir}
	result := PreValidateTarget(target, "@org/pkg", "1.0.0")
	assert.True(t, result.Valid, result.Errors)
}
