package publish

import (
	"os"
	"path/filepath"

	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/registry"
	"github.com/relvet/relvet/utils"
)

// PreValidateTarget inspects the build output directory and manifest of one
// target for structural correctness. Pure inspection: no network calls.
//
// Checks run in order and short-circuit on hard failure. Warnings never
// block; only entries in Errors clear Valid.
func PreValidateTarget(target entities.ResolvedTarget, expectedName, expectedVersion string) entities.PreValidationResult {
	result := entities.PreValidationResult{Valid: true}

	dirExists, err := utils.IsDirExists(target.Directory, false)
	if err != nil || !dirExists {
		result.AddError("target directory does not exist: " + target.Directory)
		return result
	}
	result.DirectoryExists = true

	manifestPath := filepath.Join(target.Directory, PackageJson)
	if target.Protocol == entities.JsrProtocol {
		// A JSR target may carry its manifest in jsr.json instead.
		if exists, _ := utils.IsFileExists(manifestPath, false); !exists {
			manifestPath = filepath.Join(target.Directory, JsrJson)
		}
	}
	if exists, _ := utils.IsFileExists(manifestPath, false); !exists {
		result.AddError("manifest not found at " + manifestPath)
		return result
	}
	result.PackageJsonExists = true

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		result.AddError("failed reading manifest: " + err.Error())
		return result
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		result.AddError("malformed manifest: " + err.Error())
		return result
	}
	result.PackageJsonValid = true

	if target.Protocol == entities.JsrProtocol {
		preValidateJsrManifest(manifest, &result)
	} else {
		preValidateNpmManifest(target, manifest, expectedName, expectedVersion, &result)
	}
	return result
}

func preValidateNpmManifest(target entities.ResolvedTarget, manifest *PackageManifest, expectedName, expectedVersion string, result *entities.PreValidationResult) {
	if manifest.Private {
		// A publish-ready copy of a private source package must have the
		// flag stripped by the build.
		result.AddError("manifest is marked private")
	}
	if manifest.Name == "" {
		result.AddError("manifest has no name")
	}
	if manifest.Version == "" {
		result.AddError("manifest has no version")
	}
	if expectedName != "" && manifest.Name != "" && manifest.Name != expectedName {
		// Rebuilt artifacts may intentionally differ in case or
		// normalization, so a mismatch is diagnosable but not fatal.
		result.AddWarning("manifest name '" + manifest.Name + "' differs from expected '" + expectedName + "'")
	}
	if expectedVersion != "" && manifest.Version != "" && manifest.Version != expectedVersion {
		result.AddWarning("manifest version '" + manifest.Version + "' differs from expected '" + expectedVersion + "'")
	}
	if registry.Classify(registryOrDefault(target.Registry)) == registry.GitHubPackages && manifest.Name != "" && !IsScoped(manifest.Name) {
		result.AddError("GitHub Packages requires a scope-prefixed package name, got '" + manifest.Name + "'")
	}
}

func preValidateJsrManifest(manifest *PackageManifest, result *entities.PreValidationResult) {
	if !IsScoped(manifest.Name) {
		result.AddError("JSR requires a scope-prefixed package name, got '" + manifest.Name + "'")
	}
	if manifest.Version == "" {
		result.AddError("manifest has no version")
	}
	if len(manifest.Exports) == 0 {
		// JSR's module resolution requires an explicit export map.
		result.AddError("manifest declares no exports")
	}
}
