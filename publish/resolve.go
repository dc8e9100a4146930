package publish

import (
	"path/filepath"

	"github.com/relvet/relvet/config"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/registry"
)

// ResolveTargets produces the publish destinations of one package.
//
// A package with no publish configuration at all resolves to zero targets:
// not publishable, not an error. The same holds for a package marked private
// without any override. Each declared target's registry determines its
// protocol default; JSR targets never carry a registry URL.
func ResolveTargets(manifest *PackageManifest, packageDir string, conf *config.Config) []entities.ResolvedTarget {
	if conf == nil {
		conf = &config.Config{}
	}
	if len(manifest.PublishTargets) > 0 {
		var targets []entities.ResolvedTarget
		for _, spec := range manifest.PublishTargets {
			targets = append(targets, resolveSpec(spec, packageDir, conf))
		}
		return targets
	}
	if manifest.Private {
		return nil
	}
	if manifest.PublishConfig == nil {
		return nil
	}
	spec := TargetSpec{
		Registry:   manifest.PublishConfig.Registry,
		Directory:  manifest.PublishConfig.Directory,
		Access:     manifest.PublishConfig.Access,
		Tag:        manifest.PublishConfig.Tag,
		Provenance: manifest.PublishConfig.Provenance,
	}
	return []entities.ResolvedTarget{resolveSpec(spec, packageDir, conf)}
}

func resolveSpec(spec TargetSpec, packageDir string, conf *config.Config) entities.ResolvedTarget {
	target := entities.ResolvedTarget{
		Protocol:  entities.NpmProtocol,
		Registry:  spec.Registry,
		Directory: resolveDirectory(spec.Directory, packageDir),
		Access:    entities.Access(spec.Access),
		Tag:       spec.Tag,
	}
	if target.Access == "" {
		target.Access = entities.Public
	}
	if target.Tag == "" {
		target.Tag = "latest"
	}
	if spec.Protocol == string(entities.JsrProtocol) {
		// JSR always publishes to its own registry.
		target.Protocol = entities.JsrProtocol
		target.Registry = ""
		target.Provenance = provenanceOrDefault(spec.Provenance, conf)
		return target
	}
	switch registry.Classify(registryOrDefault(target.Registry)) {
	case registry.NpmPublic:
		// OIDC unless an explicit token is supplied; the authenticator
		// applies the token-overrides-OIDC rule on top of this.
		target.TokenEnv = conf.NpmTokenEnv
	case registry.GitHubPackages:
		target.TokenEnv = registry.GitHubPackagesTokenEnv
	default:
		target.TokenEnv = registry.TokenEnv(target.Registry)
	}
	target.Provenance = provenanceOrDefault(spec.Provenance, conf)
	return target
}

func registryOrDefault(rawUrl string) string {
	if rawUrl == "" {
		return registry.DefaultNpmRegistry
	}
	return rawUrl
}

func provenanceOrDefault(provenance *bool, conf *config.Config) bool {
	if provenance != nil {
		return *provenance
	}
	return conf.Provenance
}

func resolveDirectory(dir, packageDir string) string {
	if dir == "" {
		return packageDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(packageDir, dir)
}
