package sbom

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"github.com/relvet/relvet/publish"
	"github.com/relvet/relvet/utils"
	"golang.org/x/exp/maps"
)

const (
	installTimeout = 5 * time.Minute
	lsTimeout      = 2 * time.Minute

	ignoreFileName = ".npmignore"
)

// Generator builds CycloneDX SBOM documents for npm package build outputs.
type Generator struct {
	Runner utils.CmdRunner
	Log    utils.Log
	// WorkspacePackages maps sibling workspace package names to their local
	// directories. Workspace-internal dependency references are rewritten to
	// these paths during installation, so the SBOM tooling can resolve them
	// without requiring a real registry publish of sibling packages.
	WorkspacePackages map[string]string
}

func NewGenerator(runner utils.CmdRunner, log utils.Log) *Generator {
	if log == nil {
		log = &utils.NullLog{}
	}
	return &Generator{Runner: runner, Log: log}
}

// Generate produces a CycloneDX BOM for the package in packageDir, installing
// dependencies first when node_modules is absent.
func (g *Generator) Generate(packageDir string) (*cdx.BOM, error) {
	manifest, err := publish.ReadManifest(packageDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading package manifest")
	}
	if err := g.ensureInstalled(packageDir, manifest); err != nil {
		return nil, err
	}
	stdout, stderr, err := g.Runner.Run(packageDir, lsTimeout, "npm", "ls", "--json", "--all", "--long")
	if err != nil {
		// npm ls exits non-zero on peer dependency problems while still
		// emitting a usable tree.
		if len(stdout) == 0 {
			return nil, errors.Wrap(err, strings.TrimSpace(string(stderr)))
		}
		g.Log.Warn("Encountered some issues while running 'npm ls' command:\n" + strings.TrimSpace(string(stderr)))
	}
	return g.buildBom(manifest, stdout)
}

// ensureInstalled installs dependencies in an isolated fashion: workspace
// sibling references are rewritten to local file paths for the duration of
// the install, then the manifest is restored.
func (g *Generator) ensureInstalled(packageDir string, manifest *publish.PackageManifest) error {
	installed, err := utils.IsDirExists(filepath.Join(packageDir, "node_modules"), false)
	if err != nil || installed {
		return err
	}
	if err := g.ensureIgnoreFile(packageDir); err != nil {
		return err
	}
	install := func() error {
		_, stderr, err := g.Runner.Run(packageDir, installTimeout, "npm", "install", "--no-audit", "--no-fund")
		if err != nil {
			return errors.Wrap(err, strings.TrimSpace(string(stderr)))
		}
		return nil
	}
	if !g.needsRewrite(manifest) {
		return install()
	}
	manifestPath := filepath.Join(packageDir, publish.PackageJson)
	return ScopedRewrite(manifestPath, g.rewriteWorkspaceDeps, install)
}

func (g *Generator) needsRewrite(manifest *publish.PackageManifest) bool {
	for name := range manifest.Dependencies {
		if _, ok := g.WorkspacePackages[name]; ok {
			return true
		}
	}
	for name := range manifest.DevDependencies {
		if _, ok := g.WorkspacePackages[name]; ok {
			return true
		}
	}
	return false
}

// rewriteWorkspaceDeps replaces workspace-internal dependency version ranges
// with local file references.
func (g *Generator) rewriteWorkspaceDeps(data []byte) ([]byte, error) {
	var manifest map[string]interface{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	for _, section := range []string{"dependencies", "devDependencies"} {
		deps, ok := manifest[section].(map[string]interface{})
		if !ok {
			continue
		}
		for name := range deps {
			if dir, workspace := g.WorkspacePackages[name]; workspace {
				deps[name] = "file:" + dir
			}
		}
	}
	return json.MarshalIndent(manifest, "", "  ")
}

// ensureIgnoreFile keeps the manifest backup out of any packed tarball. A
// pre-existing ignore file is never overwritten; it is created only if
// absent and left untouched otherwise.
func (g *Generator) ensureIgnoreFile(packageDir string) error {
	path := filepath.Join(packageDir, ignoreFileName)
	exists, err := utils.IsFileExists(path, false)
	if err != nil || exists {
		return err
	}
	return utils.AppendToFile(path, "*"+backupSuffix+"\n")
}

// buildBom converts the npm ls dependency tree into a CycloneDX document
// rooted at the package itself.
func (g *Generator) buildBom(manifest *publish.PackageManifest, lsOutput []byte) (*cdx.BOM, error) {
	rootRef := npmPackageUrl(manifest.Name, manifest.Version)
	components := map[string]cdx.Component{}
	graph := map[string]map[string]bool{}

	tree, _, _, err := jsonparser.Get(lsOutput, "dependencies")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, errors.Wrap(err, "failed parsing dependency tree")
	}
	if len(tree) > 0 {
		if err := g.collectDependencies(tree, rootRef, components, graph); err != nil {
			return nil, err
		}
	}

	bom := cdx.NewBOM()
	bom.Metadata = &cdx.Metadata{
		Component: &cdx.Component{
			BOMRef:     rootRef,
			Type:       cdx.ComponentTypeApplication,
			Name:       manifest.Name,
			Version:    manifest.Version,
			PackageURL: rootRef,
		},
	}
	componentList := maps.Values(components)
	sort.Slice(componentList, func(i, j int) bool {
		return componentList[i].BOMRef < componentList[j].BOMRef
	})
	bom.Components = &componentList

	var dependencies []cdx.Dependency
	for ref, children := range graph {
		childRefs := maps.Keys(children)
		sort.Strings(childRefs)
		dependencies = append(dependencies, cdx.Dependency{Ref: ref, Dependencies: &childRefs})
	}
	sort.Slice(dependencies, func(i, j int) bool {
		return dependencies[i].Ref < dependencies[j].Ref
	})
	bom.Dependencies = &dependencies
	return bom, nil
}

// collectDependencies walks the npm ls tree recursively and records every
// resolved dependency and its edges.
func (g *Generator) collectDependencies(data []byte, parentRef string, components map[string]cdx.Component, graph map[string]map[string]bool) error {
	return jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		name := string(key)
		if string(value) == "{}" {
			// Skip missing optional dependency.
			g.Log.Debug(fmt.Sprintf("%s is missing. This may be the result of an optional dependency.", name))
			return nil
		}
		depVersion, err := jsonparser.GetString(value, "version")
		if err != nil {
			// Unresolved peer dependencies carry no version; it is okay to
			// skip them.
			g.Log.Debug(fmt.Sprintf("%s has no resolved version, skipping.", name))
			return nil
		}
		ref := npmPackageUrl(name, depVersion)
		if _, exists := components[ref]; !exists {
			components[ref] = cdx.Component{
				BOMRef:     ref,
				Type:       cdx.ComponentTypeLibrary,
				Name:       name,
				Version:    depVersion,
				PackageURL: ref,
			}
		}
		if graph[parentRef] == nil {
			graph[parentRef] = map[string]bool{}
		}
		graph[parentRef][ref] = true

		transitive, _, _, err := jsonparser.Get(value, "dependencies")
		if err != nil && err != jsonparser.KeyPathNotFoundError {
			return err
		}
		if len(transitive) > 0 {
			return g.collectDependencies(transitive, ref, components, graph)
		}
		return nil
	})
}

// npmPackageUrl formats a package-URL for an npm package. The scope's "@" is
// percent-encoded per the purl spec.
func npmPackageUrl(name, version string) string {
	if strings.HasPrefix(name, "@") {
		name = "%40" + strings.TrimPrefix(name, "@")
	}
	return "pkg:npm/" + name + "@" + version
}
