package entities

// Protocol is the publish protocol of a resolved target. Npm covers every
// npm-compatible registry: the public registry, GitHub Packages and custom
// registries.
type Protocol string

const (
	NpmProtocol Protocol = "npm"
	JsrProtocol Protocol = "jsr"
)

type Access string

const (
	Public     Access = "public"
	Restricted Access = "restricted"
)

// ResolvedTarget is one (package, protocol, registry) publish destination.
// A single package may resolve to multiple targets.
type ResolvedTarget struct {
	Protocol Protocol `json:"protocol"`
	// Registry is the registry URL. Empty means the protocol's default
	// registry; JSR targets always leave it empty.
	Registry string `json:"registry,omitempty"`
	// Directory is the absolute path of the built package output published
	// to this target. Distinct targets may publish different build outputs
	// of the same package.
	Directory  string `json:"directory"`
	Access     Access `json:"access,omitempty"`
	Provenance bool   `json:"provenance,omitempty"`
	Tag        string `json:"tag,omitempty"`
	// TokenEnv names the environment variable holding the auth token for
	// this registry. Empty means the registry needs no token (OIDC).
	TokenEnv string `json:"tokenEnv,omitempty"`
}

// PreValidationResult is the outcome of static manifest inspection for one
// target. Each aspect is independently observable so failures are diagnosable
// in isolation. Computed once per target per run, never persisted.
type PreValidationResult struct {
	Valid             bool     `json:"valid"`
	DirectoryExists   bool     `json:"directoryExists"`
	PackageJsonExists bool     `json:"packageJsonExists"`
	PackageJsonValid  bool     `json:"packageJsonValid"`
	Errors            []string `json:"errors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (r *PreValidationResult) AddError(message string) {
	r.Errors = append(r.Errors, message)
	r.Valid = false
}

func (r *PreValidationResult) AddWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// PackStats carries informational tarball measurements, aggregated for
// reporting only.
type PackStats struct {
	PackedSize   int64 `json:"packedSize"`
	UnpackedSize int64 `json:"unpackedSize"`
	FileCount    int64 `json:"fileCount"`
}

// TargetValidationResult is the outcome of the dry-run publish for one
// target, building on its PreValidationResult.
type TargetValidationResult struct {
	Target ResolvedTarget `json:"target"`
	// CanPublish is true when the target is ready, or when the only failure
	// is a benign "already published" conflict.
	CanPublish bool `json:"canPublish"`
	// VersionConflict is set when the target version already exists on the
	// registry. This is not an error: idempotent re-runs must not fail when
	// a previous run already published.
	VersionConflict bool   `json:"versionConflict,omitempty"`
	ExistingVersion string `json:"existingVersion,omitempty"`
	// ProvenanceReady is true only when provenance was requested and the
	// dry-run positively confirmed the registry/token combination supports
	// it. Never assumed true by default.
	ProvenanceReady bool       `json:"provenanceReady,omitempty"`
	Stats           *PackStats `json:"stats,omitempty"`
	// Message is a single human-readable summary line, first error wins.
	Message string `json:"message,omitempty"`
}

// PackagePublishValidation aggregates the validation of all targets of one
// package.
type PackagePublishValidation struct {
	Name       string                   `json:"name"`
	OldVersion string                   `json:"oldVersion,omitempty"`
	NewVersion string                   `json:"newVersion,omitempty"`
	Bump       BumpType                 `json:"bump,omitempty"`
	Targets    []TargetValidationResult `json:"targets,omitempty"`
	// DiscoveryError is set when the package's workspace path or manifest
	// could not even be located; target resolution never ran.
	DiscoveryError string `json:"discoveryError,omitempty"`
}

// AllTargetsValid is the package-level release gate: a package is blocked if
// any of its targets cannot publish. A discovery error always blocks.
func (p *PackagePublishValidation) AllTargetsValid() bool {
	if p.DiscoveryError != "" {
		return false
	}
	for _, target := range p.Targets {
		if !target.CanPublish {
			return false
		}
	}
	return true
}

// HasPublishableTargets reports whether the package resolved to at least one
// target. A package with zero targets is vacuously valid but excluded from
// publishing.
func (p *PackagePublishValidation) HasPublishableTargets() bool {
	return len(p.Targets) > 0
}

// UnreachableRegistry describes one registry that failed its reachability
// probe, with the classified reason.
type UnreachableRegistry struct {
	Registry string `json:"registry"`
	Reason   string `json:"reason"`
}

// AuthSetupResult is the outcome of the authentication phase across all
// targets of a run. Auth problems are per-registry, never global: a registry
// listed here does not stop other registries' targets from proceeding.
type AuthSetupResult struct {
	Success               bool                  `json:"success"`
	MissingTokens         []string              `json:"missingTokens,omitempty"`
	UnreachableRegistries []UnreachableRegistry `json:"unreachableRegistries,omitempty"`
}

// PublishValidationResult is the run-level verdict over all packages with
// pending version bumps.
type PublishValidationResult struct {
	Success  bool                       `json:"success"`
	Packages []PackagePublishValidation `json:"packages"`
	Auth     AuthSetupResult            `json:"auth"`
	// Backward-compatible run-level flags, filtered by registry
	// classification.
	NpmReady            bool `json:"npmReady"`
	GitHubPackagesReady bool `json:"githubPackagesReady"`
	ReadyTargets        int  `json:"readyTargets"`
	TotalTargets        int  `json:"totalTargets"`
}

// AggregateStats sums pack statistics over every target that reported them.
func (r *PublishValidationResult) AggregateStats() PackStats {
	var total PackStats
	for _, pkg := range r.Packages {
		for _, target := range pkg.Targets {
			if target.Stats == nil {
				continue
			}
			total.PackedSize += target.Stats.PackedSize
			total.UnpackedSize += target.Stats.UnpackedSize
			total.FileCount += target.Stats.FileCount
		}
	}
	return total
}
