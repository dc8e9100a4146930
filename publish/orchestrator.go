package publish

import (
	"github.com/pkg/errors"
	"github.com/relvet/relvet/config"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/registry"
	"github.com/relvet/relvet/utils"
)

// ChangesetStatusProvider reports the pending version bumps of a branch.
// Implemented by the changeset tooling upstream of this pipeline.
type ChangesetStatusProvider interface {
	Status(packageManager, targetBranch string) (*entities.ChangesetStatus, error)
}

// WorkspaceResolver maps a package name to its workspace directory.
// An empty path with a nil error means the package was not found.
type WorkspaceResolver interface {
	PackageDir(name string) (string, error)
}

// Validator drives the full publish validation pipeline: target resolution
// for every changed package, batched authentication, pre-validation and
// dry-run per target, and aggregation into a run verdict.
type Validator struct {
	Changesets ChangesetStatusProvider
	Workspace  WorkspaceResolver
	Auth       *Authenticator
	DryRunner  *DryRunPublisher
	Runner     utils.CmdRunner
	Conf       *config.Config
	Log        utils.Log
	// SbomCheck, when set, validates SBOM generation against the build
	// output of every provenance-enabled npm target. Failures downgrade the
	// target's provenance readiness but never the publish verdict.
	SbomCheck func(directory string) error
	// CollectStats enables informational tarball measurement per target.
	CollectStats bool
}

func NewValidator(changesets ChangesetStatusProvider, workspace WorkspaceResolver, conf *config.Config, runner utils.CmdRunner, log utils.Log) *Validator {
	if log == nil {
		log = &utils.NullLog{}
	}
	if conf == nil {
		conf = &config.Config{}
	}
	return &Validator{
		Changesets: changesets,
		Workspace:  workspace,
		Auth:       NewAuthenticator(conf, runner, utils.NewSecretMasker(), log),
		DryRunner:  NewDryRunPublisher(runner, log),
		Runner:     runner,
		Conf:       conf,
		Log:        log,
	}
}

// Validate computes the publish readiness of every package with a pending
// version bump relative to targetBranch.
//
// Expected conditions (missing tokens, unreachable registries, version
// conflicts, discovery errors) are captured in the result, never returned as
// errors. Only a failure of the changeset status collaborator itself
// propagates.
func (v *Validator) Validate(packageManager, targetBranch string) (*entities.PublishValidationResult, error) {
	status, err := v.Changesets.Status(packageManager, targetBranch)
	if err != nil {
		return nil, errors.Wrap(err, "failed querying changeset status")
	}
	releases := status.PendingReleases()
	result := &entities.PublishValidationResult{Success: true}
	if len(releases) == 0 {
		v.Log.Info("No pending version bumps; nothing to validate.")
		return result, nil
	}

	// Locate every package and resolve its targets before authentication,
	// so each shared registry is authenticated and probed exactly once for
	// the whole run.
	packages := make([]entities.PackagePublishValidation, 0, len(releases))
	resolved := make([][]entities.ResolvedTarget, len(releases))
	var allTargets []entities.ResolvedTarget
	for i, release := range releases {
		validation := entities.PackagePublishValidation{
			Name:       release.Name,
			OldVersion: release.OldVersion,
			NewVersion: release.NewVersion,
			Bump:       release.Bump(),
		}
		targets, discoveryErr := v.discoverTargets(release.Name)
		if discoveryErr != "" {
			// One broken package never aborts the run.
			validation.DiscoveryError = discoveryErr
			v.Log.Warn("Skipping", release.Name+":", discoveryErr)
		} else {
			resolved[i] = targets
			allTargets = append(allTargets, targets...)
		}
		packages = append(packages, validation)
	}

	auth, authResult := v.Auth.Setup(allTargets)
	result.Auth = authResult

	for i := range packages {
		if packages[i].DiscoveryError != "" {
			continue
		}
		for _, target := range resolved[i] {
			targetResult := v.validateTarget(target, packages[i].Name, packages[i].NewVersion, auth)
			packages[i].Targets = append(packages[i].Targets, targetResult)
		}
	}

	result.Packages = packages
	v.aggregate(result)
	return result, nil
}

func (v *Validator) discoverTargets(name string) ([]entities.ResolvedTarget, string) {
	dir, err := v.Workspace.PackageDir(name)
	if err != nil {
		return nil, "failed resolving workspace path: " + err.Error()
	}
	if dir == "" {
		return nil, "package not found in workspace"
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, "failed reading manifest: " + err.Error()
	}
	return ResolveTargets(manifest, dir, v.Conf), ""
}

// validateTarget runs the per-target pipeline: reachability short-circuit,
// token availability, pre-validation, then the dry-run publish.
func (v *Validator) validateTarget(target entities.ResolvedTarget, name, newVersion string, auth *AuthContext) entities.TargetValidationResult {
	result := entities.TargetValidationResult{Target: target}

	// JSR authenticates via OIDC against its own registry; reachability and
	// token checks apply to npm-compatible registries only.
	if target.Protocol != entities.JsrProtocol {
		// A registry known to be down fails the target immediately; running
		// the dry-run would only waste its timeout.
		if reason, unreachable := auth.UnreachableReason(target.Registry); unreachable {
			result.Message = registry.DisplayName(registryOrDefault(target.Registry)) + " is unreachable: " + reason
			return result
		}
		if credential, ok := auth.CredentialFor(target.Registry); ok && !credential.Oidc && credential.Token == "" {
			result.Message = "authentication required: no token in " + credential.TokenEnv
			return result
		}
	}

	preValidation := PreValidateTarget(target, name, newVersion)
	for _, warning := range preValidation.Warnings {
		v.Log.Warn(name + ": " + warning)
	}
	if !preValidation.Valid {
		result.Message = preValidation.Errors[0]
		return result
	}

	dryRun := v.DryRunner.DryRun(target, auth)
	result.VersionConflict = dryRun.VersionConflict
	result.ExistingVersion = dryRun.ExistingVersion
	result.ProvenanceReady = dryRun.ProvenanceReady
	result.Message = dryRun.Message
	// A version conflict is publishable-by-skip: the steady state of an
	// idempotent re-run after a partial previous success.
	result.CanPublish = dryRun.Success || dryRun.VersionConflict

	if result.CanPublish && !result.VersionConflict {
		v.enrichTarget(&result, target)
	}
	return result
}

func (v *Validator) enrichTarget(result *entities.TargetValidationResult, target entities.ResolvedTarget) {
	if v.CollectStats && target.Protocol == entities.NpmProtocol {
		stats, err := CollectPackStats(v.Runner, target.Directory)
		if err != nil {
			v.Log.Warn("Failed collecting pack stats:", err.Error())
		} else {
			result.Stats = stats
		}
	}
	if v.SbomCheck != nil && target.Provenance && target.Protocol == entities.NpmProtocol {
		if err := v.SbomCheck(target.Directory); err != nil {
			v.Log.Warn("SBOM generation check failed:", err.Error())
			result.ProvenanceReady = false
		}
	}
}

func (v *Validator) aggregate(result *entities.PublishValidationResult) {
	result.NpmReady = true
	result.GitHubPackagesReady = true
	for i := range result.Packages {
		pkg := &result.Packages[i]
		if !pkg.AllTargetsValid() {
			result.Success = false
		}
		for _, target := range pkg.Targets {
			result.TotalTargets++
			if target.CanPublish {
				result.ReadyTargets++
			}
			if target.Target.Protocol != entities.NpmProtocol {
				continue
			}
			switch registry.Classify(registryOrDefault(target.Target.Registry)) {
			case registry.NpmPublic:
				if !target.CanPublish {
					result.NpmReady = false
				}
			case registry.GitHubPackages:
				if !target.CanPublish {
					result.GitHubPackagesReady = false
				}
			}
		}
	}
}
