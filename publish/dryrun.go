package publish

import (
	"regexp"
	"strings"
	"time"

	"github.com/jfrog/gofrog/version"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/utils"
)

const (
	// Minimum npm client version with --provenance support.
	minNpmVersionForProvenance = "9.5.0"

	dryRunTimeout = 2 * time.Minute
)

var existingVersionPattern = regexp.MustCompile(`previously published versions?:?\s*([0-9A-Za-z.+-]+)`)

// DryRunResult is the classified outcome of one non-destructive publish
// check.
type DryRunResult struct {
	Success         bool
	VersionConflict bool
	ExistingVersion string
	ProvenanceReady bool
	Output          string
	Message         string
}

// DryRunPublisher invokes the registry's own dry-run publish command against
// a target and classifies the result.
type DryRunPublisher struct {
	Runner utils.CmdRunner
	Log    utils.Log

	npmVersion *version.Version
}

func NewDryRunPublisher(runner utils.CmdRunner, log utils.Log) *DryRunPublisher {
	if log == nil {
		log = &utils.NullLog{}
	}
	return &DryRunPublisher{Runner: runner, Log: log}
}

// DryRun performs the publish check for one target. The returned result is
// structured; expected business failures never surface as errors.
func (p *DryRunPublisher) DryRun(target entities.ResolvedTarget, auth *AuthContext) DryRunResult {
	executable, args := p.publishCommand(target)
	stdout, stderr, err := p.Runner.Run(target.Directory, dryRunTimeout, executable, args...)
	combined := strings.TrimSpace(string(stdout) + "\n" + string(stderr))
	if err == nil {
		result := DryRunResult{Success: true, Output: combined}
		if target.Provenance {
			result.ProvenanceReady = p.confirmProvenance(target, auth, combined)
		}
		return result
	}
	return p.classifyFailure(target, combined, err)
}

func (p *DryRunPublisher) publishCommand(target entities.ResolvedTarget) (string, []string) {
	if target.Protocol == entities.JsrProtocol {
		return "jsr", []string{"publish", "--dry-run", "--allow-dirty"}
	}
	args := []string{"publish", "--dry-run"}
	if target.Registry != "" {
		args = append(args, "--registry", target.Registry)
	}
	if target.Tag != "" {
		args = append(args, "--tag", target.Tag)
	}
	if target.Access != "" {
		args = append(args, "--access", string(target.Access))
	}
	if target.Provenance && p.npmSupportsProvenance() {
		args = append(args, "--provenance")
	}
	return "npm", args
}

// classifyFailure maps dry-run failure output to the result, in precedence
// order. A version conflict is not a blocking error and a 404 on a pre-check
// is expected for a first-time publish.
func (p *DryRunPublisher) classifyFailure(target entities.ResolvedTarget, combined string, err error) DryRunResult {
	lower := strings.ToLower(combined + "\n" + err.Error())
	result := DryRunResult{Output: combined}
	switch {
	case strings.Contains(lower, "cannot publish over"):
		result.VersionConflict = true
		result.ExistingVersion = extractExistingVersion(combined)
		result.Message = "version already published"
	case strings.Contains(lower, "e401") || strings.Contains(lower, "auth required") ||
		strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "401 unauthorized"):
		result.Message = "authentication required"
	case strings.Contains(lower, "e404") || strings.Contains(lower, "404 not found"):
		// First publish of a brand-new package or scope is expected to 404
		// on a pre-check.
		result.Success = true
		if target.Provenance {
			result.ProvenanceReady = p.confirmProvenance(target, nil, combined)
		}
		p.Log.Debug("Dry-run returned 404; treating as a first-time publish.")
	case strings.Contains(lower, "e403") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "permission denied"):
		result.Message = "permission denied"
	case strings.Contains(lower, "provenance") || strings.Contains(lower, "sigstore"):
		// The OIDC/Sigstore path is broken, not the package itself.
		result.Message = "provenance generation failed: " + firstNonEmptyLine(combined, err)
	default:
		result.Message = firstNonEmptyLine(combined, err)
	}
	return result
}

// confirmProvenance is strict: true only when provenance was requested and
// the output positively confirms the registry/token combination supports it.
func (p *DryRunPublisher) confirmProvenance(target entities.ResolvedTarget, auth *AuthContext, output string) bool {
	if !target.Provenance || !p.npmSupportsProvenance() {
		return false
	}
	if auth != nil {
		if credential, ok := auth.CredentialFor(target.Registry); ok && !credential.Oidc && credential.Token == "" {
			return false
		}
	}
	lower := strings.ToLower(output)
	return strings.Contains(lower, "provenance")
}

func (p *DryRunPublisher) npmSupportsProvenance() bool {
	return p.resolveNpmVersion().AtLeast(minNpmVersionForProvenance)
}

func (p *DryRunPublisher) resolveNpmVersion() *version.Version {
	if p.npmVersion != nil {
		return p.npmVersion
	}
	stdout, _, err := p.Runner.Run("", time.Minute, "npm", "--version")
	if err != nil {
		p.Log.Warn("Failed resolving the npm client version:", err.Error())
		// Assume a modern client rather than silently dropping provenance.
		p.npmVersion = version.NewVersion(minNpmVersionForProvenance)
		return p.npmVersion
	}
	p.npmVersion = version.NewVersion(strings.TrimSpace(string(stdout)))
	return p.npmVersion
}

func extractExistingVersion(output string) string {
	match := existingVersionPattern.FindStringSubmatch(output)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSuffix(match[1], ".")
}

func firstNonEmptyLine(output string, err error) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	if err != nil {
		return err.Error()
	}
	return "unknown publish failure"
}
