package publish

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/utils"
)

const publishTimeout = 5 * time.Minute

// Publisher runs the real publish phase after a successful validation.
// Attestation hooks are injected so this package stays independent of the
// SBOM generator.
type Publisher struct {
	Runner utils.CmdRunner
	Log    utils.Log
	Retry  *utils.RetryPolicy
	// Attest builds the SBOM, digests the tarball and requests a provenance
	// attestation for one published target. Failures are warnings: the
	// package may still be attested later.
	Attest func(target entities.ResolvedTarget, name, version string) error
}

func NewPublisher(runner utils.CmdRunner, log utils.Log) *Publisher {
	if log == nil {
		log = &utils.NullLog{}
	}
	return &Publisher{
		Runner: runner,
		Log:    log,
		Retry:  utils.NewRetryPolicy(3, 2*time.Second, 30*time.Second, log),
	}
}

// PublishAll publishes every validated package target. Targets that reported
// a version conflict are skipped: a previous run already published them.
// The run is blocked entirely when validation did not succeed. Credentials
// were already materialized into the npm credential file during the
// authentication phase of validation.
func (p *Publisher) PublishAll(validation *entities.PublishValidationResult) error {
	if !validation.Success {
		return errors.New("publish blocked: validation did not pass")
	}
	for _, pkg := range validation.Packages {
		if !pkg.HasPublishableTargets() {
			continue
		}
		for _, target := range pkg.Targets {
			if target.VersionConflict {
				p.Log.Info("Skipping", pkg.Name, "on", targetLabel(target.Target)+": version already published.")
				continue
			}
			if err := p.publishTarget(target.Target, pkg.Name, pkg.NewVersion); err != nil {
				return errors.Wrapf(err, "failed publishing %s to %s", pkg.Name, targetLabel(target.Target))
			}
		}
	}
	return nil
}

func (p *Publisher) publishTarget(target entities.ResolvedTarget, name, version string) error {
	executable, args := publishCommandFor(target)
	operation := func() error {
		_, stderr, err := p.Runner.Run(target.Directory, publishTimeout, executable, args...)
		if err != nil {
			combined := strings.ToLower(string(stderr) + "\n" + err.Error())
			if strings.Contains(combined, "cannot publish over") {
				// Lost a race with another publisher; same end state.
				p.Log.Warn(name, "was published concurrently; treating as success.")
				return nil
			}
			return errors.Wrap(err, strings.TrimSpace(string(stderr)))
		}
		return nil
	}
	if err := p.Retry.Do(operation); err != nil {
		return err
	}
	p.Log.Info("Published", name+"@"+version, "to", targetLabel(target))
	if p.Attest != nil && target.Provenance && target.Protocol == entities.NpmProtocol {
		if err := p.Attest(target, name, version); err != nil {
			// Attestation is best-effort enrichment, not a publish gate.
			p.Log.Warn("Attestation failed for", name+"@"+version+":", err.Error())
		}
	}
	return nil
}

func publishCommandFor(target entities.ResolvedTarget) (string, []string) {
	if target.Protocol == entities.JsrProtocol {
		return "jsr", []string{"publish", "--allow-dirty"}
	}
	args := []string{"publish"}
	if target.Registry != "" {
		args = append(args, "--registry", target.Registry)
	}
	if target.Tag != "" {
		args = append(args, "--tag", target.Tag)
	}
	if target.Access != "" {
		args = append(args, "--access", string(target.Access))
	}
	if target.Provenance {
		args = append(args, "--provenance")
	}
	return "npm", args
}
