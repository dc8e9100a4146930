package publish

import (
	"errors"
	"testing"
	"time"

	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(runner *fakeRunner) *Publisher {
	publisher := NewPublisher(runner, &utils.NullLog{})
	publisher.Retry.Sleep = func(time.Duration) {}
	return publisher
}

func validatedResult(targets ...entities.TargetValidationResult) *entities.PublishValidationResult {
	return &entities.PublishValidationResult{
		Success: true,
		Packages: []entities.PackagePublishValidation{
			{Name: "@org/app", OldVersion: "1.0.0", NewVersion: "1.1.0", Targets: targets},
		},
	}
}

func TestPublishAllBlockedWithoutPassingValidation(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)

	err := publisher.PublishAll(&entities.PublishValidationResult{Success: false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation did not pass")
	assert.Empty(t, runner.calls)
}

func TestPublishAllSkipsVersionConflicts(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)
	result := validatedResult(
		entities.TargetValidationResult{
			Target:          entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app"},
			CanPublish:      true,
			VersionConflict: true,
		},
		entities.TargetValidationResult{
			Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Registry: "https://npm.pkg.github.com/", Directory: "/repo/app"},
			CanPublish: true,
		},
	)

	require.NoError(t, publisher.PublishAll(result))
	assert.Equal(t, 1, runner.countCommands("npm publish"))
	assert.Equal(t, 1, runner.countCommands("--registry https://npm.pkg.github.com/"))
}

func TestPublishTargetCommandFlags(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)
	target := entities.ResolvedTarget{
		Protocol:   entities.NpmProtocol,
		Registry:   "https://custom.registry.com/",
		Directory:  "/repo/app/dist",
		Access:     entities.Restricted,
		Tag:        "next",
		Provenance: true,
	}

	require.NoError(t, publisher.publishTarget(target, "@org/app", "1.1.0"))
	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/repo/app/dist", call.dir)
	assert.Equal(t, "npm publish --registry https://custom.registry.com/ --tag next --access restricted --provenance", call.commandLine())
}

func TestPublishJsrCommand(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)
	target := entities.ResolvedTarget{Protocol: entities.JsrProtocol, Directory: "/repo/app"}

	require.NoError(t, publisher.publishTarget(target, "@org/app", "1.1.0"))
	assert.Equal(t, 1, runner.countCommands("jsr publish --allow-dirty"))
}

// Losing a publish race to a concurrent runner ends in the same registry
// state; the conflict is success, not failure.
func TestPublishConcurrentConflictTreatedAsSuccess(t *testing.T) {
	runner := &fakeRunner{handler: func(dir, executable string, args []string) ([]byte, []byte, error) {
		return nil, []byte("npm error You cannot publish over the previously published versions: 1.1.0."), errors.New("exit status 1")
	}}
	publisher := newTestPublisher(runner)
	result := validatedResult(entities.TargetValidationResult{
		Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app"},
		CanPublish: true,
	})

	require.NoError(t, publisher.PublishAll(result))
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	attempts := 0
	runner := &fakeRunner{handler: func(dir, executable string, args []string) ([]byte, []byte, error) {
		attempts++
		if attempts < 3 {
			return nil, nil, errors.New("request failed: ECONNRESET")
		}
		return nil, nil, nil
	}}
	publisher := newTestPublisher(runner)
	result := validatedResult(entities.TargetValidationResult{
		Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app"},
		CanPublish: true,
	})

	require.NoError(t, publisher.PublishAll(result))
	assert.Equal(t, 3, attempts)
}

func TestPublishPermanentFailurePropagates(t *testing.T) {
	runner := &fakeRunner{handler: func(dir, executable string, args []string) ([]byte, []byte, error) {
		return nil, []byte("npm error code E403"), errors.New("exit status 1")
	}}
	publisher := newTestPublisher(runner)
	result := validatedResult(entities.TargetValidationResult{
		Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app"},
		CanPublish: true,
	})

	err := publisher.PublishAll(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed publishing @org/app")
	// Permission failures are never retried.
	assert.Equal(t, 1, runner.countCommands("npm publish"))
}

func TestPublishAttestationFailureIsNotFatal(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)
	attested := 0
	publisher.Attest = func(target entities.ResolvedTarget, name, version string) error {
		attested++
		return errors.New("sigstore unavailable")
	}
	result := validatedResult(entities.TargetValidationResult{
		Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app", Provenance: true},
		CanPublish: true,
	})

	require.NoError(t, publisher.PublishAll(result))
	assert.Equal(t, 1, attested)
}

func TestPublishAttestSkippedForNonProvenanceTargets(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newTestPublisher(runner)
	attested := 0
	publisher.Attest = func(target entities.ResolvedTarget, name, version string) error {
		attested++
		return nil
	}
	result := validatedResult(entities.TargetValidationResult{
		Target:     entities.ResolvedTarget{Protocol: entities.NpmProtocol, Directory: "/repo/app"},
		CanPublish: true,
	})

	require.NoError(t, publisher.PublishAll(result))
	assert.Zero(t, attested)
}
