package sbom

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttestor struct {
	request AttestationRequest
	result  *AttestationResult
	err     error
}

func (f *fakeAttestor) Attest(request AttestationRequest) (*AttestationResult, error) {
	f.request = request
	return f.result, f.err
}

type fakeLinker struct {
	linked []string
	err    error
}

func (f *fakeLinker) Link(attestationID, subjectName string) error {
	f.linked = append(f.linked, attestationID+" "+subjectName)
	return f.err
}

func writeTarball(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "org-app-1.1.0.tgz")
	require.NoError(t, os.WriteFile(path, []byte("tarball-bytes"), 0644))
	return path
}

func TestAttestTarballComputesDigestAndLinks(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{result: &AttestationResult{AttestationID: "att-42"}}
	linker := &fakeLinker{}

	result, err := generator.AttestTarball(writeTarball(t), "@org/app", "1.1.0", nil, attestor, linker, "")
	require.NoError(t, err)
	assert.Equal(t, "att-42", result.AttestationID)

	assert.Equal(t, "pkg:npm/%40org/app@1.1.0", attestor.request.SubjectName)
	assert.Equal(t, ProvenancePredicateType, attestor.request.PredicateType)
	assert.Len(t, attestor.request.SubjectDigest["sha256"], 64)
	assert.Equal(t, []string{"att-42 pkg:npm/%40org/app@1.1.0"}, linker.linked)
}

func TestAttestTarballUsesPrecomputedDigest(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{result: &AttestationResult{}}

	_, err := generator.AttestTarball("/nonexistent.tgz", "left-pad", "1.3.0", nil, attestor, nil, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", attestor.request.SubjectDigest["sha256"])
}

// An attestation without an ID succeeded but cannot be linked; that is not an
// error.
func TestAttestTarballEmptyIDSkipsLinking(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{result: &AttestationResult{TlogID: "tlog-7"}}
	linker := &fakeLinker{}

	result, err := generator.AttestTarball(writeTarball(t), "@org/app", "1.1.0", nil, attestor, linker, "")
	require.NoError(t, err)
	assert.Equal(t, "tlog-7", result.TlogID)
	assert.Empty(t, linker.linked)
}

func TestAttestTarballLinkFailureIsWarning(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{result: &AttestationResult{AttestationID: "att-42"}}
	linker := &fakeLinker{err: errors.New("registry api unavailable")}

	result, err := generator.AttestTarball(writeTarball(t), "@org/app", "1.1.0", nil, attestor, linker, "")
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestAttestTarballAttestorFailurePropagates(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{err: errors.New("sigstore unavailable")}

	_, err := generator.AttestTarball(writeTarball(t), "@org/app", "1.1.0", nil, attestor, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attestation request failed")
}

func TestAttestTarballMissingTarball(t *testing.T) {
	generator := NewGenerator(&scriptedRunner{}, nil)
	attestor := &fakeAttestor{result: &AttestationResult{}}

	_, err := generator.AttestTarball("/nonexistent.tgz", "@org/app", "1.1.0", nil, attestor, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed computing tarball digest")
}
