package sbom

import (
	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/pkg/errors"
	"github.com/relvet/relvet/utils"
)

// SLSA provenance predicate, the only predicate type the pipeline requests.
const ProvenancePredicateType = "https://slsa.dev/provenance/v1"

// AttestationRequest is the payload handed to the external signing authority.
type AttestationRequest struct {
	SubjectName   string            `json:"subjectName"`
	SubjectDigest map[string]string `json:"subjectDigest"`
	PredicateType string            `json:"predicateType"`
	Predicate     interface{}       `json:"predicate"`
}

// AttestationResult is what the signing authority returned. An empty
// AttestationID means the attestation succeeded but cannot be linked to a
// URL; it is not a failure.
type AttestationResult struct {
	AttestationID string `json:"attestationID,omitempty"`
	TlogID        string `json:"tlogID,omitempty"`
	Bundle        []byte `json:"bundle,omitempty"`
	Certificate   []byte `json:"certificate,omitempty"`
}

// Attestor is the external signing authority. Cryptographic internals are
// entirely its concern.
type Attestor interface {
	Attest(request AttestationRequest) (*AttestationResult, error)
}

// ArtifactLinker attaches an attestation to a registry's artifact metadata.
// Only GitHub Packages supports this today.
type ArtifactLinker interface {
	Link(attestationID, subjectName string) error
}

// AttestTarball computes the tarball digest and requests a provenance
// attestation keyed to the package-URL-formatted subject. When a linker is
// supplied, the attestation is attached to the registry artifact as well.
//
// Linking failures after a successful attestation are warnings, not hard
// failures: the package can still be attested later.
func (g *Generator) AttestTarball(tarballPath, name, version string, bom *cdx.BOM, attestor Attestor, linker ArtifactLinker, precomputedDigest string) (*AttestationResult, error) {
	digest := precomputedDigest
	if digest == "" {
		checksums, err := utils.GetFileChecksums(tarballPath, utils.SHA256)
		if err != nil {
			return nil, errors.Wrap(err, "failed computing tarball digest")
		}
		digest = checksums[utils.SHA256]
	}
	request := AttestationRequest{
		SubjectName:   npmPackageUrl(name, version),
		SubjectDigest: map[string]string{"sha256": digest},
		PredicateType: ProvenancePredicateType,
		Predicate:     bom,
	}
	result, err := attestor.Attest(request)
	if err != nil {
		return nil, errors.Wrap(err, "attestation request failed")
	}
	if linker == nil {
		return result, nil
	}
	if result.AttestationID == "" {
		g.Log.Debug("Attestation has no ID; skipping registry linking.")
		return result, nil
	}
	if err := linker.Link(result.AttestationID, request.SubjectName); err != nil {
		g.Log.Warn("Failed linking attestation to registry artifact:", err.Error())
	}
	return result, nil
}
