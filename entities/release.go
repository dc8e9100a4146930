package entities

import (
	"github.com/Masterminds/semver/v3"
)

// BumpType classifies a version transition of a pending release.
type BumpType string

const (
	Major      BumpType = "major"
	Minor      BumpType = "minor"
	Patch      BumpType = "patch"
	Prerelease BumpType = "prerelease"
	None       BumpType = "none"
	Unknown    BumpType = "unknown"
)

// Release is one pending version bump reported by the changeset status
// collaborator.
type Release struct {
	Name       string `json:"name"`
	OldVersion string `json:"oldVersion"`
	NewVersion string `json:"newVersion"`
	Type       string `json:"type"`
}

// IsRelease reports whether the entry carries an actual version bump.
func (r *Release) IsRelease() bool {
	return r.Type != string(None)
}

// Bump computes the semantic bump type between the old and new versions.
// Unparsable versions classify as Unknown rather than failing, since the
// changeset tool is the authority on whether a release happens at all.
func (r *Release) Bump() BumpType {
	oldVersion, err := semver.NewVersion(r.OldVersion)
	if err != nil {
		return Unknown
	}
	newVersion, err := semver.NewVersion(r.NewVersion)
	if err != nil {
		return Unknown
	}
	switch {
	case newVersion.Major() != oldVersion.Major():
		return Major
	case newVersion.Minor() != oldVersion.Minor():
		return Minor
	case newVersion.Patch() != oldVersion.Patch():
		return Patch
	case newVersion.Prerelease() != oldVersion.Prerelease():
		return Prerelease
	default:
		return None
	}
}

// Changeset is a single pending changeset file, as reported by the changeset
// status collaborator. The markdown itself is parsed upstream.
type Changeset struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	Releases []Release `json:"releases,omitempty"`
}

// ChangesetStatus is the full answer of the changeset status collaborator for
// one target branch.
type ChangesetStatus struct {
	Releases   []Release   `json:"releases"`
	Changesets []Changeset `json:"changesets"`
}

// PendingReleases filters out entries without a version bump.
func (s *ChangesetStatus) PendingReleases() []Release {
	var pending []Release
	for _, release := range s.Releases {
		if release.IsRelease() {
			pending = append(pending, release)
		}
	}
	return pending
}
