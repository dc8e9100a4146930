package cienv

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// GitHub Actions environment variable names
	// Reference: https://docs.github.com/en/actions/learn-github-actions/environment-variables
	GitHubActionsEnvVar         = "GITHUB_ACTIONS"
	GitHubRepositoryEnvVar      = "GITHUB_REPOSITORY"
	GitHubRepositoryOwnerEnvVar = "GITHUB_REPOSITORY_OWNER"
	GitHubWorkflowEnvVar        = "GITHUB_WORKFLOW"
	GitHubRunIDEnvVar           = "GITHUB_RUN_ID"
	GitHubStepSummaryEnvVar     = "GITHUB_STEP_SUMMARY"

	// Set when the workflow job was granted the `id-token: write` permission.
	OidcRequestUrlEnvVar   = "ACTIONS_ID_TOKEN_REQUEST_URL"
	OidcRequestTokenEnvVar = "ACTIONS_ID_TOKEN_REQUEST_TOKEN"
)

// VcsInfo identifies the repository the workflow runs for.
type VcsInfo struct {
	Org  string
	Repo string
}

// IsGitHubActions checks if running in GitHub Actions by verifying multiple environment variables.
// We check for GITHUB_ACTIONS=true plus the presence of GITHUB_WORKFLOW and GITHUB_RUN_ID
// to ensure we're truly in a GitHub Actions environment.
func IsGitHubActions() bool {
	if os.Getenv(GitHubActionsEnvVar) != "true" {
		return false
	}
	// Additional validation: these variables are always set in GitHub Actions
	return os.Getenv(GitHubWorkflowEnvVar) != "" && os.Getenv(GitHubRunIDEnvVar) != ""
}

// HasOidcToken reports whether the current job can mint OIDC identity tokens,
// which is what trusted publishing to npm and JSR requires.
func HasOidcToken() bool {
	return os.Getenv(OidcRequestUrlEnvVar) != "" && os.Getenv(OidcRequestTokenEnvVar) != ""
}

// GetVcsInfo extracts repository information from GitHub Actions environment variables.
// Uses GITHUB_REPOSITORY_OWNER for org and derives repo name from GITHUB_REPOSITORY.
func GetVcsInfo() VcsInfo {
	info := VcsInfo{}

	// GITHUB_REPOSITORY_OWNER contains the owner/org directly
	info.Org = os.Getenv(GitHubRepositoryOwnerEnvVar)

	// GITHUB_REPOSITORY is "owner/repo" - extract just the repo name
	fullRepo := os.Getenv(GitHubRepositoryEnvVar)
	if fullRepo != "" && info.Org != "" {
		prefix := info.Org + "/"
		info.Repo = strings.TrimPrefix(fullRepo, prefix)
	} else if fullRepo != "" {
		// Fallback: if owner is empty, use the full value
		info.Repo = fullRepo
	}

	return info
}

// AddMask emits the workflow command that registers a secret with the GitHub
// Actions log-masking facility. Multi-line secrets are masked line by line,
// since the runner matches masks against single lines only.
func AddMask(w io.Writer, secret string) {
	if secret == "" {
		return
	}
	for _, line := range strings.Split(secret, "\n") {
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "::add-mask::%s\n", line)
	}
}

// StepSummaryPath returns the file GitHub Actions renders as the job summary,
// or empty when not running in a workflow.
func StepSummaryPath() string {
	return os.Getenv(GitHubStepSummaryEnvVar)
}
