package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// Type classifies a registry URL into one of the publish destinations the
// pipeline knows how to authenticate against.
type Type string

const (
	NpmPublic      Type = "npm-public"
	GitHubPackages Type = "github-packages"
	Jsr            Type = "jsr"
	Custom         Type = "custom"
)

const (
	// DefaultNpmRegistry is used when a target declares no registry at all.
	DefaultNpmRegistry = "https://registry.npmjs.org/"

	// GitHubPackagesTokenEnv is the single token variable reserved for
	// GitHub Packages targets.
	GitHubPackagesTokenEnv = "GITHUB_PACKAGES_TOKEN"
)

var knownDomains = map[string]Type{
	"npmjs.org":      NpmPublic,
	"pkg.github.com": GitHubPackages,
	"jsr.io":         Jsr,
}

// Classify determines the registry type of a URL by comparing its hostname
// against known registry domains.
//
// Matching is exact or dot-suffix only. Substring matching on the raw URL is
// forbidden: "http://evil-npmjs.org" and "http://npmjs.org.attacker.com" must
// never classify as the public npm registry. An unparsable URL classifies as
// Custom, so it fails toward "needs explicit auth", never toward a trusted
// OIDC-eligible type.
func Classify(rawUrl string) Type {
	hostname := parseHostname(rawUrl)
	if hostname == "" {
		return Custom
	}
	for domain, registryType := range knownDomains {
		if matchesDomain(hostname, domain) {
			return registryType
		}
	}
	return Custom
}

func matchesDomain(hostname, domain string) bool {
	return hostname == domain || strings.HasSuffix(hostname, "."+domain)
}

func parseHostname(rawUrl string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawUrl))
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// Hostname returns the lowercased hostname of a registry URL, used as the
// deduplication key for auth and reachability checks. Unparsable URLs fall
// back to the trimmed raw string so two identical broken URLs still dedupe.
func Hostname(rawUrl string) string {
	if hostname := parseHostname(rawUrl); hostname != "" {
		return hostname
	}
	return strings.ToLower(strings.TrimSpace(rawUrl))
}

// SameRegistry reports whether two registry URLs point at the same registry.
// Equality is by classified hostname, never by raw string comparison.
func SameRegistry(a, b string) bool {
	return Hostname(a) == Hostname(b)
}

// DisplayName returns a human-readable name for a registry URL.
func DisplayName(rawUrl string) string {
	switch Classify(rawUrl) {
	case NpmPublic:
		return "npm"
	case GitHubPackages:
		return "GitHub Packages"
	case Jsr:
		return "JSR"
	default:
		if hostname := parseHostname(rawUrl); hostname != "" {
			return hostname
		}
		return "custom registry"
	}
}

// PackageViewUrl returns an end-user link to a published package version, or
// empty when the registry has no browsable package pages we know of.
func PackageViewUrl(rawUrl, name, version string) string {
	switch Classify(rawUrl) {
	case NpmPublic:
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	case Jsr:
		return fmt.Sprintf("https://jsr.io/%s@%s", name, version)
	default:
		return ""
	}
}

// TokenEnv derives the environment variable name holding the auth token for a
// custom registry. The derivation is deterministic: the same hostname always
// maps to the same variable name, e.g.
// "https://custom.registry.com/" -> "CUSTOM_REGISTRY_COM_TOKEN".
func TokenEnv(rawUrl string) string {
	hostname := Hostname(rawUrl)
	if hostname == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range strings.ToUpper(hostname) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
		} else {
			builder.WriteRune('_')
		}
	}
	return builder.String() + "_TOKEN"
}
