package publish

import (
	"fmt"
	"strings"

	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/registry"
)

// BuildSummary renders the run result as markdown for the check-run sink.
// Summary generation has no bearing on the pass/fail verdict.
func BuildSummary(result *entities.PublishValidationResult) string {
	var builder strings.Builder
	if result.Success {
		builder.WriteString("## Publish validation passed\n\n")
	} else {
		builder.WriteString("## Publish validation failed\n\n")
	}
	if len(result.Packages) == 0 {
		builder.WriteString("No pending version bumps.\n")
		return builder.String()
	}

	fmt.Fprintf(&builder, "%d of %d targets ready.\n\n", result.ReadyTargets, result.TotalTargets)
	builder.WriteString("| Package | Version | Target | Status | Details |\n")
	builder.WriteString("|---|---|---|---|---|\n")
	for _, pkg := range result.Packages {
		writePackageRows(&builder, pkg)
	}

	stats := result.AggregateStats()
	if stats.FileCount > 0 {
		fmt.Fprintf(&builder, "\n**Totals:** %s packed, %s unpacked, %d files\n",
			formatSize(stats.PackedSize), formatSize(stats.UnpackedSize), stats.FileCount)
	}
	builder.WriteString("\n_Legend: :white_check_mark: ready, :fast_forward: already published, :x: blocked_\n")
	return builder.String()
}

func writePackageRows(builder *strings.Builder, pkg entities.PackagePublishValidation) {
	versions := pkg.OldVersion + " → " + pkg.NewVersion
	if pkg.DiscoveryError != "" {
		fmt.Fprintf(builder, "| %s | %s | — | :x: | %s |\n", pkg.Name, versions, pkg.DiscoveryError)
		return
	}
	if !pkg.HasPublishableTargets() {
		fmt.Fprintf(builder, "| %s | %s | — | :heavy_minus_sign: | no publishable targets |\n", pkg.Name, versions)
		return
	}
	for _, target := range pkg.Targets {
		fmt.Fprintf(builder, "| %s | %s | %s | %s | %s |\n",
			pkg.Name, versions, targetLabel(target.Target), statusEmoji(target), targetDetails(target))
	}
}

func targetLabel(target entities.ResolvedTarget) string {
	if target.Protocol == entities.JsrProtocol {
		return "JSR"
	}
	return registry.DisplayName(registryOrDefault(target.Registry))
}

func statusEmoji(target entities.TargetValidationResult) string {
	switch {
	case target.VersionConflict:
		return ":fast_forward:"
	case target.CanPublish:
		return ":white_check_mark:"
	default:
		return ":x:"
	}
}

func targetDetails(target entities.TargetValidationResult) string {
	var details []string
	if target.VersionConflict {
		existing := target.ExistingVersion
		if existing == "" {
			existing = "current"
		}
		details = append(details, "version "+existing+" already published")
	} else if target.Message != "" {
		details = append(details, target.Message)
	}
	if target.ProvenanceReady {
		details = append(details, "provenance ready")
	}
	if target.Stats != nil {
		details = append(details, fmt.Sprintf("%s, %d files", formatSize(target.Stats.PackedSize), target.Stats.FileCount))
	}
	if len(details) == 0 {
		return "ready"
	}
	return strings.Join(details, "; ")
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
