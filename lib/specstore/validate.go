// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import (
	"fmt"

	"github.com/bureau-foundation/wrangler/lib/hash"
	"github.com/bureau-foundation/wrangler/lib/schema/wrangler"
)

// Validate reports non-fatal issues in a structurally valid document.
// It has no side effects.
func Validate(document *Document) []wrangler.ValidationIssue {
	var issues []wrangler.ValidationIssue
	for _, environment := range document.Environments() {
		issues = append(issues, ValidateEnvironment(environment)...)
	}
	return issues
}

// ValidateEnvironment reports the issues of a single environment.
func ValidateEnvironment(environment wrangler.EnvironmentSpec) []wrangler.ValidationIssue {
	var issues []wrangler.ValidationIssue
	add := func(severity wrangler.Severity, entry, format string, args ...any) {
		issues = append(issues, wrangler.ValidationIssue{
			Severity:    severity,
			Environment: environment.ID,
			Entry:       entry,
			Message:     fmt.Sprintf(format, args...),
		})
	}

	if len(environment.Packages) == 0 {
		add(wrangler.SeverityWarning, "", "environment declares no packages")
	}
	if environment.ArchiveFormat != "" && !wrangler.ValidArchiveFormat(environment.ArchiveFormat) {
		add(wrangler.SeverityError, "", "unknown archive format %q (want one of %v)",
			environment.ArchiveFormat, wrangler.ArchiveFormats)
	}

	for _, flavor := range []wrangler.Flavor{wrangler.FlavorSpec, wrangler.FlavorData} {
		for _, item := range environment.Items(flavor) {
			if !item.Curated {
				continue
			}
			if !wrangler.IsExactPin(item.Kind, item.Constraint) {
				add(wrangler.SeverityError, item.Name, "curated %s entry is not exactly pinned: %q",
					item.Kind, item.Constraint)
			}
			if item.Original == nil {
				add(wrangler.SeverityWarning, item.Name,
					"curated without a recorded original constraint; reset will only clear the flag")
			}
		}
	}

	if environment.Curation.Curated && !environment.FullyCurated(wrangler.FlavorSpec) {
		add(wrangler.SeverityError, "", "marked curated but has uncurated spec entries")
	}
	if environment.Curation.Fingerprint != "" {
		if current := Fingerprint(environment); current != environment.Curation.Fingerprint {
			add(wrangler.SeverityError, "",
				"modified since curation (fingerprint %s, content %s); run spec-update to accept",
				shortDigest(environment.Curation.Fingerprint), shortDigest(current))
		}
	}
	return issues
}

// Fingerprint digests the content that curation pins: interpreter,
// channels, and every curatable entry's identity and constraint. The
// curated flags themselves are excluded so that the fingerprint tracks
// what gets installed, not bookkeeping.
func Fingerprint(environment wrangler.EnvironmentSpec) string {
	hasher := hash.NewHasher(hash.SpecDomain)
	hasher.WriteField(environment.ID)
	hasher.WriteField(environment.Python)
	hasher.WriteField(fmt.Sprint(len(environment.Channels)))
	for _, channel := range environment.Channels {
		hasher.WriteField(channel)
	}
	for _, section := range wrangler.Sections {
		items := environment.SectionItems(section)
		hasher.WriteField(section.Key)
		hasher.WriteField(fmt.Sprint(len(items)))
		for _, item := range items {
			hasher.WriteField(item.Name)
			hasher.WriteField(string(item.Kind))
			hasher.WriteField(item.URL)
			hasher.WriteField(item.Constraint)
		}
	}
	return hasher.Sum().String()
}

func shortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
