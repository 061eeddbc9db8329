package model

import "fmt"

// BuildSystemType tags report entries with the system of record that
// resolved them.
type BuildSystemType string

const (
	BuildSystemTypePNC  BuildSystemType = "PNC"
	BuildSystemTypeBrew BuildSystemType = "BREW"
)

// LicenseSource classifies where a license fact was found.
type LicenseSource string

const (
	LicenseSourceUnknown       LicenseSource = "UNKNOWN"
	LicenseSourcePom           LicenseSource = "POM"
	LicenseSourcePomXML        LicenseSource = "POM_XML"
	LicenseSourceBundleLicense LicenseSource = "BUNDLE_LICENSE"
	LicenseSourceText          LicenseSource = "TEXT"
)

// ParseLicenseSource maps the engine's source tag onto the report enum.
// An empty or unrecognized tag is an input error, not a silent UNKNOWN.
func ParseLicenseSource(s string) (LicenseSource, error) {
	switch LicenseSource(s) {
	case LicenseSourceUnknown, LicenseSourcePom, LicenseSourcePomXML,
		LicenseSourceBundleLicense, LicenseSourceText:
		return LicenseSource(s), nil
	}
	if s == "" {
		return "", fmt.Errorf("license source cannot be empty")
	}
	return "", fmt.Errorf("unknown license source %q", s)
}

// LicenseInfo is one license fact of a report artifact.
type LicenseInfo struct {
	Name          string        `json:"name,omitempty"`
	SpdxLicenseID string        `json:"spdxLicenseId,omitempty"`
	URL           string        `json:"url,omitempty"`
	Comments      string        `json:"comments,omitempty"`
	Distribution  string        `json:"distribution,omitempty"`
	Source        LicenseSource `json:"source"`
}

// MavenInfo carries maven coordinates of a matched artifact.
type MavenInfo struct {
	GroupID    string `json:"groupId,omitempty"`
	ArtifactID string `json:"artifactId,omitempty"`
	Type       string `json:"type,omitempty"`
	Version    string `json:"version,omitempty"`
	Classifier string `json:"classifier,omitempty"`
}

// NPMInfo carries npm coordinates of a matched artifact.
type NPMInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Artifact is one file of the report, either matched to an upstream
// build or listed under notFoundArtifacts.
type Artifact struct {
	BuildSystemType           BuildSystemType `json:"buildSystemType,omitempty"`
	PncID                     string          `json:"pncId,omitempty"`
	BrewID                    int64           `json:"brewId,omitempty"`
	Filename                  string          `json:"filename"`
	Size                      int64           `json:"size"`
	MD5                       string          `json:"md5,omitempty"`
	SHA1                      string          `json:"sha1,omitempty"`
	SHA256                    string          `json:"sha256,omitempty"`
	BuiltFromSource           bool            `json:"builtFromSource"`
	ArchiveFilenames          []string        `json:"archiveFilenames,omitempty"`
	ArchiveUnmatchedFilenames []string        `json:"archiveUnmatchedFilenames,omitempty"`
	Licenses                  []LicenseInfo   `json:"licenses,omitempty"`
	Maven                     *MavenInfo      `json:"maven,omitempty"`
	NPM                       *NPMInfo        `json:"npm,omitempty"`
}

// Build is one matched upstream build and the artifacts it produced.
type Build struct {
	BuildSystemType BuildSystemType `json:"buildSystemType"`
	PncID           string          `json:"pncId,omitempty"`
	BrewID          int64           `json:"brewId,omitempty"`
	BrewNVR         string          `json:"brewNVR,omitempty"`
	Import          bool            `json:"import"`
	Artifacts       []Artifact      `json:"artifacts"`
}

// FinderResult is the immutable report for a single deliverable URL.
// It is never mutated after creation.
type FinderResult struct {
	ID                string     `json:"id"`
	URL               string     `json:"url"`
	Builds            []Build    `json:"builds"`
	NotFoundArtifacts []Artifact `json:"notFoundArtifacts"`
}
