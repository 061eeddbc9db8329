package model

// Raw matching output of the external build-resolution engine. The
// shapes mirror what the engine reports for koji-style queries: builds
// keyed by (build system, numeric id), each carrying the local archives
// that matched it. The reserved key with id 0 collects archives that
// matched nothing.

// BuildSystem identifies the upstream system of record a raw build
// came from.
type BuildSystem string

const (
	BuildSystemNone BuildSystem = "none" // reserved, not-found bucket only
	BuildSystemPNC  BuildSystem = "pnc"
	BuildSystemKoji BuildSystem = "koji"
)

// RawBuildKey is the composite key of one entry of a RawMatchSet.
type RawBuildKey struct {
	System BuildSystem `json:"system"`
	ID     int64       `json:"id"`
}

// NotFoundBucket reports whether the key is the reserved grouping for
// archives without an upstream match. Only the numeric id matters; the
// engine writes the bucket with whatever system kind it queried last.
func (k RawBuildKey) NotFoundBucket() bool {
	return k.ID == 0
}

// RawEntry is one build of a RawMatchSet together with its key.
type RawEntry struct {
	Key   RawBuildKey `json:"key"`
	Build RawBuild    `json:"build"`
}

// RawMatchSet is the ordered matching output for a single deliverable
// URL. Order is the engine's iteration order and is preserved all the
// way into the report.
type RawMatchSet []RawEntry

// NotFound returns the not-found bucket build, or false when the set
// has none.
func (m RawMatchSet) NotFound() (RawBuild, bool) {
	for _, e := range m {
		if e.Key.NotFoundBucket() {
			return e.Build, true
		}
	}
	return RawBuild{}, false
}

// RawBuild is the engine's record of one upstream build.
type RawBuild struct {
	PncID    string       `json:"pncId,omitempty"`
	BrewID   int64        `json:"brewId,omitempty"`
	BrewNVR  string       `json:"brewNVR,omitempty"`
	Import   bool         `json:"import"`
	Archives []RawArchive `json:"archives"`
}

// ChecksumType enumerates the digests the engine computes.
type ChecksumType string

const (
	ChecksumMD5    ChecksumType = "md5"
	ChecksumSHA1   ChecksumType = "sha1"
	ChecksumSHA256 ChecksumType = "sha256"
)

// RawChecksum is a single digest of a local archive.
type RawChecksum struct {
	Type  ChecksumType `json:"type"`
	Value string       `json:"value"`
}

// RawArchive is one local archive inside a raw build. Content-identical
// files collapse onto one archive carrying every filename.
type RawArchive struct {
	Filename           string        `json:"filename"`
	Size               int64         `json:"size"`
	ArchiveID          int64         `json:"archiveId"`
	BuildType          string        `json:"buildType"` // maven | gradle | npm
	GroupID            string        `json:"groupId,omitempty"`
	ArtifactID         string        `json:"artifactId,omitempty"`
	Version            string        `json:"version,omitempty"`
	Classifier         string        `json:"classifier,omitempty"`
	Extension          string        `json:"extension,omitempty"`
	Checksums          []RawChecksum `json:"checksums,omitempty"`
	BuiltFromSource    bool          `json:"builtFromSource"`
	Filenames          []string      `json:"filenames,omitempty"`
	UnmatchedFilenames []string      `json:"unmatchedFilenames,omitempty"`
	Licenses           []RawLicense  `json:"licenses,omitempty"`
}

// RawLicense is a license fact the engine attached to an archive.
type RawLicense struct {
	Name          string `json:"name,omitempty"`
	SpdxLicenseID string `json:"spdxLicenseId,omitempty"`
	URL           string `json:"url,omitempty"`
	Comments      string `json:"comments,omitempty"`
	Distribution  string `json:"distribution,omitempty"`
	Source        string `json:"source"`
}
