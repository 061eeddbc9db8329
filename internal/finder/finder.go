// Package finder turns the raw matching output of the build-resolution
// engine into the report delivered to the caller. The transformation is
// pure: no I/O, no shared state, and the input order of the raw entries
// decides the output order.
package finder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/finchlyline/relsleuth/internal/model"
)

var (
	// ErrMissingFilename marks a not-found archive without a single
	// source filename. Such an archive cannot be traced back to any
	// input content, so the whole aggregation fails rather than
	// reporting an incomplete result.
	ErrMissingFilename = errors.New("filename for not-found artifact is missing")

	// ErrUnhandledArtifactType marks an archive whose declared build
	// type is neither maven, gradle nor npm.
	ErrUnhandledArtifactType = errors.New("unhandled artifact type")

	// ErrUnknownBuildSystem marks a matched entry keyed by a system
	// this report format has no shape for.
	ErrUnknownBuildSystem = errors.New("unknown build system")
)

// Aggregate builds the immutable report for one deliverable URL from
// the engine's raw match set. Malformed input aborts the aggregation so
// the failure ends up in the terminal callback instead of a silently
// incomplete report.
func Aggregate(ctx context.Context, id, url string, matches model.RawMatchSet) (model.FinderResult, error) {
	notFound, err := notFoundArtifacts(ctx, matches)
	if err != nil {
		return model.FinderResult{}, err
	}

	builds, err := foundBuilds(ctx, matches)
	if err != nil {
		return model.FinderResult{}, err
	}

	return model.FinderResult{
		ID:                id,
		URL:               url,
		Builds:            builds,
		NotFoundArtifacts: notFound,
	}, nil
}

// notFoundArtifacts emits one artifact per filename of every archive in
// the not-found bucket. An empty or absent bucket yields an empty list.
func notFoundArtifacts(ctx context.Context, matches model.RawMatchSet) ([]model.Artifact, error) {
	if len(matches) == 0 {
		return []model.Artifact{}, nil
	}

	bucket, ok := matches.NotFound()
	if !ok || len(bucket.Archives) == 0 {
		return []model.Artifact{}, nil
	}

	set := newArtifactSet(len(bucket.Archives))
	for _, archive := range bucket.Archives {
		if len(archive.Filenames) == 0 {
			return nil, fmt.Errorf("%w: archive %q", ErrMissingFilename, archive.Filename)
		}

		for _, filename := range archive.Filenames {
			licenses, err := toLicenses(archive.Licenses)
			if err != nil {
				return nil, err
			}
			a := model.Artifact{
				Filename:                  filename,
				Size:                      archive.Size,
				BuiltFromSource:           false,
				ArchiveFilenames:          []string{filename},
				ArchiveUnmatchedFilenames: archive.UnmatchedFilenames,
				Licenses:                  licenses,
			}
			setChecksums(&a, archive.Checksums)
			set.add(a)
		}
		slog.DebugContext(ctx, "not found artifact", "filenames", archive.Filenames)
	}

	return set.items, nil
}

// foundBuilds emits one build per raw entry outside the not-found
// bucket, one artifact per archive. A set with at most one entry has
// nothing matched to report.
func foundBuilds(ctx context.Context, matches model.RawMatchSet) ([]model.Build, error) {
	if len(matches) <= 1 {
		return []model.Build{}, nil
	}

	builds := make([]model.Build, 0, len(matches)-1)
	for _, e := range matches {
		if e.Key.NotFoundBucket() {
			continue
		}

		set := newArtifactSet(len(e.Build.Archives))
		for _, archive := range e.Build.Archives {
			a, err := matchedArtifact(archive, e.Key.System, e.Build.Import)
			if err != nil {
				return nil, err
			}
			set.add(a)
		}

		b, err := build(e.Key.System, e.Build, set.items)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "found build",
			"system", string(b.BuildSystemType),
			"pnc_id", b.PncID,
			"brew_id", b.BrewID,
			"artifacts", len(b.Artifacts))
		builds = append(builds, b)
	}

	return builds, nil
}

func build(system model.BuildSystem, raw model.RawBuild, artifacts []model.Artifact) (model.Build, error) {
	b := model.Build{
		Import:    raw.Import,
		Artifacts: artifacts,
	}
	switch system {
	case model.BuildSystemPNC:
		b.BuildSystemType = model.BuildSystemTypePNC
		b.PncID = raw.PncID
	case model.BuildSystemKoji:
		b.BuildSystemType = model.BuildSystemTypeBrew
		b.BrewID = raw.BrewID
		b.BrewNVR = raw.BrewNVR
	default:
		return model.Build{}, fmt.Errorf("%w: %q", ErrUnknownBuildSystem, system)
	}
	return b, nil
}

// matchedArtifact reports a matched archive once, carrying its full
// filename list. A matched artifact counts as built from source only
// when the archive itself is and the build is not a re-import.
func matchedArtifact(archive model.RawArchive, system model.BuildSystem, imported bool) (model.Artifact, error) {
	a := model.Artifact{
		Filename:                  archive.Filename,
		Size:                      archive.Size,
		BuiltFromSource:           archive.BuiltFromSource && !imported,
		ArchiveFilenames:          archive.Filenames,
		ArchiveUnmatchedFilenames: archive.UnmatchedFilenames,
	}

	switch archive.BuildType {
	case "maven", "gradle":
		a.Maven = &model.MavenInfo{
			GroupID:    archive.GroupID,
			ArtifactID: archive.ArtifactID,
			Type:       archive.Extension,
			Version:    archive.Version,
			Classifier: archive.Classifier,
		}
	case "npm":
		a.NPM = &model.NPMInfo{
			Name:    archive.ArtifactID,
			Version: archive.Version,
		}
	default:
		return model.Artifact{}, fmt.Errorf(
			"%w: archive %q had type %q", ErrUnhandledArtifactType, archive.ArtifactID, archive.BuildType)
	}

	switch system {
	case model.BuildSystemPNC:
		a.BuildSystemType = model.BuildSystemTypePNC
		a.PncID = strconv.FormatInt(archive.ArchiveID, 10)
	case model.BuildSystemKoji:
		a.BuildSystemType = model.BuildSystemTypeBrew
		a.BrewID = archive.ArchiveID
	default:
		return model.Artifact{}, fmt.Errorf("%w: %q", ErrUnknownBuildSystem, system)
	}

	licenses, err := toLicenses(archive.Licenses)
	if err != nil {
		return model.Artifact{}, err
	}
	a.Licenses = licenses

	setChecksums(&a, archive.Checksums)
	return a, nil
}

func setChecksums(a *model.Artifact, checksums []model.RawChecksum) {
	for _, c := range checksums {
		switch c.Type {
		case model.ChecksumMD5:
			a.MD5 = c.Value
		case model.ChecksumSHA1:
			a.SHA1 = c.Value
		case model.ChecksumSHA256:
			a.SHA256 = c.Value
		}
	}
}

func toLicenses(raw []model.RawLicense) ([]model.LicenseInfo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]model.LicenseInfo, 0, len(raw))
	for _, l := range raw {
		source, err := model.ParseLicenseSource(l.Source)
		if err != nil {
			return nil, err
		}
		out = append(out, model.LicenseInfo{
			Name:          l.Name,
			SpdxLicenseID: l.SpdxLicenseID,
			URL:           l.URL,
			Comments:      l.Comments,
			Distribution:  l.Distribution,
			Source:        source,
		})
	}
	return out, nil
}

// artifactSet keeps first-seen order and drops structurally equal
// duplicates.
type artifactSet struct {
	items []model.Artifact
	seen  map[string]struct{}
}

func newArtifactSet(capacity int) *artifactSet {
	return &artifactSet{
		items: make([]model.Artifact, 0, capacity),
		seen:  make(map[string]struct{}, capacity),
	}
}

func (s *artifactSet) add(a model.Artifact) {
	key, err := json.Marshal(a)
	if err != nil {
		// model.Artifact holds only marshalable fields
		panic(err)
	}
	if _, ok := s.seen[string(key)]; ok {
		return
	}
	s.seen[string(key)] = struct{}{}
	s.items = append(s.items, a)
}
