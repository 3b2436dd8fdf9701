package artifact

import (
	"strings"

	"github.com/r3e-network/deployengine/internal/model"
)

// ParseFile dispatches a single JSON file to the build-info or standard
// artifact parser, following the discovery rule in spec.md §4.1: files
// under a `/build-info/` path segment are attempted as build-info first.
// A file elsewhere that still has the build-info shape is also parsed as
// build-info; only the rest are attempted as a standard artifact. A file that matches
// neither shape is not an error — recognized=false tells the caller to skip
// it silently, since a project tree may contain unrelated JSON.
func ParseFile(path string, data []byte) (contracts []model.Contract, warnings []BuildInfoWarning, recognized bool, err error) {
	if strings.Contains(path, "/build-info/") {
		if LooksLikeBuildInfo(data) {
			contracts, warnings, err = ParseBuildInfo(data, path)
			return contracts, warnings, true, err
		}
	}

	if LooksLikeBuildInfo(data) {
		contracts, warnings, err = ParseBuildInfo(data, path)
		return contracts, warnings, true, err
	}

	if LooksLikeStandardArtifact(data) {
		c, err := ParseStandardArtifact(data, path)
		if err != nil {
			return nil, nil, true, err
		}
		return []model.Contract{c}, nil, true, nil
	}

	return nil, nil, false, nil
}
