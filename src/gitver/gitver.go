// Package gitver derives version metadata from the git repository a
// build runs in. The result feeds image tag templates and version
// bump tasks.
package gitver

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// VersionInfo holds resolved version metadata from git.
type VersionInfo struct {
	Version      string // full version: "1.2.3", "1.2.3-alpha.1", "0.0.0-dev+abc1234"
	Base         string // semver base without prerelease: "1.2.3"
	Major        string
	Minor        string
	Patch        string
	Prerelease   string // "alpha.1", "rc.1", or "" for stable
	SHA          string // short HEAD hash
	Branch       string
	IsRelease    bool // true if HEAD carries a version tag
	IsPrerelease bool // true if the tag has a prerelease suffix
}

// DetectVersion resolves version info from the repository at rootDir.
// Without any semver tag the version is a dev placeholder carrying
// the HEAD hash; off-tag commits get a dev suffix appended to the
// highest known version.
func DetectVersion(rootDir string) (*VersionInfo, error) {
	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", rootDir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	v := &VersionInfo{SHA: shortHash(head.Hash())}
	if head.Name().IsBranch() {
		v.Branch = head.Name().Short()
	}

	latest, atHead, err := findVersionTags(repo, head.Hash())
	if err != nil {
		return nil, err
	}

	tag := latest
	if atHead != nil {
		tag = atHead
		v.IsRelease = true
	}
	if tag == nil {
		v.Version = fmt.Sprintf("0.0.0-dev+%s", v.SHA)
		v.Base = "0.0.0"
		v.Major, v.Minor, v.Patch = "0", "0", "0"
		return v, nil
	}

	v.Major = fmt.Sprintf("%d", tag.Major())
	v.Minor = fmt.Sprintf("%d", tag.Minor())
	v.Patch = fmt.Sprintf("%d", tag.Patch())
	v.Base = fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Patch)
	v.Version = v.Base
	if tag.Prerelease() != "" {
		v.Prerelease = tag.Prerelease()
		v.IsPrerelease = true
		v.Version = v.Base + "-" + v.Prerelease
	}

	if !v.IsRelease {
		v.Version = fmt.Sprintf("%s-dev+%s", v.Version, v.SHA)
	}
	return v, nil
}

// findVersionTags walks all tags, returning the highest semver tag
// and the semver tag pointing at head, if any. Annotated tags are
// followed to their target commit.
func findVersionTags(repo *git.Repository, head plumbing.Hash) (latest, atHead *semver.Version, err error) {
	tags, err := repo.Tags()
	if err != nil {
		return nil, nil, fmt.Errorf("listing tags: %w", err)
	}
	defer tags.Close()

	err = tags.ForEach(func(ref *plumbing.Reference) error {
		ver, perr := semver.NewVersion(strings.TrimPrefix(ref.Name().Short(), "v"))
		if perr != nil {
			return nil
		}

		target := ref.Hash()
		if obj, terr := repo.TagObject(ref.Hash()); terr == nil {
			target = obj.Target
		}

		if target == head && (atHead == nil || ver.GreaterThan(atHead)) {
			atHead = ver
		}
		if latest == nil || ver.GreaterThan(latest) {
			latest = ver
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return latest, atHead, nil
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:7]
}
