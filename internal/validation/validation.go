package validation

import (
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"gitlet/internal/errors"
)

// RepoDirName is the directory holding all repository metadata.
const RepoDirName = ".gitlet"

// ValidateBranchName rejects names that cannot be used as branch names.
func ValidateBranchName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.InvalidArgument("branch name cannot be empty", name)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return errors.InvalidArgument("branch name cannot contain whitespace", name)
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "-") {
		return errors.InvalidArgument("invalid branch name", name)
	}
	return nil
}

// RelativePath resolves p (absolute, or relative to cwd) against the
// repository root and returns the slash-separated repository-relative path.
func RelativePath(root, cwd, p string) (string, error) {
	if p == "" {
		return "", errors.InvalidArgument("path cannot be empty", p)
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(cwd, p)
	}
	rel, err := filepath.Rel(root, filepath.Clean(abs))
	if err != nil {
		return "", errors.InvalidArgument("path is outside the repository", p)
	}
	return CleanPath(filepath.ToSlash(rel))
}

// CleanPath normalizes an already repository-relative path.
func CleanPath(rel string) (string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	switch {
	case rel == "." || rel == "":
		return "", errors.InvalidArgument("path must name a file", rel)
	case rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel):
		return "", errors.InvalidArgument("path is outside the repository", rel)
	case rel == RepoDirName || strings.HasPrefix(rel, RepoDirName+"/"):
		return "", errors.InvalidArgument("path is inside the repository directory", rel)
	}
	return rel, nil
}
