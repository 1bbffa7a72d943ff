package security

import (
	"path/filepath"
	"strings"

	"github.com/forensiccore/diskvault/internal/coreerr"
	"github.com/spf13/afero"
)

// ValidatePath rejects empty strings, NUL bytes, parent-directory
// components, and paths that escape allowedRoot. It cleans the input
// lexically (filepath.Clean, with a relative input joined onto
// allowedRoot) and requires the result to name a regular file in fs
// residing under allowedRoot. Symbolic links are not resolved, so a link
// under allowedRoot whose target lies elsewhere is accepted. fs is always
// supplied by the caller; tests pass an in-memory fs.
func ValidatePath(fs afero.Fs, userInput, allowedRoot string) (string, error) {
	if userInput == "" {
		return "", coreerr.InvalidPathf("empty path")
	}
	if strings.ContainsRune(userInput, 0) {
		return "", coreerr.InvalidPathf("path contains NUL byte")
	}
	for _, part := range strings.Split(filepath.ToSlash(userInput), "/") {
		if part == ".." {
			return "", coreerr.InvalidPathf("path contains parent-directory component: %q", userInput)
		}
	}

	root, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", coreerr.InvalidPathf("resolving allowed root %q: %v", allowedRoot, err)
	}

	var candidate string
	if filepath.IsAbs(userInput) {
		candidate = userInput
	} else {
		candidate = filepath.Join(root, userInput)
	}
	candidate = filepath.Clean(candidate)

	if !isWithin(candidate, root) {
		return "", coreerr.InvalidPathf("path %q escapes allowed root %q", userInput, allowedRoot)
	}

	info, err := fs.Stat(candidate)
	if err != nil {
		return "", coreerr.NotFoundf("%q: %v", candidate, err)
	}
	if !info.Mode().IsRegular() {
		return "", coreerr.InvalidPathf("%q is not a regular file", candidate)
	}

	return candidate, nil
}

func isWithin(candidate, root string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// SanitizeExtractedFilename strips path separators and control characters
// from a filename pulled out of an on-disk directory record, truncates it
// to 255 bytes, and trims leading/trailing dots and spaces, so that a
// hostile filename can never be used to write outside an extraction
// target directory.
func SanitizeExtractedFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case r < 0x20:
			// drop control characters entirely
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ". ")
	if len(out) > 255 {
		out = out[:255]
	}
	if out == "" {
		out = "_"
	}
	return out
}
