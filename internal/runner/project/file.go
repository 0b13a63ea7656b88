// Package project models the multi-file virtual project a submission runs
// against, and validates file paths before any backend sees them.
package project

import (
	"path"
	"strings"

	appErr "github.com/Developers-Secrets-Inc/python-secrets-sub001/pkg/errors"
)

const (
	// MaxFileBytes bounds one file's content size.
	MaxFileBytes = 1 << 20
	// MaxFiles bounds how many files one project may carry.
	MaxFiles = 64
)

// allowedExtensions is the approved extension set for project files.
var allowedExtensions = map[string]struct{}{
	".py":   {},
	".txt":  {},
	".json": {},
	".csv":  {},
	".md":   {},
}

// File is one file of a virtual project.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ValidatePath checks a single relative path: no absolute prefix, no
// parent-directory segments, no empty segments, approved extension only.
// It is a pure function and must run before any backend write.
func ValidatePath(p string) error {
	if p == "" {
		return appErr.UnsafePathError(p, "empty")
	}
	if strings.ContainsRune(p, '\x00') {
		return appErr.UnsafePathError(p, "nul_byte")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return appErr.UnsafePathError(p, "absolute")
	}
	// Windows-style drive prefixes are absolute too.
	if len(p) >= 2 && p[1] == ':' {
		return appErr.UnsafePathError(p, "absolute")
	}
	if strings.Contains(p, "\\") {
		return appErr.UnsafePathError(p, "backslash_separator")
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return appErr.UnsafePathError(p, "empty_segment")
		case ".", "..":
			return appErr.UnsafePathError(p, "relative_segment")
		}
	}
	if path.Clean(p) != p {
		return appErr.UnsafePathError(p, "not_clean")
	}
	ext := strings.ToLower(path.Ext(p))
	if _, ok := allowedExtensions[ext]; !ok {
		return appErr.New(appErr.DisallowedExtension).WithDetail("path", p).WithDetail("ext", ext)
	}
	return nil
}

// Validate checks a whole project: every path safe, paths unique, the
// entry point present and a Python file, size limits respected.
func Validate(files []File, entryPoint string) error {
	if len(files) == 0 {
		return appErr.New(appErr.ProjectEmpty)
	}
	if len(files) > MaxFiles {
		return appErr.Newf(appErr.ProjectTooManyFiles, "project has %d files, limit is %d", len(files), MaxFiles)
	}
	if entryPoint == "" {
		return appErr.New(appErr.EntryPointMissing)
	}
	if err := ValidatePath(entryPoint); err != nil {
		return err
	}
	if !strings.HasSuffix(entryPoint, ".py") {
		return appErr.New(appErr.InvalidFormat).WithDetail("entry_point", entryPoint)
	}

	seen := make(map[string]struct{}, len(files))
	entryFound := false
	for _, f := range files {
		if err := ValidatePath(f.Path); err != nil {
			return err
		}
		if len(f.Content) > MaxFileBytes {
			return appErr.Newf(appErr.ProjectFileTooLarge, "file %s exceeds %d bytes", f.Path, MaxFileBytes)
		}
		if _, dup := seen[f.Path]; dup {
			return appErr.New(appErr.DuplicateFilePath).WithDetail("path", f.Path)
		}
		seen[f.Path] = struct{}{}
		if f.Path == entryPoint {
			entryFound = true
		}
	}
	if !entryFound {
		return appErr.New(appErr.EntryPointNotProject).WithDetail("entry_point", entryPoint)
	}
	return nil
}

// Lookup returns the file with the given path, if present.
func Lookup(files []File, p string) (File, bool) {
	for _, f := range files {
		if f.Path == p {
			return f, true
		}
	}
	return File{}, false
}
