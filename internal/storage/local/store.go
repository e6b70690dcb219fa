// Package local implements the filesystem archive store:
// <base>/<timestamp>-<semver>/<domain>.<kind>.js[.gz] plus the "last" pointer file.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/codec/gzip"
)

// PointerFile is the name of the version pointer inside the base directory.
const PointerFile = "last"

// Config captures the parameters for the local filesystem archive store.
type Config struct {
	// BaseDir is the archive root.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes artifacts to the local filesystem.
type Store struct {
	baseDir string
}

var (
	_ archive.Store        = (*Store)(nil)
	_ archive.PointerStore = (*Store)(nil)
)

// New creates a filesystem-backed archive store, creating BaseDir when needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// BaseDir returns the archive root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// CreateVersion creates the version directory. It reports created=false, without
// error, when the directory already exists so that a concurrent invocation that lost
// the race treats the version as already archived.
func (s *Store) CreateVersion(_ context.Context, v archive.Version) (bool, error) {
	dir, err := s.versionDir(v)
	if err != nil {
		return false, err
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			info, statErr := os.Stat(dir)
			if statErr == nil && info.IsDir() {
				return false, nil
			}
		}
		return false, fmt.Errorf("create version directory %s: %w", v, err)
	}
	return true, nil
}

// RemoveVersion deletes a version directory and its contents.
func (s *Store) RemoveVersion(_ context.Context, v archive.Version) error {
	dir, err := s.versionDir(v)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove version %s: %w", v, err)
	}
	return nil
}

// Write stores content, gzip-compressed when opts.Compress is set. Without
// opts.Force an existing artifact, in either form, is left untouched and
// archive.ErrAlreadyExists is returned.
func (s *Store) Write(_ context.Context, ref archive.Ref, content []byte, opts archive.WriteOptions) error {
	plain, err := s.artifactPath(ref)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(filepath.Dir(plain)); statErr != nil || !info.IsDir() {
		return fmt.Errorf("version %s: %w", ref.Version, archive.ErrNotFound)
	}

	target, other := plain, plain+gzip.Extension
	data := content
	if opts.Compress {
		target, other = other, target
		if data, err = gzip.Compress(content); err != nil {
			return fmt.Errorf("write %s: %w", ref, err)
		}
	}

	if !opts.Force {
		if exists(other) {
			return fmt.Errorf("write %s: %w", ref, archive.ErrAlreadyExists)
		}
		return writeExclusive(target, data, ref)
	}

	if err := writeAtomic(target, data); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	if err := os.Remove(other); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale %s: %w", filepath.Base(other), err)
	}
	return nil
}

// Read returns the artifact content, preferring the uncompressed file and falling
// back to the .gz variant.
func (s *Store) Read(_ context.Context, ref archive.Ref) ([]byte, error) {
	plain, err := s.artifactPath(ref)
	if err != nil {
		return nil, err
	}
	return readArtifact(plain, ref)
}

// ReadAll returns every artifact of a domain within a version.
func (s *Store) ReadAll(_ context.Context, v archive.Version, domain string) (map[archive.Kind][]byte, error) {
	dir, err := s.versionDir(v)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("version %s: %w", v, archive.ErrNotFound)
		}
		return nil, fmt.Errorf("list version %s: %w", v, err)
	}
	out := make(map[archive.Kind][]byte)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, kind, _, ok := archive.ParseFileName(entry.Name())
		if !ok || name != domain {
			continue
		}
		if _, seen := out[kind]; seen {
			continue
		}
		ref := archive.Ref{Version: v, Domain: domain, Kind: kind}
		data, err := readArtifact(filepath.Join(dir, ref.FileName()), ref)
		if err != nil {
			return nil, err
		}
		out[kind] = data
	}
	return out, nil
}

// Remove deletes both forms of an artifact.
func (s *Store) Remove(_ context.Context, ref archive.Ref) error {
	plain, err := s.artifactPath(ref)
	if err != nil {
		return err
	}
	for _, path := range []string{plain, plain + gzip.Extension} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", ref, err)
		}
	}
	return nil
}

// Versions lists the version directories below the base directory.
func (s *Store) Versions(_ context.Context) ([]archive.Version, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	versions := make([]archive.Version, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := archive.ParseVersion(entry.Name())
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	archive.SortVersions(versions)
	return versions, nil
}

// ReadPointer returns the "last" record; its age is the file's modification time.
func (s *Store) ReadPointer(_ context.Context) (archive.Pointer, error) {
	path := filepath.Join(s.baseDir, PointerFile)
	// #nosec G304 -- path is fixed below the archive root.
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return archive.Pointer{}, fmt.Errorf("pointer: %w", archive.ErrNotFound)
		}
		return archive.Pointer{}, fmt.Errorf("read pointer: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return archive.Pointer{}, fmt.Errorf("stat pointer: %w", err)
	}
	v, err := archive.ParseVersion(string(raw))
	if err != nil {
		return archive.Pointer{}, fmt.Errorf("read pointer: %w", err)
	}
	return archive.Pointer{Version: v, Updated: info.ModTime()}, nil
}

// WritePointer atomically replaces the "last" record.
func (s *Store) WritePointer(_ context.Context, v archive.Version) error {
	if v.IsZero() {
		return fmt.Errorf("write pointer: %w", archive.ErrInvalidVersion)
	}
	if err := writeAtomic(filepath.Join(s.baseDir, PointerFile), []byte(v.String())); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	return nil
}

func (s *Store) versionDir(v archive.Version) (string, error) {
	if v.Timestamp <= 0 || v.Semver == "" {
		return "", fmt.Errorf("%w: %q", archive.ErrInvalidVersion, v.String())
	}
	return s.within(v.String())
}

func (s *Store) artifactPath(ref archive.Ref) (string, error) {
	if ref.Domain == "" || ref.Kind == "" || ref.Kind == archive.KindAll {
		return "", fmt.Errorf("invalid artifact reference %q", ref.String())
	}
	dir, err := s.versionDir(ref.Version)
	if err != nil {
		return "", err
	}
	return s.within(filepath.Join(filepath.Base(dir), ref.FileName()))
}

// within joins rel to the base directory and rejects anything escaping it.
func (s *Store) within(rel string) (string, error) {
	full := filepath.Clean(filepath.Join(s.baseDir, rel))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

func readArtifact(plain string, ref archive.Ref) ([]byte, error) {
	// #nosec G304 -- path validated by artifactPath.
	data, err := os.ReadFile(plain)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	// #nosec G304 -- path validated by artifactPath.
	packed, err := os.ReadFile(plain + gzip.Extension)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, archive.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	data, err = gzip.Decompress(packed)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

func writeExclusive(path string, data []byte, ref archive.Ref) error {
	// #nosec G304 -- path validated by artifactPath.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("write %s: %w", ref, archive.ErrAlreadyExists)
		}
		return fmt.Errorf("write %s: %w", ref, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", ref, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
