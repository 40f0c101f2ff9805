package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/propane/internal/cachemanager"
	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/manifest"
)

// parser decodes one manifest file.
type parser func(path string, data []byte) ([]manifest.Manifest, error)

var parsers = map[string]parser{
	".yaml": parseYAML,
	".yml":  parseYAML,
	".hcl":  parseHCL,
}

// Extensions returns the manifest file extensions the FS source reads.
func Extensions() []string {
	out := make([]string, 0, len(parsers))
	for ext := range parsers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsManifest reports whether a file name has a manifest extension.
func IsManifest(name string) bool {
	_, ok := parsers[strings.ToLower(stdpath.Ext(name))]
	return ok
}

// ParseCache caches parsed manifests by file identity.
type ParseCache = cachemanager.CacheManager[string, []manifest.Manifest]

// NewParseCache creates an in-memory parse cache.
func NewParseCache(ttl time.Duration) *cachemanager.InMemoryCacheManager[string, []manifest.Manifest] {
	return cachemanager.NewInMemoryCacheManager[string, []manifest.Manifest]("manifests", ttl, cachemanager.DefaultCleanupInterval)
}

// FS reads every manifest file (*.yaml, *.yml, *.hcl) under root of an fs.FS.
// Files are read in lexical path order. A file that cannot be read or parsed
// is reported as *registry.SourceUnreadableError tagged with its path and the
// remaining files are still read.
type FS struct {
	name  string
	fsys  fs.FS
	root  string
	cache ParseCache
	ttl   time.Duration
}

var _ Source = (*FS)(nil)

// FSOption configures an FS source.
type FSOption func(*FS)

// WithRoot limits the walk to a subdirectory of the filesystem.
func WithRoot(root string) FSOption {
	return func(s *FS) { s.root = root }
}

// WithCache reuses parsed manifests across reads while the file's
// modification time and size are unchanged.
func WithCache(cache ParseCache, ttl time.Duration) FSOption {
	return func(s *FS) {
		s.cache = cache
		s.ttl = ttl
	}
}

// NewFS creates a source over fsys. Pass an embed.FS to ship manifests
// inside the binary.
func NewFS(name string, fsys fs.FS, opts ...FSOption) *FS {
	s := &FS{name: name, fsys: fsys, root: "."}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDir creates a source over a directory on disk.
func NewDir(dir string, opts ...FSOption) *FS {
	return NewFS("dir:"+dir, os.DirFS(dir), opts...)
}

// Name returns the source name.
func (s *FS) Name() string { return s.name }

type fileInput struct {
	path string
}

// Read walks the filesystem and parses every manifest file.
func (s *FS) Read(ctx context.Context) ([]manifest.Manifest, error) {
	var paths []string
	err := fs.WalkDir(s.fsys, s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsManifest(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &registry.SourceUnreadableError{Origin: s.name, Err: fmt.Errorf("walk %s: %w", s.root, err)}
	}
	sort.Strings(paths)

	loader := cachemanager.NewReadThroughCache[string, []manifest.Manifest, fileInput](s.cache, s.load, s.ttl)

	var (
		out  []manifest.Manifest
		errs []error
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		manifests, err := loader.Get(ctx, s.cacheKey(path), fileInput{path: path})
		if err != nil {
			log.Warn(log.CatSource, "manifest unreadable", "source", s.name, "path", path, "error", err)
			errs = append(errs, &registry.SourceUnreadableError{Origin: s.location(path), Err: err})
			continue
		}
		out = append(out, manifests...)
	}

	log.Debug(log.CatSource, "source read", "source", s.name, "files", len(paths), "manifests", len(out), "errors", len(errs))
	return out, errors.Join(errs...)
}

// load parses one file and fills defaults the file left empty.
func (s *FS) load(_ context.Context, in fileInput) ([]manifest.Manifest, error) {
	data, err := fs.ReadFile(s.fsys, in.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", in.path, err)
	}

	parse := parsers[strings.ToLower(stdpath.Ext(in.path))]
	manifests, err := parse(in.path, data)
	if err != nil {
		return nil, err
	}

	base := stdpath.Base(in.path)
	defaultOrigin := strings.TrimSuffix(base, stdpath.Ext(base))
	for i := range manifests {
		if manifests[i].Origin == "" {
			manifests[i].Origin = defaultOrigin
		}
		manifests[i].Location = s.location(in.path)
	}
	return manifests, nil
}

// cacheKey identifies a file version. Without stat information the key is
// unique per read, which disables caching for that file.
func (s *FS) cacheKey(path string) string {
	info, err := fs.Stat(s.fsys, path)
	if err != nil {
		return fmt.Sprintf("%s|%s|%d", s.name, path, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s|%s|%d|%d", s.name, path, info.ModTime().UnixNano(), info.Size())
}

func (s *FS) location(path string) string {
	return s.name + ":" + path
}
