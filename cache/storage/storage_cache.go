package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cyverse/go-imageloader/clock"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	tempFilePrefix string = ".tmp-"
)

// StorageCache is a persistent cache of raw bytes keyed by string
type StorageCache interface {
	// Save writes data under the key, replacing any previous file. No partial file remains on failure.
	Save(ctx context.Context, key string, data io.Reader) (bool, error)
	// Load reads the file stored under the key
	Load(ctx context.Context, key string) ([]byte, error)
	// Exists returns true if a file is stored under the key
	Exists(ctx context.Context, key string) bool
	// ExistsAndAlive returns true if a file is stored under the key and has not expired
	ExistsAndAlive(ctx context.Context, key string) bool
	// Clear removes all cached files
	Clear(ctx context.Context) error
	// Stats returns bookkeeping numbers
	Stats() Stats
	// Release releases in-memory resources, files are kept
	Release()
}

// Stats contains storage cache bookkeeping
type Stats struct {
	Entries   int
	TotalSize int64
	SizeMax   int64
	Evictions int64
}

// Options contains common storage cache settings
type Options struct {
	// NameGenerator maps keys to file names, sha1 if nil
	NameGenerator NameGenerator
	// MaxAge is the lifetime of a cached file, 0 or less means files never expire
	MaxAge time.Duration
	// Clock is used for aging, real clock if nil
	Clock clock.Clock
}

// NewOSFilesystem creates a folder scoped filesystem on local disk
func NewOSFilesystem(rootPath string) (billy.Filesystem, error) {
	err := os.MkdirAll(rootPath, 0o755)
	if err != nil {
		return nil, xerrors.Errorf("failed to make storage cache dir %q: %w", rootPath, err)
	}

	return osfs.New(rootPath), nil
}

// baseStorageCache implements file level operations shared by storage caches
type baseStorageCache struct {
	filesystem    billy.Filesystem
	nameGenerator NameGenerator
	maxAge        time.Duration
	clock         clock.Clock
}

func newBaseStorageCache(filesystem billy.Filesystem, options Options) (*baseStorageCache, error) {
	if filesystem == nil {
		return nil, xerrors.Errorf("filesystem must be given")
	}

	nameGenerator := options.NameGenerator
	if nameGenerator == nil {
		nameGenerator = NewSHA1NameGenerator()
	}

	c := options.Clock
	if c == nil {
		c = clock.Real()
	}

	return &baseStorageCache{
		filesystem:    filesystem,
		nameGenerator: nameGenerator,
		maxAge:        options.MaxAge,
		clock:         c,
	}, nil
}

func (cache *baseStorageCache) getFileName(key string) string {
	return cache.nameGenerator.GenerateName(key)
}

func (cache *baseStorageCache) stat(name string) (os.FileInfo, bool) {
	info, err := cache.filesystem.Stat(name)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return info, true
}

// isAlive compares file modification time, which is the creation time as saves always replace files
func (cache *baseStorageCache) isAlive(info os.FileInfo) bool {
	if cache.maxAge <= 0 {
		return true
	}

	return cache.clock.Now().Sub(info.ModTime()) < cache.maxAge
}

func (cache *baseStorageCache) readFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := cache.filesystem.Open(name)
	if err != nil {
		return nil, xerrors.Errorf("failed to open cache file %q: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(&contextReader{ctx: ctx, reader: f})
	if err != nil {
		return nil, xerrors.Errorf("failed to read cache file %q: %w", name, err)
	}

	return data, nil
}

// writeTempFile copies data into a new temp file and returns its name and size.
// The temp file is removed on failure.
func (cache *baseStorageCache) writeTempFile(ctx context.Context, data io.Reader) (string, int64, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "baseStorageCache",
		"function": "writeTempFile",
	})

	tempFile, err := cache.filesystem.TempFile(".", tempFilePrefix)
	if err != nil {
		return "", 0, xerrors.Errorf("failed to create temp file: %w", err)
	}

	tempName := tempFile.Name()

	size, copyErr := io.Copy(tempFile, &contextReader{ctx: ctx, reader: data})
	closeErr := tempFile.Close()

	if copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}

	if copyErr != nil {
		removeErr := cache.filesystem.Remove(tempName)
		if removeErr != nil {
			logger.WithError(removeErr).Warnf("failed to remove temp file %q", tempName)
		}

		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, xerrors.Errorf("failed to write temp file %q: %w", tempName, copyErr)
	}

	return tempName, size, nil
}

// commitTempFile moves the temp file over the target name and stamps it with the current time
func (cache *baseStorageCache) commitTempFile(tempName string, name string) error {
	err := cache.filesystem.Rename(tempName, name)
	if err != nil {
		cache.filesystem.Remove(tempName)
		return xerrors.Errorf("failed to rename %q to %q: %w", tempName, name, err)
	}

	if changer, ok := cache.filesystem.(billy.Change); ok {
		now := cache.clock.Now()
		changer.Chtimes(name, now, now)
	}

	return nil
}

func (cache *baseStorageCache) removeFile(name string) error {
	err := cache.filesystem.Remove(name)
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("failed to remove cache file %q: %w", name, err)
	}
	return nil
}

// listFiles returns regular cache files, leftover temp files are removed if removeTemp is set
func (cache *baseStorageCache) listFiles(removeTemp bool) ([]os.FileInfo, error) {
	logger := log.WithFields(log.Fields{
		"package":  "storage",
		"struct":   "baseStorageCache",
		"function": "listFiles",
	})

	entries, err := cache.filesystem.ReadDir(".")
	if err != nil {
		return nil, xerrors.Errorf("failed to list storage cache dir: %w", err)
	}

	files := []os.FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.HasPrefix(entry.Name(), tempFilePrefix) {
			if !removeTemp {
				continue
			}

			logger.Debugf("removing leftover temp file %q", entry.Name())
			cache.removeFile(entry.Name())
			continue
		}

		files = append(files, entry)
	}

	return files, nil
}

func (cache *baseStorageCache) clearFiles() error {
	entries, err := cache.filesystem.ReadDir(".")
	if err != nil {
		return xerrors.Errorf("failed to list storage cache dir: %w", err)
	}

	for _, entry := range entries {
		err := util.RemoveAll(cache.filesystem, entry.Name())
		if err != nil {
			return xerrors.Errorf("failed to remove %q: %w", entry.Name(), err)
		}
	}

	return nil
}

// contextReader stops reading once the context is done
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (reader *contextReader) Read(p []byte) (int, error) {
	if err := reader.ctx.Err(); err != nil {
		return 0, err
	}
	return reader.reader.Read(p)
}
