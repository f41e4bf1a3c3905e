package source

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// FileSource reads file:// uris and plain local paths
type FileSource struct{}

// NewFileSource creates a FileSource
func NewFileSource() *FileSource {
	return &FileSource{}
}

// GetLocalPath converts a file:// uri or a plain path to a local path
func GetLocalPath(uri string) (string, error) {
	if utils.GetScheme(uri) != utils.SchemeFile {
		return filepath.Clean(uri), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", xerrors.Errorf("failed to parse uri %q: %w", uri, err)
	}

	p := u.Path
	if len(u.Host) > 0 && u.Host != "localhost" {
		// file://relative/path
		p = u.Host + u.Path
	}

	if len(p) == 0 {
		return "", xerrors.Errorf("uri %q has no path", uri)
	}
	return filepath.FromSlash(p), nil
}

func (source *FileSource) Fetch(ctx context.Context, uri string) (*Response, error) {
	logger := log.WithFields(log.Fields{
		"package":  "source",
		"struct":   "FileSource",
		"function": "Fetch",
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	localPath, err := GetLocalPath(uri)
	if err != nil {
		return nil, commons.NewIOError(uri, err)
	}

	logger.Debugf("opening file %q", localPath)

	stat, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, commons.NewNotFoundError(uri)
		}
		return nil, commons.NewIOError(uri, err)
	}

	if stat.IsDir() {
		return nil, commons.NewIOError(uri, xerrors.Errorf("%q is a directory", localPath))
	}

	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, commons.NewNotFoundError(uri)
		}
		return nil, commons.NewIOError(uri, err)
	}

	return &Response{
		Body:          f,
		StatusCode:    200,
		Location:      uri,
		ContentLength: stat.Size(),
	}, nil
}
