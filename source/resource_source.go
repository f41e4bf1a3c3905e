package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/utils"
	"golang.org/x/xerrors"
)

const resourcePrefix = utils.SchemeResource + "://"

// ResourceSource reads res:// uris from a packaged file tree
type ResourceSource struct {
	fsys fs.FS
}

// NewResourceSource creates a ResourceSource over fsys, e.g. an embed.FS
func NewResourceSource(fsys fs.FS) *ResourceSource {
	return &ResourceSource{
		fsys: fsys,
	}
}

// NewResourceSourceFromDir creates a ResourceSource rooted at a local directory
func NewResourceSourceFromDir(rootPath string) *ResourceSource {
	return NewResourceSource(os.DirFS(rootPath))
}

// GetResourcePath converts a res:// uri to a path inside the resource tree
func GetResourcePath(uri string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(uri), resourcePrefix) {
		return "", xerrors.Errorf("uri %q is not a resource uri", uri)
	}

	p := strings.TrimPrefix(path.Clean("/"+uri[len(resourcePrefix):]), "/")
	if p == "" || !fs.ValidPath(p) {
		return "", xerrors.Errorf("uri %q has invalid resource path", uri)
	}
	return p, nil
}

func (source *ResourceSource) Fetch(ctx context.Context, uri string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := GetResourcePath(uri)
	if err != nil {
		return nil, commons.NewIOError(uri, err)
	}

	f, err := source.fsys.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, commons.NewNotFoundError(uri)
		}
		return nil, commons.NewIOError(uri, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, commons.NewIOError(uri, err)
	}

	if stat.IsDir() {
		f.Close()
		return nil, commons.NewIOError(uri, xerrors.Errorf("resource %q is a directory", p))
	}

	return &Response{
		Body:          f,
		StatusCode:    200,
		Location:      uri,
		ContentLength: stat.Size(),
	}, nil
}
