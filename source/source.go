package source

import (
	"context"
	"io"

	"github.com/cyverse/go-imageloader/commons"
	"golang.org/x/xerrors"
)

// Response is the result of a fetch, the caller must close Body.
// Location is the final uri after redirects and ContentLength is -1 when unknown.
// A 3xx StatusCode means the redirect limit was reached, Location is then the
// unfollowed target for the caller to re-resolve and Body is empty.
type Response struct {
	Body          io.ReadCloser
	StatusCode    int
	Location      string
	ContentLength int64
}

// ByteSource fetches raw bytes of a uri.
// Missing resources are reported as commons.NotFoundError, other failures as commons.IOError.
type ByteSource interface {
	Fetch(ctx context.Context, uri string) (*Response, error)
}

// ReadAll fetches the uri and reads the whole body
func ReadAll(ctx context.Context, source ByteSource, uri string) ([]byte, error) {
	response, err := source.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if IsRedirect(response) {
		return nil, commons.NewIOError(uri, xerrors.Errorf("redirect to %q was not followed", response.Location))
	}

	data, err := io.ReadAll(&contextReader{ctx: ctx, reader: response.Body})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, commons.NewIOError(uri, xerrors.Errorf("failed to read body: %w", err))
	}

	return data, nil
}

// IsRedirect returns true if the response is a redirect that was not followed
func IsRedirect(response *Response) bool {
	return response.StatusCode >= 300 && response.StatusCode <= 399
}

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
