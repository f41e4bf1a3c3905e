package source

import (
	"context"
	"strings"
	"sync"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/utils"
	"golang.org/x/xerrors"
)

// SchemeSource dispatches fetches to the source registered for the uri scheme.
// Plain paths use the source registered for the file scheme.
type SchemeSource struct {
	sources map[string]ByteSource
	mutex   sync.RWMutex
}

// NewSchemeSource creates an empty SchemeSource
func NewSchemeSource() *SchemeSource {
	return &SchemeSource{
		sources: map[string]ByteSource{},
	}
}

// NewSchemeSourceFromConfig creates a SchemeSource serving file, res, http and https uris
func NewSchemeSourceFromConfig(config *commons.Config) *SchemeSource {
	schemeSource := NewSchemeSource()

	fileSource := NewFileSource()
	schemeSource.Register(utils.SchemeFile, fileSource)

	if len(config.ResourceRootPath) > 0 {
		schemeSource.Register(utils.SchemeResource, NewResourceSourceFromDir(config.ResourceRootPath))
	}

	httpSource := NewHTTPSource(HTTPSourceConfig{
		Timeout:           config.GetHTTPTimeout(),
		MaxRedirects:      config.HTTPMaxRedirects,
		UserAgent:         config.HTTPUserAgent,
		Referer:           config.HTTPReferer,
		RequestsPerSecond: config.HTTPRequestsPerSecond,
	}, nil)
	schemeSource.Register(utils.SchemeHTTP, httpSource)
	schemeSource.Register(utils.SchemeHTTPS, httpSource)

	return schemeSource
}

// Register sets the source of a scheme, replacing any previous one
func (source *SchemeSource) Register(scheme string, byteSource ByteSource) {
	source.mutex.Lock()
	defer source.mutex.Unlock()

	source.sources[strings.ToLower(scheme)] = byteSource
}

// GetSource returns the source serving the uri
func (source *SchemeSource) GetSource(uri string) (ByteSource, error) {
	scheme := utils.GetScheme(uri)
	if len(scheme) == 0 {
		scheme = utils.SchemeFile
	}

	source.mutex.RLock()
	defer source.mutex.RUnlock()

	byteSource, ok := source.sources[scheme]
	if !ok {
		return nil, xerrors.Errorf("unsupported uri scheme %q", scheme)
	}
	return byteSource, nil
}

func (source *SchemeSource) Fetch(ctx context.Context, uri string) (*Response, error) {
	byteSource, err := source.GetSource(uri)
	if err != nil {
		return nil, commons.NewIOError(uri, err)
	}

	return byteSource.Fetch(ctx, uri)
}
