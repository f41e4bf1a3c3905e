package utils

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"
)

// URI schemes understood by the loader
const (
	SchemeHTTP     string = "http"
	SchemeHTTPS    string = "https"
	SchemeFile     string = "file"
	SchemeResource string = "res"
)

// GetScheme returns lower-cased scheme of the uri, empty for plain paths
func GetScheme(uri string) string {
	// drive letters (C:\...) are not schemes
	if len(uri) >= 2 && uri[1] == ':' {
		return ""
	}

	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsWebURI returns true if the uri is fetched over http or https.
// Only web uris are persisted to the storage tier.
func IsWebURI(uri string) bool {
	scheme := GetScheme(uri)
	return scheme == SchemeHTTP || scheme == SchemeHTTPS
}

// HumanizeBytes formats byte size in IEC units
func HumanizeBytes(size int64) string {
	if size < 0 {
		return fmt.Sprintf("-%s", humanize.IBytes(uint64(-size)))
	}
	return humanize.IBytes(uint64(size))
}

// ParseBytes parses byte size like "512MB", "1 GiB" or a plain number
func ParseBytes(size string) (int64, error) {
	value, err := humanize.ParseBytes(strings.TrimSpace(size))
	if err != nil {
		return 0, xerrors.Errorf("failed to parse size %q: %w", size, err)
	}

	if value > math.MaxInt64 {
		return 0, xerrors.Errorf("size %q is too large", size)
	}
	return int64(value), nil
}
