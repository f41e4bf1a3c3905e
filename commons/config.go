package commons

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
	yaml "gopkg.in/yaml.v2"

	irodsfs_common_utils "github.com/cyverse/irodsfs-common/utils"
)

var (
	instanceID string

	// StorageCacheNameGenerators lists accepted storage cache name generators
	StorageCacheNameGenerators = []string{"md5", "sha1", "sha256", "sha384", "sha512", "blake3"}
)

// getInstanceID returns instance ID
func getInstanceID() string {
	if len(instanceID) == 0 {
		instanceID = xid.New().String()
	}

	return instanceID
}

// GetDefaultLogFilePath returns default log file path
func GetDefaultLogFilePath() string {
	return fmt.Sprintf("%s_%s.log", LogFilePathPrefixDefault, getInstanceID())
}

// GetDefaultStorageCacheRootPath returns default storage cache root path
// the path is stable across runs so cached images survive restarts
func GetDefaultStorageCacheRootPath() string {
	userCacheDir, err := os.UserCacheDir()
	if err != nil || len(userCacheDir) == 0 {
		return StorageCacheRootPathPrefixDefault
	}

	return filepath.Join(userCacheDir, "imageloader")
}

// Config holds the parameters list which can be configured
type Config struct {
	CacheMode          string `envconfig:"IMAGELOADER_CACHE_MODE" yaml:"cache_mode"`
	MemoryCacheSizeMax int64  `envconfig:"IMAGELOADER_MEMORY_CACHE_SIZE_MAX" yaml:"memory_cache_size_max"`

	StorageCacheRootPath string `envconfig:"IMAGELOADER_STORAGE_CACHE_ROOT_PATH" yaml:"storage_cache_root_path"`
	// StorageCacheSizeMax of 0 means unlimited
	StorageCacheSizeMax       int64                         `envconfig:"IMAGELOADER_STORAGE_CACHE_SIZE_MAX" yaml:"storage_cache_size_max"`
	StorageCacheMaxAge        irodsfs_common_utils.Duration `ignored:"true" yaml:"storage_cache_max_age"`
	StorageCacheNameGenerator string                        `envconfig:"IMAGELOADER_STORAGE_CACHE_NAME_GENERATOR" yaml:"storage_cache_name_generator"`

	PackageCacheTimeout irodsfs_common_utils.Duration `ignored:"true" yaml:"package_cache_timeout"`
	PackageCacheCleanup irodsfs_common_utils.Duration `ignored:"true" yaml:"package_cache_cleanup"`

	// Decoders lists extra decoders in registration order, the default decoder is always appended last
	Decoders []string `envconfig:"IMAGELOADER_DECODERS" yaml:"decoders,omitempty"`

	ResourceRootPath      string                        `envconfig:"IMAGELOADER_RESOURCE_ROOT_PATH" yaml:"resource_root_path,omitempty"`
	HTTPTimeout           irodsfs_common_utils.Duration `ignored:"true" yaml:"http_timeout"`
	HTTPMaxRedirects      int                           `envconfig:"IMAGELOADER_HTTP_MAX_REDIRECTS" yaml:"http_max_redirects"`
	HTTPUserAgent         string                        `envconfig:"IMAGELOADER_HTTP_USER_AGENT" yaml:"http_user_agent,omitempty"`
	HTTPReferer           string                        `envconfig:"IMAGELOADER_HTTP_REFERER" yaml:"http_referer,omitempty"`
	HTTPRequestsPerSecond float64                       `envconfig:"IMAGELOADER_HTTP_REQUESTS_PER_SECOND" yaml:"http_requests_per_second,omitempty"`

	AutoPlay           bool `envconfig:"IMAGELOADER_AUTO_PLAY" yaml:"auto_play,omitempty"`
	ReleaseFramePixels bool `envconfig:"IMAGELOADER_RELEASE_FRAME_PIXELS" yaml:"release_frame_pixels,omitempty"`

	LogEnabled bool   `envconfig:"IMAGELOADER_LOG_ENABLED" yaml:"log_enabled"`
	LogPath    string `envconfig:"IMAGELOADER_LOG_PATH" yaml:"log_path,omitempty"`
	Debug      bool   `envconfig:"IMAGELOADER_DEBUG" yaml:"debug,omitempty"`

	Profile                bool `envconfig:"IMAGELOADER_PROFILE" yaml:"profile,omitempty"`
	ProfileServicePort     int  `envconfig:"IMAGELOADER_PROFILE_SERVICE_PORT" yaml:"profile_service_port,omitempty"`
	PrometheusExporterPort int  `envconfig:"IMAGELOADER_PROMETHEUS_EXPORTER_PORT" yaml:"prometheus_exporter_port,omitempty"`

	InstanceID string `ignored:"true" yaml:"instanceid,omitempty"`
}

// NewDefaultConfig creates DefaultConfig
func NewDefaultConfig() *Config {
	return &Config{
		CacheMode:          string(CacheModeDefault),
		MemoryCacheSizeMax: MemoryCacheSizeMaxDefault,

		StorageCacheRootPath:      GetDefaultStorageCacheRootPath(),
		StorageCacheSizeMax:       StorageCacheSizeMaxDefault,
		StorageCacheMaxAge:        irodsfs_common_utils.Duration(StorageCacheMaxAgeDefault),
		StorageCacheNameGenerator: StorageCacheNameGeneratorDefault,

		PackageCacheTimeout: irodsfs_common_utils.Duration(PackageCacheTimeoutDefault),
		PackageCacheCleanup: irodsfs_common_utils.Duration(PackageCacheCleanupDefault),

		Decoders: []string{"gif", "webp"},

		ResourceRootPath:      "",
		HTTPTimeout:           irodsfs_common_utils.Duration(HTTPTimeoutDefault),
		HTTPMaxRedirects:      HTTPMaxRedirectsDefault,
		HTTPUserAgent:         HTTPUserAgentDefault,
		HTTPReferer:           "",
		HTTPRequestsPerSecond: 0,

		AutoPlay:           true,
		ReleaseFramePixels: false,

		LogEnabled: true,
		LogPath:    "",
		Debug:      false,

		Profile:                false,
		ProfileServicePort:     ProfileServicePortDefault,
		PrometheusExporterPort: 0,

		InstanceID: getInstanceID(),
	}
}

// NewConfigFromYAML creates Config from YAML
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	config := NewDefaultConfig()

	err := yaml.Unmarshal(yamlBytes, config)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal YAML: %w", err)
	}

	return config, nil
}

// NewConfigFromENV creates Config from Environmental Variables
func NewConfigFromENV() (*Config, error) {
	config := NewDefaultConfig()

	err := envconfig.Process("", config)
	if err != nil {
		return nil, xerrors.Errorf("failed to read environmental variables: %w", err)
	}

	return config, nil
}

// GetCacheMode returns parsed cache mode
func (config *Config) GetCacheMode() (CacheMode, error) {
	return GetCacheMode(config.CacheMode)
}

// GetLogFilePath returns log file path
func (config *Config) GetLogFilePath() string {
	if config.LogPath == "-" {
		return ""
	}

	return config.LogPath
}

// GetStorageCacheMaxAge returns max age of storage cache entries, 0 means no expiration
func (config *Config) GetStorageCacheMaxAge() time.Duration {
	return time.Duration(config.StorageCacheMaxAge)
}

// GetPackageCacheTimeout returns package cache timeout
func (config *Config) GetPackageCacheTimeout() time.Duration {
	return time.Duration(config.PackageCacheTimeout)
}

// GetPackageCacheCleanup returns package cache cleanup interval
func (config *Config) GetPackageCacheCleanup() time.Duration {
	return time.Duration(config.PackageCacheCleanup)
}

// GetHTTPTimeout returns http request timeout
func (config *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(config.HTTPTimeout)
}

// MakeWorkDirs makes dirs required
func (config *Config) MakeWorkDirs() error {
	mode, err := config.GetCacheMode()
	if err != nil {
		return err
	}

	if mode.UseStorage() && len(config.StorageCacheRootPath) > 0 {
		err := os.MkdirAll(config.StorageCacheRootPath, 0o755)
		if err != nil {
			return xerrors.Errorf("failed to make a storage cache root dir %q: %w", config.StorageCacheRootPath, err)
		}
	}

	return nil
}

// Validate validates configuration
func (config *Config) Validate() error {
	mode, err := config.GetCacheMode()
	if err != nil {
		return err
	}

	if mode.UseMemory() && config.MemoryCacheSizeMax <= 0 {
		return xerrors.Errorf("memory cache size max must be given for cache mode %q", mode)
	}

	if mode.UseStorage() {
		if len(config.StorageCacheRootPath) == 0 {
			return xerrors.Errorf("storage cache root path must be given for cache mode %q", mode)
		}

		if config.StorageCacheSizeMax < 0 {
			return xerrors.Errorf("storage cache size max must not be negative")
		}
	}

	if config.StorageCacheMaxAge < 0 {
		return xerrors.Errorf("storage cache max age must not be negative")
	}

	if len(config.StorageCacheNameGenerator) > 0 {
		known := false
		for _, name := range StorageCacheNameGenerators {
			if name == config.StorageCacheNameGenerator {
				known = true
				break
			}
		}

		if !known {
			return xerrors.Errorf("unknown storage cache name generator %q", config.StorageCacheNameGenerator)
		}
	}

	if config.PackageCacheTimeout <= 0 {
		return xerrors.Errorf("package cache timeout must be given")
	}

	if config.HTTPTimeout <= 0 {
		return xerrors.Errorf("http timeout must be given")
	}

	if config.HTTPMaxRedirects < 0 {
		return xerrors.Errorf("http max redirects must not be negative")
	}

	if config.HTTPRequestsPerSecond < 0 {
		return xerrors.Errorf("http requests per second must not be negative")
	}

	if config.Profile && config.ProfileServicePort <= 0 {
		return xerrors.Errorf("profile service port must be given")
	}

	return nil
}
