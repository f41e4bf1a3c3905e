package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/utils"
	irodsfs_common_utils "github.com/cyverse/irodsfs-common/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RunOptions are per-invocation settings that are not part of commons.Config
type RunOptions struct {
	PlayDuration time.Duration
	OutputDir    string
}

func SetCommonFlags(command *cobra.Command) {
	command.Flags().BoolP("version", "v", false, "Print version")
	command.Flags().BoolP("help", "h", false, "Print help")
	command.Flags().BoolP("debug", "d", false, "Enable debug mode")
	command.Flags().BoolP("profile", "", false, "Enable profiling")

	command.Flags().StringP("config", "", "", "Set config file (yaml)")
	command.Flags().StringP("cache_mode", "", "", "Set cache mode (none, memory, storage, memory_and_storage)")
	command.Flags().StringP("memory_cache_size_max", "", "", "Set memory cache max size (e.g. 512MB)")
	command.Flags().StringP("storage_cache_size_max", "", "", "Set storage cache max size (e.g. 2GB, 0 for unlimited)")
	command.Flags().StringP("storage_cache_root", "", "", "Set storage cache root path")
	command.Flags().StringP("storage_cache_max_age", "", "", "Set storage cache max age (e.g. 168h, 0 for no expiration)")
	command.Flags().StringP("storage_cache_name_generator", "", "", fmt.Sprintf("Set storage cache file name generator (%s)", strings.Join(commons.StorageCacheNameGenerators, ", ")))
	command.Flags().StringSliceP("decoders", "", nil, "Set decoders in registration order (gif, webp)")
	command.Flags().StringP("resource_root", "", "", "Set root path of res:// resources")
	command.Flags().StringP("user_agent", "", "", "Set HTTP user agent")
	command.Flags().StringP("referer", "", "", "Set HTTP referer")
	command.Flags().BoolP("no_auto_play", "", false, "Do not start animations after loading")

	command.Flags().DurationP("play", "", 0, "Keep animations playing for the duration before exiting")
	command.Flags().StringP("output", "o", "", "Write presentable surfaces as PNG files to the directory")

	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port")
	command.Flags().StringP("log", "", "", "Set log file path")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}
	return value
}

func getStringFlag(command *cobra.Command, name string) string {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return ""
	}
	return flag.Value.String()
}

func ProcessCommonFlags(command *cobra.Command) (*commons.Config, *RunOptions, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := getBoolFlag(command, "debug")
	profile := getBoolFlag(command, "profile")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "help") {
		PrintHelp(command)
		return nil, nil, nil, false, nil // stop here
	}

	if getBoolFlag(command, "version") {
		PrintVersion(command)
		return nil, nil, nil, false, nil // stop here
	}

	var config *commons.Config

	configPath := getStringFlag(command, "config")
	if len(configPath) > 0 {
		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, nil, false, err // stop here
		}

		yamlConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, nil, false, err // stop here
		}

		config = yamlConfig
	} else {
		envConfig, err := commons.NewConfigFromENV()
		if err != nil {
			logger.Error(err)
			return nil, nil, nil, false, err // stop here
		}

		config = envConfig
	}

	// prioritize command-line flag over config files
	if debug {
		config.Debug = true
	}

	if profile {
		config.Profile = true
	}

	if logPath := getStringFlag(command, "log"); len(logPath) > 0 {
		config.LogPath = logPath
	}

	err := applyConfigFlags(command, config)
	if err != nil {
		logger.Error(err)
		return nil, nil, nil, false, err // stop here
	}

	err = config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, nil, nil, false, err // stop here
	}

	if config.Debug {
		log.SetLevel(log.DebugLevel)
	} else if !config.LogEnabled {
		log.SetLevel(log.WarnLevel)
	}

	var logWriter io.WriteCloser
	logFilePath := config.GetLogFilePath()
	if len(logFilePath) == 0 {
		log.SetOutput(os.Stderr)
	} else {
		logWriter = getLogWriter(logFilePath)

		// use multi output - to output to file and stderr
		mw := io.MultiWriter(os.Stderr, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %s", logFilePath)
	}

	runOptions := &RunOptions{
		OutputDir: getStringFlag(command, "output"),
	}

	playFlag := command.Flags().Lookup("play")
	if playFlag != nil {
		playDuration, err := time.ParseDuration(playFlag.Value.String())
		if err != nil {
			logger.WithError(err).Errorf("failed to convert input to duration")
			return nil, nil, logWriter, false, err // stop here
		}

		runOptions.PlayDuration = playDuration
	}

	return config, runOptions, logWriter, true, nil // continue
}

func applyConfigFlags(command *cobra.Command, config *commons.Config) error {
	if cacheMode := getStringFlag(command, "cache_mode"); len(cacheMode) > 0 {
		mode, err := commons.GetCacheMode(cacheMode)
		if err != nil {
			return err
		}
		config.CacheMode = string(mode)
	}

	if memoryCacheSizeMax := getStringFlag(command, "memory_cache_size_max"); len(memoryCacheSizeMax) > 0 {
		size, err := utils.ParseBytes(memoryCacheSizeMax)
		if err != nil {
			return err
		}
		config.MemoryCacheSizeMax = size
	}

	if storageCacheSizeMax := getStringFlag(command, "storage_cache_size_max"); len(storageCacheSizeMax) > 0 {
		size, err := utils.ParseBytes(storageCacheSizeMax)
		if err != nil {
			return err
		}
		config.StorageCacheSizeMax = size
	}

	if storageCacheRoot := getStringFlag(command, "storage_cache_root"); len(storageCacheRoot) > 0 {
		config.StorageCacheRootPath = storageCacheRoot
	}

	if storageCacheMaxAge := getStringFlag(command, "storage_cache_max_age"); len(storageCacheMaxAge) > 0 {
		maxAge, err := time.ParseDuration(storageCacheMaxAge)
		if err != nil {
			return err
		}
		config.StorageCacheMaxAge = irodsfs_common_utils.Duration(maxAge)
	}

	if nameGenerator := getStringFlag(command, "storage_cache_name_generator"); len(nameGenerator) > 0 {
		config.StorageCacheNameGenerator = nameGenerator
	}

	decodersFlag := command.Flags().Lookup("decoders")
	if decodersFlag != nil && decodersFlag.Changed {
		decoders, err := command.Flags().GetStringSlice("decoders")
		if err != nil {
			return err
		}
		config.Decoders = decoders
	}

	if resourceRoot := getStringFlag(command, "resource_root"); len(resourceRoot) > 0 {
		config.ResourceRootPath = resourceRoot
	}

	if userAgent := getStringFlag(command, "user_agent"); len(userAgent) > 0 {
		config.HTTPUserAgent = userAgent
	}

	if referer := getStringFlag(command, "referer"); len(referer) > 0 {
		config.HTTPReferer = referer
	}

	if getBoolFlag(command, "no_auto_play") {
		config.AutoPlay = false
	}

	profilePortFlag := command.Flags().Lookup("profile_port")
	if profilePortFlag != nil {
		profilePort, err := strconv.ParseInt(profilePortFlag.Value.String(), 10, 32)
		if err != nil {
			return err
		}

		if profilePort > 0 {
			config.ProfileServicePort = int(profilePort)
		}
	}

	prometheusExporterPortFlag := command.Flags().Lookup("prometheus_exporter_port")
	if prometheusExporterPortFlag != nil {
		prometheusExporterPort, err := strconv.ParseInt(prometheusExporterPortFlag.Value.String(), 10, 32)
		if err != nil {
			return err
		}

		if prometheusExporterPort > 0 {
			config.PrometheusExporterPort = int(prometheusExporterPort)
		}
	}

	return nil
}

func PrintVersion(command *cobra.Command) error {
	info, err := commons.GetVersionJSON()
	if err != nil {
		return err
	}

	fmt.Println(info)
	return nil
}

func PrintHelp(command *cobra.Command) error {
	return command.Usage()
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}
