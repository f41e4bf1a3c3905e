package main

import (
	"context"
	"fmt"
	"image/png"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	cmd_commons "github.com/cyverse/go-imageloader/cmd/commons"
	"github.com/cyverse/go-imageloader/commons"
	"github.com/cyverse/go-imageloader/decoder"
	"github.com/cyverse/go-imageloader/loader"
	irodsfs_common_utils "github.com/cyverse/irodsfs-common/utils"
	log "github.com/sirupsen/logrus"
)

const (
	metricsCollectInterval = 5 * time.Second
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imageloader [flags] <uri>...",
	Short: "Load and decode images through memory and storage caches",
	Long:  "Load images from files, res:// resources or http(s) URLs through memory and storage caches, decode them and optionally play animations.",
	RunE:  processCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func processCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processCommand",
	})

	config, runOptions, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}

	if !cont {
		os.Exit(0)
	}

	if len(args) == 0 {
		cmd_commons.PrintHelp(command)
		os.Exit(1)
	}

	err = run(config, runOptions, args)
	if err != nil {
		logger.WithError(err).Error("failed to load images")
		os.Exit(1)
	}

	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// attach common flags
	cmd_commons.SetCommonFlags(rootCmd)

	err := Execute()
	if err != nil {
		logger.Fatal(err)
		os.Exit(1)
	}
}

// run loads every uri with the default loader
func run(config *commons.Config, runOptions *cmd_commons.RunOptions, uris []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "run",
	})

	versionInfo := commons.GetVersion()
	logger.Infof("imageloader version - %s, commit - %s", versionInfo.ServiceVersion, versionInfo.GitCommit)

	// make work dirs required
	err := config.MakeWorkDirs()
	if err != nil {
		logger.WithError(err).Error("invalid configuration")
		return err
	}

	if len(runOptions.OutputDir) > 0 {
		err = os.MkdirAll(runOptions.OutputDir, 0o755)
		if err != nil {
			return xerrors.Errorf("failed to make output dir %q: %w", runOptions.OutputDir, err)
		}
	}

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile)
		defer prof.Stop()
	}

	imageLoader, err := loader.NewImageLoaderFromConfig(config, nil, nil)
	if err != nil {
		logger.WithError(err).Error("failed to create the image loader")
		return err
	}

	registry := loader.GetDefaultRegistry()
	err = registry.Register(loader.DefaultLoaderName, imageLoader)
	if err != nil {
		imageLoader.Release()
		return err
	}
	defer registry.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cancelOnCtrlC(ctx, cancel)

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: mux}

		go func() {
			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			prometheusExporterServer.ListenAndServe()
		}()

		go collectMetrics(ctx, registry)
	}

	defer func() {
		if prometheusExporterServer != nil {
			prometheusExporterServer.Shutdown(context.TODO())
		}
	}()

	failed := 0
	for idx, uri := range uris {
		err := loadOne(ctx, registry.Default(), idx, uri, runOptions)
		if err != nil {
			logger.WithError(err).Errorf("failed to load %q", uri)
			failed++
		}

		if ctx.Err() != nil {
			logger.Info("interrupted")
			break
		}
	}

	imageLoader.WaitForWrites()
	registry.CollectPrometheusMetrics()

	if prometheusExporterServer != nil && ctx.Err() == nil {
		logger.Info("serving metrics, press Ctrl+C to exit")
		<-ctx.Done()
	}

	if failed > 0 {
		return xerrors.Errorf("failed to load %d of %d images", failed, len(uris))
	}
	return nil
}

func loadOne(ctx context.Context, imageLoader *loader.ImageLoader, idx int, uri string, runOptions *cmd_commons.RunOptions) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "loadOne",
	})

	startTime := time.Now()

	pkg, err := imageLoader.LoadImage(ctx, nil, uri)
	if err != nil {
		return err
	}

	if pkg == nil {
		// cancelled
		return nil
	}
	defer pkg.Release()

	logger.Infof("loaded %q with %q decoder, %dx%d, animated %t, in %s", uri, pkg.GetDecoderName(), pkg.GetPixelWidth(), pkg.GetPixelHeight(), pkg.IsAnimated(), time.Since(startTime))

	if pkg.IsAnimated() && runOptions.PlayDuration > 0 {
		pkg.Start()

		select {
		case <-time.After(runOptions.PlayDuration):
		case <-ctx.Done():
		}

		pkg.Stop()
	}

	if len(runOptions.OutputDir) > 0 {
		return writeSurface(pkg, filepath.Join(runOptions.OutputDir, fmt.Sprintf("%03d.png", idx)))
	}

	return nil
}

func writeSurface(pkg *decoder.ImagePackage, outputPath string) error {
	surface := pkg.GetSurface()
	if surface == nil {
		return xerrors.Errorf("image package has no surface")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return xerrors.Errorf("failed to create %q: %w", outputPath, err)
	}
	defer f.Close()

	err = png.Encode(f, surface)
	if err != nil {
		return xerrors.Errorf("failed to encode %q: %w", outputPath, err)
	}

	return nil
}

func collectMetrics(ctx context.Context, registry *loader.Registry) {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "collectMetrics",
	})

	defer irodsfs_common_utils.StackTraceFromPanic(logger)

	ticker := time.NewTicker(metricsCollectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			registry.CollectPrometheusMetrics()
		case <-ctx.Done():
			return
		}
	}
}

func cancelOnCtrlC(ctx context.Context, cancel context.CancelFunc) {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt)
	defer signal.Stop(signalChannel)

	select {
	case <-signalChannel:
		cancel()
	case <-ctx.Done():
	}
}
