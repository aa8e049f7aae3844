package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	assetcache "github.com/piplinepro/asset-cache"
	"github.com/piplinepro/asset-cache/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	versionFlag        string
	dbFilenameFlag     string
	waitFlag           bool
	verbosityTraceFlag bool
	logFilenameFlag    string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&versionFlag, "version", "", "Deployment version stamp (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&waitFlag, "wait", false, "Wait for promotion instead of activating immediately")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
}

func main() {
	flag.Parse()

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot read config file")
		}
	}

	// flags override config
	if originFlag != "" {
		config.Origin = originFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}
	if config.Port <= 0 {
		config.Port = portFlag
	}
	if logFilenameFlag != "" {
		config.LogFile = logFilenameFlag
	}
	if config.DB == "" {
		config.DB = dbFilenameFlag
	}
	if waitFlag {
		config.WaitForPromotion = true
	}

	// a version stamp normally comes from the deployment pipeline;
	// generate one only when none is supplied at all
	if config.Version == "" {
		config.Version = time.Now().UTC().Format("20060102-150405")
	}

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to rotating logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if config.LogFile != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", config.Version).Logger()

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originUrl, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	// set up the partition store
	var store cache.PartitionStore
	if config.DB == "memory" {
		store = cache.NewMemoryStore()
	} else {
		store = cache.NewSQLiteStore(config.DB)
	}

	worker := assetcache.New(assetcache.Config{
		Store:            store,
		OriginURL:        *originUrl,
		Version:          config.Version,
		CachePrefix:      config.CachePrefix,
		APIMarker:        config.APIMarker,
		Manifest:         config.Manifest,
		WaitForPromotion: config.WaitForPromotion,
		Logger:           &log.Logger,
	})

	// a waiting worker only activates once promoted via the control API,
	// so its lifecycle has to run alongside the server
	if config.WaitForPromotion {
		go func() {
			if err := worker.Run(context.Background()); err != nil {
				log.Fatal().Err(err).Msg("Worker could not activate")
			}
		}()
	} else {
		if err := worker.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Worker could not activate")
		}
	}

	log.Info().Msgf("Serving port %v for origin %s", config.Port, originUrl)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), worker.Handler(config.ControlPrefix))

	if err != nil {
		panic(err)
	}
}
