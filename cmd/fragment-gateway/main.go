package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	fragmentgateway "github.com/always-cache/fragment-gateway"
)

var (
	// CLI flags
	configFilenameFlag string
	envFilenameFlag    string
	backendFlag        string
	portFlag           int
	preserveHostFlag   bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "YAML config file")
	flag.StringVar(&envFilenameFlag, "env", ".env", "Env file to load")
	flag.StringVar(&backendFlag, "backend", "", "Backend URL to fetch from (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (default 8080)")
	flag.BoolVar(&preserveHostFlag, "preserve-host", false, "Send the host of the incoming request to the backend")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	// a missing env file is fine
	if err := godotenv.Load(envFilenameFlag); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("file", envFilenameFlag).Msg("Could not load env file")
	}

	var config Config
	if configFilenameFlag != "" {
		var err error
		if config, err = getConfig(configFilenameFlag); err != nil {
			log.Fatal().Err(err).Msg("Could not read config")
		}
	}
	if err := applyEnv(&config, os.Getenv); err != nil {
		log.Fatal().Err(err).Msg("Invalid environment")
	}
	if backendFlag != "" {
		config.Backend = backendFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if preserveHostFlag {
		config.PreserveHost = true
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Backend == "" {
		log.Fatal().Msg("Please specify backend")
	}
	backend, err := url.Parse(config.Backend)
	if err != nil || !backend.IsAbs() {
		log.Fatal().Err(err).Str("backend", config.Backend).Msg("Could not parse backend url")
	}

	executorConfig := config.executorConfig()
	executorConfig.Logger = &log.Logger
	extensions := fragmentgateway.DefaultExtensions(log.Logger, prometheus.DefaultRegisterer)
	if err := extensions.Apply(config.Extensions, &executorConfig); err != nil {
		log.Fatal().Err(err).Msg("Could not load extensions")
	}
	executor, err := fragmentgateway.CreateExecutor(executorConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create executor")
	}
	defer executor.Close()
	if executorConfig.Cache != nil {
		defer executorConfig.Cache.Close()
	}

	var metrics http.Handler
	if config.hasHook("metrics") {
		metrics = promhttp.Handler()
	}
	gw := &gateway{
		executor:      executor,
		backend:       backend,
		sessionCookie: config.SessionCookie,
		log:           log.Logger.With().Str("component", "gateway").Logger(),
	}

	log.Info().Msgf("Serving port %v from %s (preserve host: %v)", config.Port, backend.String(), config.PreserveHost)
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), gw.routes(metrics))

	if err != nil {
		panic(err)
	}
}
