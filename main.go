package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"strategyexecutor/src/cache"
	"strategyexecutor/src/database"
	"strategyexecutor/src/overlap"
	"strategyexecutor/src/processor"
	"strategyexecutor/src/provider"
	"strategyexecutor/src/repository"
	"strategyexecutor/src/server"
	"strategyexecutor/src/synthetic"
	"strategyexecutor/src/upstream"

	logger "github.com/sirupsen/logrus"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel // fallback seguro
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	repo := repository.NewCandleRepository(database.MainDB)
	analyzer := overlap.NewAnalyzer(repo)
	fetcher := upstream.NewFetcher(upstream.GetConfig().ToConfig())
	detector := synthetic.NewDetector(synthetic.GetConfig().ToConfig())
	procCfg := processor.GetConfig()
	proc := processor.New(repo, analyzer, fetcher, detector, procCfg.ToConfig())

	cacheCfg := cache.GetConfig()
	candleCache := cache.New(cacheCfg.MaxEntries, cacheCfg.TTL)

	facade := provider.New(candleCache, proc)

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}
	server.StartServer(port, facade)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
