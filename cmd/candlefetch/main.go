// Command candlefetch is the ad-hoc/backfill entrypoint for the candle
// provider core, wired the way the teacher's cmd/main.go wires its
// subcommands with github.com/urfave/cli.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"strategyexecutor/src/cache"
	"strategyexecutor/src/database"
	"strategyexecutor/src/model"
	"strategyexecutor/src/overlap"
	"strategyexecutor/src/processor"
	"strategyexecutor/src/provider"
	"strategyexecutor/src/repository"
	"strategyexecutor/src/synthetic"
	"strategyexecutor/src/timegrid"
	"strategyexecutor/src/upstream"

	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "candlefetch"
	app.Usage = "Upbit candle data provider — ad-hoc collection and backfill"

	app.Commands = []cli.Command{fetchCMD}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var fetchCMD = cli.Command{
	Name:      "fetch",
	Usage:     "collect candles for a symbol/timeframe",
	ArgsUsage: "",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "symbol", Usage: "market symbol, e.g. KRW-BTC"},
		cli.StringFlag{Name: "timeframe", Usage: "1s,1m,3m,5m,10m,15m,30m,60m,240m,1d,1w,1M,1y"},
		cli.IntFlag{Name: "count", Usage: "number of candles to collect (count-based request)"},
		cli.StringFlag{Name: "start", Usage: "RFC3339 start_time (window or start+count request)"},
		cli.StringFlag{Name: "end", Usage: "RFC3339 end_time (window request)"},
		cli.BoolFlag{Name: "dry-run", Usage: "plan and report chunks without fetching or storing"},
	},
	Action: fetchAction,
}

func fetchAction(c *cli.Context) error {
	symbol := c.String("symbol")
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	tf := timegrid.Timeframe(c.String("timeframe"))
	if !timegrid.IsValid(tf) {
		return fmt.Errorf("--timeframe %q is not a recognised timeframe", c.String("timeframe"))
	}

	req := model.Request{Symbol: symbol, Timeframe: tf, InclusiveStart: true}

	if start := c.String("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		req.StartTime = &t
	}
	if end := c.String("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		req.EndTime = &t
	}
	if count := c.Int("count"); count > 0 {
		req.Count = count
	}

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("failed to connect to candle database")
	}

	repo := repository.NewCandleRepository(database.MainDB)
	analyzer := overlap.NewAnalyzer(repo)
	fetcherCfg := upstream.GetConfig().ToConfig()
	fetcher := upstream.NewFetcher(fetcherCfg)
	detector := synthetic.NewDetector(synthetic.GetConfig().ToConfig())
	procCfg := processor.GetConfig()
	proc := processor.New(repo, analyzer, fetcher, detector, procCfg.ToConfig())

	cacheCfg := cache.GetConfig()
	candleCache := cache.New(cacheCfg.MaxEntries, cacheCfg.TTL)

	facade := provider.New(candleCache, proc)

	dryRun := c.Bool("dry-run")
	if dryRun {
		chunksPlanned := 0
		countChunks := func(evt processor.ProgressEvent) {
			chunksPlanned = evt.ChunksDone
			logProgress(evt)
		}
		result, err := proc.Execute(context.Background(), req, countChunks, true)
		if err != nil {
			return err
		}
		fmt.Printf("dry run: %d chunks planned, status=%s\n", chunksPlanned, result.Status)
		return nil
	}

	response := facade.GetCandles(context.Background(), req)
	if !response.Success {
		return fmt.Errorf("%s: %s", response.Error.Kind, response.Error.Detail)
	}

	fmt.Printf("collected %d candles from %s (source=%s, %dms)\n",
		response.TotalCount, req.Symbol, response.Source, response.ResponseTimeMs)
	return nil
}

func logProgress(evt processor.ProgressEvent) {
	logger.WithFields(logger.Fields{
		"status":          evt.Status,
		"collected_count": evt.CollectedCount,
		"chunks_done":     evt.ChunksDone,
	}).Info("collection progress")
}
