// Command engine-snapshot is an offline batch tool that saves or loads a
// region-scoped engine snapshot against a bare engine instance, without
// standing up the debug HTTP surface. Grounded on cmd/bulk-delete/main.go's
// flag-driven, one-shot CLI shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/regionkv/kvengine/engine"
	"github.com/regionkv/kvengine/internal/region"
	"github.com/regionkv/kvengine/internal/snapshot/filebackend"
)

func main() {
	mode := flag.String("mode", "", "save or load")
	dir := flag.String("dir", "", "snapshot directory")
	regionStart := flag.String("region-start", "", "inclusive region lower bound (save only; empty means unbounded)")
	regionEnd := flag.String("region-end", "", "exclusive region upper bound (save only; empty means unbounded)")
	flag.Parse()

	if *dir == "" || (*mode != "save" && *mode != "load") {
		fmt.Println("Usage: ./engine-snapshot -mode=save|load -dir=<path> [-region-start=<key>] [-region-end=<key>]")
		os.Exit(1)
	}

	log := buildLogger()
	log = log.Named("main")

	eng := engine.New(log)
	backend := filebackend.New()
	ctx := context.Background()

	start := time.Now()
	var err error
	switch *mode {
	case "save":
		r := region.Region{}
		if *regionStart != "" {
			r.Start = []byte(*regionStart)
		}
		if *regionEnd != "" {
			r.End = []byte(*regionEnd)
		}
		err = eng.SyncSaveSnapshot(ctx, r, *dir, backend)
	case "load":
		err = eng.SyncLoadSnapshot(ctx, *dir, backend)
	}

	if err != nil {
		log.Fatal("snapshot operation failed", zap.String("mode", *mode), zap.Error(err))
	}

	log.Info("snapshot operation complete",
		zap.String("mode", *mode),
		zap.String("dir", *dir),
		zap.Duration("took", time.Since(start)),
	)
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
