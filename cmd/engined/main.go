// Command engined holds one long-running engine.Engine instance and
// exposes a tiny debug HTTP surface over it. It is the long-running
// counterpart to the one-shot batch tool in cmd/engine-snapshot.
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/regionkv/kvengine/engine"
	"github.com/regionkv/kvengine/internal/config"
	"github.com/regionkv/kvengine/internal/httpmw"
	"github.com/regionkv/kvengine/internal/lockstore"
	"github.com/regionkv/kvengine/internal/metrics"
	"github.com/regionkv/kvengine/internal/region"
	"github.com/regionkv/kvengine/internal/snapshot"
	"github.com/regionkv/kvengine/internal/snapshot/filebackend"
)

func buildLogger(env string) *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	if env != "dev" {
		logConfig = zap.NewProductionConfig()
	}
	return zap.Must(logConfig.Build())
}

func main() {
	cfg, err := config.FromFlags("engined", os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log := buildLogger(cfg.Env).Named("main")
	defer log.Sync()

	sink := metrics.NewPromSink(nil)

	eng := engine.New(log, engine.WithMetrics(sink), engine.WithSnapshotConfig(snapshot.Config{
		KeysPerSegment: cfg.KeysPerSegment,
		Workers:        cfg.SnapshotWorkers,
	}))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())
	if cfg.Env == "dev" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(httpmw.RequestID())
	r.Use(httpmw.ZapLogger(log))
	r.Use(httpmw.CapConcurrentRequests(64))

	r.GET("/debugz/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.GET("/debugz/scan", func(c *gin.Context) {
		var start, end []byte
		if v := c.Query("start"); v != "" {
			start = []byte(v)
		}
		if v := c.Query("end"); v != "" {
			end = []byte(v)
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		onlyKeys := c.Query("onlyKeys") == "true"

		entries, err := eng.SyncScan(start, end, limit, onlyKeys)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.Header("X-Total-Count", strconv.Itoa(len(entries)))
		c.JSON(http.StatusOK, entries)
	})

	r.POST("/debugz/put", func(c *gin.Context) {
		var req struct {
			Key   string `json:"key" binding:"required"`
			Value string `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		if err := eng.SyncPut([]byte(req.Key), []byte(req.Value)); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": req.Key})
	})

	r.POST("/debugz/trylock", func(c *gin.Context) {
		var req struct {
			Key         string `json:"key" binding:"required"`
			FencingKey  string `json:"fencingKey" binding:"required"`
			KeepLease   bool   `json:"keepLease"`
			ID          string `json:"id" binding:"required"`
			LeaseMillis int64  `json:"leaseMillis"`
			NowMillis   int64  `json:"nowMillis"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		owner, err := eng.SyncTryLock([]byte(req.Key), []byte(req.FencingKey), req.KeepLease, lockstore.Acquirer{
			ID:          []byte(req.ID),
			LeaseMillis: req.LeaseMillis,
			NowMillis:   req.NowMillis,
		})
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, owner)
	})

	r.POST("/debugz/releaselock", func(c *gin.Context) {
		var req struct {
			Key string `json:"key" binding:"required"`
			ID  string `json:"id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		owner, err := eng.SyncReleaseLock([]byte(req.Key), lockstore.Acquirer{ID: []byte(req.ID)})
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, owner)
	})

	r.POST("/debugz/snapshot/save", func(c *gin.Context) {
		var req struct {
			RegionStart string `json:"regionStart"`
			RegionEnd   string `json:"regionEnd"`
			Dir         string `json:"dir" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		rg := region.Region{}
		if req.RegionStart != "" {
			rg.Start = []byte(req.RegionStart)
		}
		if req.RegionEnd != "" {
			rg.End = []byte(req.RegionEnd)
		}

		if err := eng.SyncSaveSnapshot(c.Request.Context(), rg, req.Dir, filebackend.New()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dir": req.Dir})
	})

	r.POST("/debugz/snapshot/load", func(c *gin.Context) {
		var req struct {
			Dir string `json:"dir" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		if err := eng.SyncLoadSnapshot(c.Request.Context(), req.Dir, filebackend.New()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dir": req.Dir})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpserver := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	log.Info("running engine debug HTTP surface", zap.String("addr", cfg.ListenAddr))
	if err := httpserver.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
}
