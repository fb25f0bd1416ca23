package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/chain"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/httpx"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/embedding"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/llm"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/retriever"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/server"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Server.LogLevel))

	counter, err := tokens.NewTiktokenCounter()
	if err != nil {
		logger.Errorf("init token counter: %v", err)
		os.Exit(1)
	}
	llmProvider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.Errorf("init llm provider: %v", err)
		os.Exit(1)
	}
	embedProvider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		logger.Errorf("init embedding provider: %v", err)
		os.Exit(1)
	}

	var indexRet retriever.Retriever
	if cfg.VectorDB.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		vr, err := retriever.NewVectorRetriever(ctx, cfg.VectorDB, embedProvider, cfg.Pipeline.Expansion.ChunksPerQuery)
		cancel()
		if err != nil {
			logger.Warnf("index retriever unavailable: %v", err)
		} else {
			indexRet = vr
			defer vr.Close()
		}
	}
	httpClient := httpx.NewFromConfig(&cfg.HTTPClient)
	webRet := retriever.NewWebRetriever(cfg.Serper, httpClient)

	pipeline := chain.New(cfg, llmProvider, embedProvider, counter, indexRet, webRet)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: server.New(pipeline).Router()}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
