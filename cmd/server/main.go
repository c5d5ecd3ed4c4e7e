package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	"github.com/livepeer/vodcompress/handlers"
	"github.com/livepeer/vodcompress/media"
	"github.com/livepeer/vodcompress/pprof"
	"github.com/livepeer/vodcompress/worker"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}
	addr := flag.String("http-addr", "0.0.0.0:8080", "Address to bind the intake API on")
	pprofPort := flag.Int("pprof-port", 6061, "Pprof listen port")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		glog.Fatalf("error loading config: %v", err)
	}

	brokerClient, err := broker.NewClient(cfg)
	if err != nil {
		glog.Fatalf("error connecting to broker: %v", err)
	}
	defer brokerClient.Close()

	if err := worker.EnsureDirWritable(cfg.MediaContentDir); err != nil {
		glog.Fatalf("media content dir unusable: %v", err)
	}

	toolkit := media.NewFFmpegToolkit(cfg.FFmpegPath)
	collection := handlers.NewCollection(cfg, brokerClient, toolkit)
	router := handlers.NewRouter(collection)

	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		glog.Info(pprof.ListenAndServe(*pprofPort))
	}()

	go func() {
		glog.Infof("intake API listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("intake API stopped: %v", err)
		}
	}()

	if err := handleSignals(ctx); err != nil {
		glog.Errorf("%v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("error during intake API shutdown: %v", err)
	}
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			return fmt.Errorf("caught signal=%v, shutting down intake API", s)
		case <-ctx.Done():
			return nil
		}
	}
}
