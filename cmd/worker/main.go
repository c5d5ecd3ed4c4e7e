package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	"github.com/livepeer/vodcompress/media"
	"github.com/livepeer/vodcompress/pipeline"
	"github.com/livepeer/vodcompress/pprof"
	"github.com/livepeer/vodcompress/webhook"
	"github.com/livepeer/vodcompress/worker"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}
	pprofPort := flag.Int("pprof-port", 6062, "Pprof listen port")
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

	toolkit := media.NewFFmpegToolkit(cfg.FFmpegPath)
	dispatcher := webhook.NewDispatcher(cfg)
	engine := pipeline.NewEngine(cfg, toolkit, brokerClient, dispatcher)
	supervisor := worker.NewSupervisor(cfg, brokerClient, toolkit, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := supervisor.Boot(ctx); err != nil {
		glog.Fatalf("worker boot checks failed: %v", err)
	}

	reaper := broker.NewReaper(brokerClient)
	go reaper.Run(ctx)

	go func() {
		glog.Info(pprof.ListenAndServe(*pprofPort))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := supervisor.Run(ctx); err != nil {
			glog.Errorf("supervisor stopped: %v", err)
		}
	}()

	if err := handleSignals(ctx); err != nil {
		glog.Errorf("%v", err)
	}
	cancel()
	<-done
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			return fmt.Errorf("caught signal=%v, shutting down worker", s)
		case <-ctx.Done():
			return nil
		}
	}
}
