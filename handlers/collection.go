// Package handlers implements the intake HTTP API: submission, status,
// health, administrative webhook actions, and the recent-jobs list, plus
// the range-aware static content server under handlers/content.
package handlers

import (
	"time"

	"github.com/livepeer/vodcompress/broker"
	"github.com/livepeer/vodcompress/config"
	"github.com/livepeer/vodcompress/media"
)

// Collection bundles the handlers' shared dependencies: one struct, one
// method per route, constructed once at startup and handed to the router.
type Collection struct {
	Config    config.Config
	Broker    broker.Client
	Toolkit   media.Toolkit
	StartedAt time.Time
}

func NewCollection(cfg config.Config, brokerClient broker.Client, toolkit media.Toolkit) *Collection {
	return &Collection{Config: cfg, Broker: brokerClient, Toolkit: toolkit, StartedAt: time.Now()}
}
