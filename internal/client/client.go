// Package client is the composition root: it wires config, storage, the
// REST client, the session holder, and the realtime channel into one
// runnable client, plus the optional metrics listener.
package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/api"
	"github.com/kelvinkbk/xavlink-sub001/internal/config"
	"github.com/kelvinkbk/xavlink-sub001/internal/health"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/metrics"
	"github.com/kelvinkbk/xavlink-sub001/internal/profile"
	"github.com/kelvinkbk/xavlink-sub001/internal/realtime"
	"github.com/kelvinkbk/xavlink-sub001/internal/session"
	"github.com/kelvinkbk/xavlink-sub001/internal/storage"
)

// Client bundles the long-lived pieces every command needs.
type Client struct {
	Config  *config.Config
	API     *api.Client
	Store   storage.Store
	Session *session.Holder

	log           *zap.Logger
	metricsServer *http.Server
}

// New builds the client from loaded configuration and bootstraps any
// persisted session.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	dataDir, err := expandHome(cfg.General.DataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store, err := storage.OpenSQLite(dataDir)
	if err != nil {
		return nil, err
	}

	restClient := api.NewClient(api.Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
	})

	factory := func(ctx context.Context, token string) (session.Channel, error) {
		return realtime.New(ctx, cfg.Realtime, token)
	}

	holder := session.New(restClient, store, factory)

	c := &Client{
		Config:  cfg,
		API:     restClient,
		Store:   store,
		Session: holder,
		log:     logger.New("client"),
	}

	metrics.RegisterMetrics()

	if err := holder.Bootstrap(ctx); err != nil {
		_ = store.Close() // nolint:errcheck
		return nil, err
	}
	return c, nil
}

// ProfileView builds a view of the given user's profile whose follow
// mutations also move the authenticated user's following count.
func (c *Client) ProfileView(userID string) *profile.View {
	v := profile.New(userID, c.API)
	v.OnFollowingChange(c.Session.AdjustFollowingCount)
	return v
}

// Bridge returns the session's realtime channel as a *realtime.Bridge,
// or nil when anonymous or the channel is down.
func (c *Client) Bridge() *realtime.Bridge {
	ch := c.Session.Channel()
	if ch == nil {
		return nil
	}
	bridge, ok := ch.(*realtime.Bridge)
	if !ok {
		return nil
	}
	return bridge
}

// ServeMetrics exposes /metrics when enabled in config. Non-blocking;
// errors after startup are logged, not fatal — a busy port must not take
// the client down.
func (c *Client) ServeMetrics() {
	if !c.Config.Metrics.Enabled {
		return
	}
	checker := health.NewChecker(config.Version, c.Session, func() error {
		_, _, err := c.Store.Get(storage.KeyTheme)
		return err
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checker.Handler())
	c.metricsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Config.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		c.log.Info("metrics listener started", zap.Int("port", c.Config.Metrics.Port))
		if err := c.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
}

// Close releases everything in reverse construction order.
func (c *Client) Close() {
	if c.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = c.metricsServer.Shutdown(ctx) // nolint:errcheck
		cancel()
	}
	if bridge := c.Bridge(); bridge != nil {
		bridge.Close()
	}
	if err := c.Store.Close(); err != nil {
		c.log.Warn("device store close failed", zap.Error(err))
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
