package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/badgelink/badgelink/internal/metrics"
	"github.com/badgelink/badgelink/internal/session"
	"github.com/badgelink/badgelink/pkg/appstore"
	"github.com/badgelink/badgelink/pkg/fsstore"
	"github.com/badgelink/badgelink/pkg/settings"
	"github.com/badgelink/badgelink/pkg/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the session engine and serve metrics",
	RunE:  runE,
}

func init() {
	runCmd.Flags().String("data-dir", "", "override data_dir from config")
	runCmd.Flags().String("metrics-addr", "", "override metrics_addr from config")
}

// logRebooter issues a host-visible log line in place of the hardware
// reset the real device would perform on StartApp.
type logRebooter struct{ logger log.FieldLogger }

func (r logRebooter) Reboot() {
	r.logger.Warn("reboot requested, process would reset here")
}

// unconnectedDuplex stands in for the real serial/USB transport, which
// is out of scope here: it logs every frame the session would have
// sent and drops it. It must never be wired back into the fragment
// queue session.Run consumes, or the daemon would redispatch its own
// replies as new host requests.
type unconnectedDuplex struct{ logger log.FieldLogger }

func (d unconnectedDuplex) Write(frame []byte) error {
	d.logger.WithField("len", len(frame)).Debug("outbound frame dropped, no transport connected")
	return nil
}

func (d unconnectedDuplex) Close() error { return nil }

func runE(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	logrusLogger := log.New()
	logrusLogger.SetLevel(level)
	slogger := newSlogBridge(logrusLogger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.FsRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create fs root: %w", err)
	}

	appDB, err := openBadger(filepath.Join(cfg.DataDir, "appstore"))
	if err != nil {
		return fmt.Errorf("failed to open app store db: %w", err)
	}
	defer appDB.Close()

	settingsDB, err := openBadger(filepath.Join(cfg.DataDir, "settings"))
	if err != nil {
		return fmt.Errorf("failed to open settings db: %w", err)
	}
	defer settingsDB.Close()

	quotaBytes := cfg.AppStoreQuotaMB * 1024 * 1024
	appStore := appstore.NewBadgerStore(appDB, quotaBytes, slogger)
	settingsStore := settings.NewBadgerStore(settingsDB, slogger)
	fsStore := fsstore.NewOSStore(cfg.FsRoot, slogger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queue := transport.NewFragmentQueue(cfg.FragmentQueueSize, slogger)

	sessCfg := session.Config{
		RebootDelay:           cfg.RebootDelay,
		FragmentQueueCapacity: cfg.FragmentQueueSize,
		FrameBufferCapacity:   cfg.FrameBufferBytes,
	}
	sess := session.New(sessCfg, session.Collaborators{
		AppStore: appStore,
		Settings: settingsStore,
		FsStore:  fsStore,
		Out:      unconnectedDuplex{logger: logrusLogger},
		Reboot:   logRebooter{logger: logrusLogger},
		Metrics:  m,
		Logger:   slogger,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logrusLogger.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logrusLogger.WithField("signal", sig).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	go sess.Run(ctx, queue)

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return badger.Open(opts)
}
