package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	sysd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ocguard/ocguard/common"
	"github.com/ocguard/ocguard/config"
	"github.com/ocguard/ocguard/events"
	"github.com/ocguard/ocguard/history"
	"github.com/ocguard/ocguard/metrics"
	"github.com/ocguard/ocguard/netmon"
	"github.com/ocguard/ocguard/vpn"
)

func newDaemonCommand() *cobra.Command {
	var (
		metricsAddr string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the supervisor in the foreground",
		Long: "Connects and then keeps supervising: probes connectivity, " +
			"reconnects after failures, pauses recovery while the host " +
			"network is down, and reloads configuration on change. " +
			"SIGHUP clears the Failed recovery state; SIGTERM disconnects " +
			"and exits.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, metricsAddr, force)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus metrics endpoint (empty disables it)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "take over an existing connection")
	return cmd
}

func runDaemon(cmd *cobra.Command, metricsAddr string, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := history.Open()
	if err != nil {
		return err
	}
	defer hist.Close()

	bus := events.New()
	mtr := metrics.New()
	defer mtr.Observe(bus)()

	mgr, err := vpn.NewManager(cfg, credentialProvider(), bus, hist)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if pid := findDaemonPID(); pid > 0 {
		return common.WrapError(common.ErrAlreadyConnected,
			"daemon already running with pid "+strconv.Itoa(pid))
	}
	if err := writePIDFile(); err != nil {
		return err
	}
	defer removePIDFile()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if mon, err := netmon.New(bus); err != nil {
		common.LogWarn("Network monitor unavailable, assuming connectivity: %v", err)
	} else {
		mon.SetOnChange(mgr.SetNetworkAvailable)
		if online, err := mon.Online(); err == nil {
			mgr.SetNetworkAvailable(online)
		}
		if err := mon.Start(); err != nil {
			common.LogWarn("Network monitor failed to start: %v", err)
			mon.Stop()
		} else {
			defer mon.Stop()
		}
	}

	cfgPath := configPath
	if cfgPath == "" {
		if cfgPath, err = config.Path(); err != nil {
			return err
		}
	}
	watcher := config.NewWatcher(cfgPath)
	watcher.OnReload(func(next *config.Config) {
		mgr.ApplyConfig(next)
		common.LogInfo("Probe and recovery settings applied; connection parameters apply to the next connection")
	})
	if err := watcher.Start(); err != nil {
		common.LogWarn("Config watcher failed to start: %v", err)
	} else {
		defer watcher.Stop()
	}

	if err := mgr.Connect(ctx, force); err != nil {
		if errors.Is(err, vpn.ErrAlreadyConnected) {
			return common.WrapError(err, "use --force to take over the existing session")
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mtr.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}

		g.Go(func() error {
			common.LogInfo("Metrics endpoint listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return common.WrapError(err, "metrics server failed")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			return srv.Shutdown(shutCtx)
		})
	}

	g.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigs)
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigs:
				switch sig {
				case syscall.SIGHUP:
					common.LogInfo("SIGHUP received, clearing recovery state")
					mgr.Reset()
				default:
					common.LogInfo("Received %s, shutting down", sig)
					cancel()
					return nil
				}
			}
		}
	})

	sysd.SdNotify(false, sysd.SdNotifyReady)
	common.LogInfo("Supervising connection to %s (pid file %s)", cfg.Server, common.PIDFileName)

	err = g.Wait()
	sysd.SdNotify(false, sysd.SdNotifyStopping)

	if derr := mgr.Disconnect(); derr != nil {
		common.LogWarn("Disconnect during shutdown failed: %v", derr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func pidFilePath() (string, error) {
	dir, err := common.GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, common.PIDFileName), nil
}

func writePIDFile() error {
	path, err := pidFilePath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePIDFile() {
	if path, err := pidFilePath(); err == nil {
		os.Remove(path)
	}
}

// findDaemonPID returns the pid recorded in the pid file when that
// process is still alive, 0 otherwise.
func findDaemonPID() int {
	path, err := pidFilePath()
	if err != nil {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	if alive, err := process.PidExists(int32(pid)); err != nil || !alive {
		return 0
	}
	return pid
}
