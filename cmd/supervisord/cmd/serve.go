package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/connpool"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/credentialguard"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/eventlog"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/globus"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/logging"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/maintainer"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/queue"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/resultcache"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/scheduler"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/secretstore"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/slurmvalidate"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/sshsession"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/staging"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

var (
	devLogging     bool
	stagingWorkDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor's admission scheduler",
	Long:  `Start the per-cluster admission scheduler, connection pools, and maintainer workers.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devLogging, "dev", false, "use human-readable console logging instead of JSON")
	serveCmd.Flags().StringVar(&stagingWorkDir, "staging-work-dir", "/var/lib/cybergis-compute/staging", "local scratch directory for zipping/cloning before upload")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(devLogging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	jobStore, err := store.NewPostgresStore(cmd.Context(), cfg.Settings.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer jobStore.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Settings.RedisAddr})
	defer redisClient.Close()

	q := queue.New(redisClient, jobStore)
	events := eventlog.New(jobStore, jobStore, jobStore)
	rcache := resultcache.New(redisClient)
	secrets := secretstore.New(24*time.Hour, 10*time.Minute)
	globusClient := globus.New(cfg.Settings.GlobusClientID)
	stagingEngine := staging.New(jobStore, jobStore, globusClient, stagingWorkDir)

	sharedPool := connpool.NewSharedPool()
	privatePool := connpool.NewPrivatePool()

	guard := credentialguard.New(jobStore, secrets, func(addr, user, password string) credentialguard.Probe {
		return sshsession.New(addr, user, password)
	})
	_ = guard // wired for the HTTP boundary's credential-registration endpoint, not called by the scheduler itself

	depsFactory := func(hpc string) (maintainer.Deps, error) {
		hpcCfg, ok := cfg.HPCConfigMap[hpc]
		if !ok {
			return maintainer.Deps{}, fmt.Errorf("hpc %q is not configured", hpc)
		}
		ceiling, err := slurmvalidate.ComputeCeiling(hpcCfg.SlurmInputRules, hpcCfg.SlurmGlobalCap)
		if err != nil {
			return maintainer.Deps{}, fmt.Errorf("computing slurm ceiling for %q: %w", hpc, err)
		}

		return maintainer.Deps{
			HPC: maintainer.HPCContext{
				Name:      hpc,
				Config:    hpcCfg,
				Ceiling:   ceiling,
				Container: cfg.ContainerConfigMap[hpc],
				Kernel:    cfg.KernelConfigMap[hpc],
			},
			Store:       jobStore,
			Events:      events,
			Staging:     stagingEngine,
			Secrets:     secrets,
			ResultCache: rcache,
			Logger:      logging.Cluster(logger, hpc),
			SharedPool:  sharedPool,
			PrivatePool: privatePool,
			Dial:        sshsession.New,
		}, nil
	}

	admitInterval := cfg.Settings.QueueConsumePeriod
	if admitInterval <= 0 {
		admitInterval = 5 * time.Second
	}
	maintainInterval := 3 * time.Second

	sched := scheduler.New(cfg, jobStore, q, events, depsFactory, logger, admitInterval, maintainInterval)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(sigCtx)
	logger.Info("supervisor started", zap.Int("clusters", len(cfg.HPCConfigMap)), zap.Duration("admit_interval", admitInterval))

	<-sigCtx.Done()
	logger.Info("shutdown signal received, draining workers", zap.Duration("grace", cfg.Settings.ShutdownGrace))
	sched.Destroy(cfg.Settings.ShutdownGrace)
	logger.Info("supervisor stopped")
	return nil
}
