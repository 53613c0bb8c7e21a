// Package runner abstracts away common boilerplate from `main()` for
// services built around a task registry: identity, logging, tracing,
// configuration, signal handling, and the start/stop lifecycle of all
// registered tasks.
package runner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/DataDog/dd-trace-go/v2/profiler"

	"github.com/zircuit-labs/zkr-go-sched/calm"
	"github.com/zircuit-labs/zkr-go-sched/config"
	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/log/identity"
	"github.com/zircuit-labs/zkr-go-sched/task"
	"github.com/zircuit-labs/zkr-go-sched/task/ossignal"
	"github.com/zircuit-labs/zkr-go-sched/version"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const (
	exitError        = 1
	exitPanic        = 2 // go standard exit code on panic
	cfgPath          = "runner"
	schedulerCfgPath = "scheduler"
)

type runnerConfig struct {
	LogLevel string
}

type schedulerConfig struct {
	Enabled      bool `koanf:"enabled"`
	GraceSeconds int  `koanf:"graceseconds"`
}

type options struct {
	useProvidedName bool
}

type Option func(options *options)

// UseProvidedName ignores DD_SERVICE and keeps the name passed to Run.
func UseProvidedName() Option {
	return func(options *options) {
		options.useProvidedName = true
	}
}

// Runnable is a func that takes arguments provided by Run. It registers the
// service's tasks on the registry; Run starts them once it returns.
type Runnable func(cfg *config.Configuration, reg *task.Registry, logger *slog.Logger) error

// Run abstracts away common boilerplate from `main()` for standardized services.
func Run(serviceName string, f fs.FS, run Runnable, opts ...Option) {
	options := options{}
	for _, opt := range opts {
		opt(&options)
	}

	// Get the service name from the environment.
	name, ok := os.LookupEnv("DD_SERVICE")
	// If does not exist or option set, use provided name instead.
	if !ok || options.useProvidedName {
		name = serviceName
	}
	identity.SetServiceName(name)
	n, id := identity.WhoAmI()

	// create logger
	logger := log.NewLogger(
		log.WithServiceName(n),
		log.WithInstanceID(id),
	)

	// execute the core run logic protected from direct panics.
	// NOTE: goroutines spawned by `run` must be themselves protected.
	err := calm.Unpanic(func() error {
		return protectedRun(f, run, logger)
	})

	switch errclass.GetClass(err) {
	case errclass.Nil:
		logger.Info("service exited normally")
	case errclass.Panic:
		logger.Error("service failed with panic", log.ErrAttr(err))
		os.Exit(exitPanic) //revive:disable:deep-exit // intentional
	default:
		logger.Error("service failed with error", log.ErrAttr(err))
		os.Exit(exitError) //revive:disable:deep-exit // intentional
	}
}

func protectedRun(f fs.FS, run Runnable, logger *slog.Logger) error {
	name, id := identity.WhoAmI()
	// start the DataDog profiler and tracer if the env var is set
	if _, ok := os.LookupEnv("DD_APM_ENABLED"); ok {
		err := profiler.Start(
			profiler.WithService(name),
			profiler.WithVersion(version.Info.Version),
			profiler.WithTags(
				fmt.Sprintf("instance:%s", id),
				fmt.Sprintf("git_commit:%s", version.Info.GitCommit),
			),
			profiler.WithProfileTypes(
				profiler.CPUProfile,
				profiler.HeapProfile,
				// The profiles below increase overhead, and could be disabled if needed.
				profiler.BlockProfile,
				profiler.MutexProfile,
				profiler.GoroutineProfile,
			),
		)
		if err != nil {
			logger.Error("failed to start datadog profiler", log.ErrAttr(err))
			return stacktrace.Wrap(err)
		}
		defer profiler.Stop()

		err = tracer.Start(
			tracer.WithService(name),
			tracer.WithServiceVersion(version.Info.Version),
		)
		if err != nil {
			logger.Error("failed to start datadog tracer", log.ErrAttr(err))
			return stacktrace.Wrap(err)
		}
		defer tracer.Stop()
	}

	// get config information
	cfg, err := config.NewConfiguration(f)
	if err != nil {
		return stacktrace.Wrap(err)
	}

	serverConfig := runnerConfig{}
	if err := cfg.Unmarshal(cfgPath, &serverConfig); err != nil {
		return stacktrace.Wrap(err)
	}

	if err := log.SetLogLevel(serverConfig.LogLevel); err != nil {
		logger.Error("failed to set log level", log.ErrAttr(err))
	}

	// absent config keys keep these defaults
	schedCfg := schedulerConfig{Enabled: true}
	if err := cfg.Unmarshal(schedulerCfgPath, &schedCfg); err != nil {
		return stacktrace.Wrap(err)
	}

	registryOpts := []task.RegistryOption{
		task.WithLogger(logger),
		task.WithEnabled(schedCfg.Enabled),
	}
	if schedCfg.GraceSeconds > 0 {
		registryOpts = append(registryOpts, task.WithGraceBound(time.Duration(schedCfg.GraceSeconds)*time.Second))
	}
	reg := task.NewRegistry(registryOpts...)

	// shutdown is initiated by an os signal
	shutdownCtx, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	signalTask := ossignal.NewTask(
		func(os.Signal) { shutdown() },
		ossignal.WithLogger(logger),
	)
	if err := signalTask.Start(); err != nil {
		return stacktrace.Wrap(err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = signalTask.Stop(stopCtx)
	}()

	// let the service register its tasks
	if err := run(cfg, reg, logger); err != nil {
		return err
	}

	// start everything; a task that fails to start does not block the rest,
	// so the service stays up with whatever did start
	if err := reg.StartAll(); err != nil {
		logger.Error("some tasks failed to start", log.ErrAttr(err))
	}

	<-shutdownCtx.Done()

	logger.Info("shutting down tasks")
	return reg.StopAll(context.Background())
}
