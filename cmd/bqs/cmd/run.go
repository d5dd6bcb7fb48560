package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sarchlab/bqs/config"
	"github.com/sarchlab/bqs/datarecording"
	"github.com/sarchlab/bqs/logging"
	"github.com/sarchlab/bqs/monitoring"
)

type runOptions struct {
	configPath string
	envFiles   []string
	open       bool
	watch      bool
	duration   time.Duration
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a router over the in-memory driver.",
	Long: `Run loads the configuration, creates the queues, groups and ` +
		`bindings of its topology and runs the router until it is ` +
		`interrupted or the given duration has passed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runRouter(ctx, runOpts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.configPath, "config", "c", "",
		"path to the YAML configuration file")
	runCmd.Flags().StringSliceVar(&runOpts.envFiles, "env", []string{".env"},
		"environment files loaded before the BQS_* variables are read")
	runCmd.Flags().BoolVar(&runOpts.open, "open", false,
		"open the monitor in a browser")
	runCmd.Flags().BoolVar(&runOpts.watch, "watch", false,
		"apply log level changes of the configuration file while running")
	runCmd.Flags().DurationVar(&runOpts.duration, "duration", 0,
		"stop after this long, 0 runs until interrupted")

	rootCmd.AddCommand(runCmd)
}

func runRouter(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath, opts.envFiles...)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	inst, err := newInstance(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inst.close()

	if cfg.Recording.Enabled {
		done, err := startRecording(inst, cfg.Recording.Path, log)
		if err != nil {
			return err
		}
		defer done()
	}

	if err := inst.applyTopology(ctx, cfg.Topology); err != nil {
		return err
	}

	if cfg.Monitor.Enabled {
		stop, err := startMonitor(inst, cfg.Monitor.Port, opts.open, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	if opts.watch && opts.configPath != "" {
		go watchConfig(ctx, opts, log)
	}

	return inst.sched.Run(ctx)
}

// startRecording records relation events and the run properties. The
// returned function ends the recording.
func startRecording(
	inst *instance,
	path string,
	log zerolog.Logger,
) (func(), error) {
	rec, err := datarecording.New(path)
	if err != nil {
		return nil, err
	}

	hook, err := datarecording.NewRelationRecorder(rec, log)
	if err != nil {
		closeRecorder(rec, log)
		return nil, err
	}

	execRec, err := datarecording.NewExecRecorder(rec)
	if err != nil {
		closeRecorder(rec, log)
		return nil, err
	}

	inst.relation.AcceptHook(hook)
	execRec.Start(inst.sched.ID().String())

	log.Info().Str("path", path+".sqlite3").Msg("recording relation events")

	return func() {
		if err := execRec.End(); err != nil {
			log.Error().Err(err).Msg("run properties not recorded")
		}

		closeRecorder(rec, log)
	}, nil
}

func closeRecorder(rec datarecording.DataRecorder, log zerolog.Logger) {
	if err := rec.Close(); err != nil {
		log.Error().Err(err).Msg("recording not closed")
	}
}

func startMonitor(
	inst *instance,
	port int,
	open bool,
	log zerolog.Logger,
) (func(), error) {
	m := monitoring.NewMonitor(inst.sched).
		WithLogger(log).
		WithPortNumber(port)

	url, err := m.StartServer()
	if err != nil {
		return nil, err
	}

	if open {
		if err := browser.OpenURL(url); err != nil {
			log.Warn().Err(err).Msg("browser not opened")
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := m.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("monitor not shut down")
		}
	}, nil
}

func watchConfig(ctx context.Context, opts runOptions, log zerolog.Logger) {
	err := config.Watch(ctx, opts.configPath, func(cfg config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("configuration not reloaded")
			return
		}

		if err := logging.SetGlobalLevel(cfg.Log.Level); err != nil {
			log.Warn().Err(err).Msg("log level not changed")
			return
		}

		log.Info().Str("level", cfg.Log.Level).Msg("log level changed")
	}, opts.envFiles...)
	if err != nil {
		log.Warn().
			Err(err).
			Str("path", filepath.Clean(opts.configPath)).
			Msg("configuration not watched")
	}
}
