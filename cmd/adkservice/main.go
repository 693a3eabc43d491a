// Command adkservice lists the registered agent modules, validates agent
// config files and runs agents from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/adkservice/agentconfig"
	"github.com/hupe1980/adkservice/core"
	"github.com/hupe1980/adkservice/evaluation"
	"github.com/hupe1980/adkservice/logging"
	"github.com/hupe1980/adkservice/runner"
	"github.com/hupe1980/adkservice/session"

	_ "github.com/hupe1980/adkservice/systemagents/builderagent"
)

// RedisURLEnv selects the Redis session store when set.
const RedisURLEnv = "ADKSERVICE_REDIS_URL"

// errInvalidConfigs marks a validate run that found problems; details are
// already printed.
var errInvalidConfigs = errors.New("invalid agent configs")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code: 0 on success,
// 1 on failure and 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)

	var usage *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		fmt.Fprintf(stderr, "Error: %v\n", usage.err)
		return 2
	case errors.Is(err, errInvalidConfigs):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

type rootFlags struct {
	logLevel  string
	logFormat string
	dev       bool
	logger    logging.Logger
	sync      func() error
}

func (f *rootFlags) setupLogger(w io.Writer) error {
	level := logging.ParseLevel(f.logLevel)

	switch strings.ToLower(f.logFormat) {
	case "zap":
		zl, err := logging.NewZapLogger(level, f.dev)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		za := logging.NewZapAdapter(zl)
		f.logger, f.sync = za, za.Sync
	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(logging.LogrusLevel(level))
		if !f.dev {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		f.logger, f.sync = logging.NewLogrusAdapter(l), nil
	default:
		return usageErrorf("unknown log format %q", f.logFormat)
	}

	return nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "adkservice",
		Short: "Build and run agents from YAML configs",
		Long: `adkservice validates declarative agent configs and runs agents with a prompt.

Environment:
  OPENAI_API_KEY, ANTHROPIC_API_KEY   provider credentials
  ADKSERVICE_REDIS_URL                persist sessions in Redis (redis://host:port/db)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return flags.setupLogger(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if flags.sync != nil {
				_ = flags.sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageErrorf("a command is required")
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &usageError{err: err} })
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "zap", "log backend: zap or logrus")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human readable development logs")

	root.AddCommand(newModulesCmd(), newValidateCmd(), newRunCmd(flags))

	return root
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List registered agent modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range evaluation.Modules() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>...",
		Short: "Validate agent config files",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("at least one config path is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := false

			for _, path := range args {
				cfg, err := agentconfig.LoadConfig(path)
				if err == nil {
					err = cfg.Validate()
				}

				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s: invalid\n", path)
					for _, line := range strings.Split(err.Error(), "\n") {
						fmt.Fprintf(out, "  - %s\n", line)
					}
					continue
				}

				fmt.Fprintf(out, "%s: ok (%s %s)\n", path, cfg.Class(), cfg.Name)
			}

			if failed {
				return errInvalidConfigs
			}
			return nil
		},
	}
}

type runFlags struct {
	module    string
	config    string
	sessionID string
	stream    bool
	timeout   time.Duration
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [--module name | --config file] <prompt>",
		Short: "Run an agent with a prompt",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("a prompt is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), cmd.OutOrStdout(), root.logger, flags, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&flags.module, "module", "", "registered agent module to run")
	cmd.Flags().StringVar(&flags.config, "config", "", "agent config file to run")
	cmd.Flags().StringVar(&flags.sessionID, "session", "", "session id (default: new session)")
	cmd.Flags().BoolVar(&flags.stream, "stream", false, "stream partial model output")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "run timeout")
	cmd.MarkFlagsMutuallyExclusive("module", "config")
	cmd.MarkFlagsOneRequired("module", "config")

	return cmd
}

func runAgent(ctx context.Context, stdout io.Writer, logger logging.Logger, flags *runFlags, prompt string) error {
	root, err := loadRoot(flags, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := sessionStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionID := flags.sessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	r := runner.New(root, func(o *runner.Options) {
		o.SessionStore = store
		o.Logger = logger
	})

	_, events, errs, err := r.Run(ctx, sessionID, core.NewTextContent("user", prompt))
	if err != nil {
		return err
	}

	printEvents(stdout, events)

	if err := <-errs; err != nil {
		return err
	}

	return ctx.Err()
}

func loadRoot(flags *runFlags, logger logging.Logger) (core.Agent, error) {
	if flags.config != "" {
		return agentconfig.FromConfig(flags.config,
			agentconfig.WithStreaming(flags.stream), agentconfig.WithLogger(logger))
	}

	m, err := evaluation.Lookup(flags.module)
	if err != nil {
		return nil, err
	}

	return m.RootAgent, nil
}

func sessionStore(ctx context.Context) (core.SessionStore, func(), error) {
	url := os.Getenv(RedisURLEnv)
	if url == "" {
		return session.NewInMemoryStore(), func() {}, nil
	}

	store, err := session.NewRedisStoreFromURL(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	return store, func() { _ = store.Close() }, nil
}

// printEvents writes partial chunks inline and final messages per author.
func printEvents(w io.Writer, events <-chan core.Event) {
	streaming := false

	for ev := range events {
		switch {
		case ev.ErrorMessage != nil:
			fmt.Fprintf(w, "[%s] error: %s\n", ev.Author, *ev.ErrorMessage)
		case ev.Content == nil:
		case ev.IsPartial():
			if !streaming {
				fmt.Fprintf(w, "[%s] ", ev.Author)
				streaming = true
			}
			fmt.Fprint(w, ev.Content.Text())
		default:
			if streaming {
				fmt.Fprintln(w)
				streaming = false
				continue
			}
			for _, fc := range ev.GetFunctionCalls() {
				fmt.Fprintf(w, "[%s] call %s(%s)\n", ev.Author, fc.Name, fc.Arguments)
			}
			if text := ev.Content.Text(); text != "" {
				fmt.Fprintf(w, "[%s] %s\n", ev.Author, text)
			}
		}
	}
}
