package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gefen/config"
	"gefen/events"
	"gefen/model"
	"gefen/provider"
	"gefen/reveal"
	"gefen/ui"
)

// errReplyFailed is returned by ask when the session produced an error entry
// instead of a reply.
var errReplyFailed = errors.New("no reply could be produced")

type rootFlags struct {
	configPath string
	interval   time.Duration
	step       int
	seed       uint64
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "gefen",
		Short:         "Chat with a simulated assistant in the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer closeLog.Close()
			return runTUI(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "settings file (default "+config.GetSettingsFilePath()+")")
	pf.DurationVar(&flags.interval, "interval", time.Duration(config.DefaultIntervalMS)*time.Millisecond, "delay between revealed characters")
	pf.IntVar(&flags.step, "step", config.DefaultStep, "characters revealed per tick")
	pf.Uint64Var(&flags.seed, "seed", 0, "seed for reply selection (0 picks one at random)")
	pf.BoolVar(&flags.debug, "debug", false, "write debug.log to the data directory")

	root.AddCommand(newAskCmd(flags))
	return root
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <text>",
		Short: "Ask one question and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer closeLog.Close()

			ctrl := newController(cfg, log.Logger)
			defer ctrl.Close()
			return runAsk(cmd.Context(), ctrl, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
}

// setup loads the configuration, applies explicitly set flags on top of it
// and starts logging.
func setup(cmd *cobra.Command, flags *rootFlags) (*config.Config, io.Closer, error) {
	settingsPath := flags.configPath
	if settingsPath == "" {
		settingsPath = config.GetSettingsFilePath()
	}
	cfg, err := config.LoadFrom(config.ExpandPath(settingsPath), ".env")
	if err != nil {
		return nil, nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("interval") {
		cfg.Reveal.IntervalMS = int(flags.interval / time.Millisecond)
	}
	if fs.Changed("step") {
		cfg.Reveal.Step = flags.step
	}
	if fs.Changed("seed") {
		cfg.Responses.Seed = flags.seed
	}
	if fs.Changed("debug") {
		cfg.Debug = flags.debug
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "invalid flags")
	}

	closer, err := config.InitLogging(cfg.DataDir(), cfg.Debug)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("component", "main").Str("version", Version).Str("settings", settingsPath).Msg("starting")
	return cfg, closer, nil
}

// newController wires a canned source and a real-clock scheduler into a
// session controller.
func newController(cfg *config.Config, logger zerolog.Logger) *model.Controller {
	lo, hi := cfg.Latency()
	sourceOpts := []provider.CannedOption{
		provider.WithPool(cfg.Responses.Pool),
		provider.WithLatency(lo, hi),
		provider.WithSourceLogger(logger),
	}
	if cfg.Responses.Seed != 0 {
		sourceOpts = append(sourceOpts, provider.WithSeed(cfg.Responses.Seed))
	}

	scheduler := reveal.New(reveal.RealClock(),
		reveal.WithInterval(cfg.RevealInterval()),
		reveal.WithStep(cfg.Reveal.Step),
		reveal.WithLogger(logger),
	)

	return model.NewController(provider.NewCannedSource(sourceOpts...), scheduler,
		model.WithLogger(logger),
		model.WithHistoryLimit(cfg.Chat.HistoryLimit),
		model.WithReplyTimeout(cfg.ReplyTimeout()),
		model.WithErrorText(cfg.Responses.ErrorText),
	)
}

// runTUI runs the chat view. Snapshots travel from the controller through
// the event bus to the view; the program ends when the user quits or the
// bridge fails.
func runTUI(ctx context.Context, cfg *config.Config) error {
	logger := log.Logger
	ctrl := newController(cfg, logger)
	defer ctrl.Close()

	pubsub := events.NewPubSub(logger)
	defer pubsub.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Subscribe before the bridge publishes the initial snapshot
	viewFeed, err := events.Listen(gctx, pubsub, ctrl.SessionID(), logger)
	if err != nil {
		return err
	}
	feed, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	bridge := events.NewBridge(pubsub, logger)
	g.Go(func() error {
		return bridge.Run(gctx, feed)
	})

	g.Go(func() error {
		// The bridge stops once the controller closes its feed
		defer ctrl.Close()

		view := ui.NewAppView(ctrl, viewFeed,
			ui.WithSeedPrompts(cfg.Chat.SeedPrompts),
			ui.WithLogger(logger),
		)
		p := tea.NewProgram(view, tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return errors.Wrap(err, "error running gefen")
		}
		return nil
	})

	return g.Wait()
}

// runAsk submits text and writes the reply to w as it is revealed. It
// returns once the session is idle again.
func runAsk(ctx context.Context, ctrl *model.Controller, text string, w io.Writer) error {
	feed, cancel := ctrl.Subscribe()
	defer cancel()

	base := len(ctrl.Snapshot().Messages)
	if !ctrl.Submit(text) {
		return errors.New("nothing to ask: input is empty or the session is busy")
	}

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "ask interrupted")

		case snap, ok := <-feed:
			if !ok {
				return errors.New("session closed before the reply finished")
			}
			if len(snap.Messages) <= base+1 {
				continue
			}
			reply := snap.Messages[base+1]
			if reply.Error {
				return errors.Wrap(errReplyFailed, reply.Content)
			}
			if len(reply.Content) > printed {
				if _, err := io.WriteString(w, reply.Content[printed:]); err != nil {
					return errors.Wrap(err, "failed to write reply")
				}
				printed = len(reply.Content)
			}
			if snap.Phase == model.PhaseIdle {
				_, err := fmt.Fprintln(w)
				return errors.Wrap(err, "failed to write reply")
			}
		}
	}
}
