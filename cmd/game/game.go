package game

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/datastore"
	"github.com/wolfhowl/bioacoustics/internal/game"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability"
	"github.com/wolfhowl/bioacoustics/internal/playback"
)

const help = `commands:
  list                  show clips and their zones
  play <clip>           play a clip
  assign <clip>... <zone>
  unassign <clip>...
  validate              score the grouping and reveal the true zones
  reset                 start a new round
  quit`

// Command creates the game command.
func Command(settings *conf.Settings, m *observability.Metrics) *cobra.Command {
	var mute bool

	cmd := &cobra.Command{
		Use:   "game <test-dir>",
		Short: "Sort unlabeled clips by ear and compare with the truth",
		Long: `Draw clips of the configured classes from <test-dir>/<class>, hide their
labels and let the player group them into zones A, B, C, ... A grouping
that matches the true classes under any relabelling of zones scores 100%.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var player playback.Player = playback.NoopPlayer{}
			if !mute {
				dp, err := playback.NewDevicePlayer()
				if err != nil {
					logger.Global().Module("game").Warn("audio playback unavailable", logger.Error(err))
				} else {
					player = dp
				}
			}

			session, err := game.New(game.OptionsFromSettings(args[0], &settings.Game), player, m.Evaluation)
			if err != nil {
				_ = player.Close()
				return err
			}
			defer session.Close()

			r := &repl{
				session:  session,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				prompt:   isatty.IsTerminal(os.Stdin.Fd()),
				settings: settings,
			}
			defer r.close()
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringSlice("classes", nil, "Classes to draw clips from, in zone order")
	cmd.Flags().Int("samples", 0, "Clips per class")
	cmd.Flags().Bool("record", false, "Store validated rounds in the database")
	cmd.Flags().BoolVar(&mute, "mute", false, "Do not open an audio device")
	for key, flag := range map[string]string{
		"game.classes":         "classes",
		"game.samplesperclass": "samples",
		"game.record":          "record",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("error binding flags: %v", err))
		}
	}
	return cmd
}

type repl struct {
	session  *game.Session
	in       io.Reader
	out      io.Writer
	prompt   bool
	settings *conf.Settings
	store    *datastore.Store
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "zones: %s\n%s\n", strings.Join(r.session.Zones(), " "), help)
	r.list()

	scanner := bufio.NewScanner(r.in)
	for {
		if r.prompt {
			fmt.Fprint(r.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
		case "list", "l":
			r.list()
		case "play", "p":
			for _, name := range args {
				if err = r.session.Play(ctx, name); err != nil {
					break
				}
			}
		case "assign", "a":
			if len(args) < 2 {
				fmt.Fprintln(r.out, "usage: assign <clip>... <zone>")
				continue
			}
			zone := args[len(args)-1]
			for _, name := range args[:len(args)-1] {
				if err = r.session.Assign(name, zone); err != nil {
					break
				}
			}
		case "unassign", "u":
			for _, name := range args {
				if err = r.session.Unassign(name); err != nil {
					break
				}
			}
		case "validate", "v":
			err = r.validate(ctx)
		case "reset", "r":
			if err = r.session.Reset(); err == nil {
				r.list()
			}
		case "quit", "q", "exit":
			return nil
		case "help", "h", "?":
			fmt.Fprintln(r.out, help)
		default:
			fmt.Fprintf(r.out, "unknown command %q\n", cmd)
		}
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *repl) list() {
	clips := r.session.Clips()
	byZone := make(map[string][]string)
	var unassigned []string
	for _, c := range clips {
		if c.Zone == "" {
			unassigned = append(unassigned, c.Name)
			continue
		}
		byZone[c.Zone] = append(byZone[c.Zone], c.Name)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Zone", "Clips"})
	for _, z := range r.session.Zones() {
		tw.AppendRow(table.Row{z, strings.Join(byZone[z], " ")})
	}
	tw.AppendFooter(table.Row{"unassigned", strings.Join(unassigned, " ")})
	fmt.Fprintln(r.out, tw.Render())
}

func (r *repl) validate(ctx context.Context) error {
	res := r.session.Validate()

	byZone := make(map[string][]string)
	for name, zone := range res.Truth {
		byZone[zone] = append(byZone[zone], name)
	}
	for _, z := range r.session.Zones() {
		names := byZone[z]
		slices.SortFunc(names, compareNumeric)
		fmt.Fprintf(r.out, "%s: %s\n", z, strings.Join(names, " "))
	}
	fmt.Fprintf(r.out, "grouping accuracy: %d/%d (%.2f%%)\n", res.Correct, res.Total, res.Score*100)

	if !r.settings.Game.Record {
		return nil
	}
	if r.store == nil {
		store, err := datastore.Open(&r.settings.Output, nil)
		if err != nil {
			return err
		}
		r.store = store
	}
	_, err := r.store.SaveGameResult(ctx, &datastore.GameResult{
		Classes: strings.Join(r.settings.Game.Classes, ","),
		Clips:   res.Total,
		Correct: res.Correct,
		Score:   res.Score,
	})
	return err
}

func (r *repl) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}

// compareNumeric orders display names "1".."N" by value.
func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
