package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/conorfennell/lexideck/internal/clock"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
	"github.com/conorfennell/lexideck/internal/session"
	"github.com/conorfennell/lexideck/internal/srs"
)

func init() {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Study due and new cards in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runStudy,
	}

	cmd.Flags().StringSliceP("types", "t", nil, "Card types to study (default all)")
	cmd.Flags().StringSlice("status", nil, "Only study cards with these statuses: new, learning, review, leech")
	cmd.Flags().StringArrayP("attr", "a", nil, "Attribute filter type.key=v1,v2 (repeatable)")
	cmd.Flags().Int("new-per-day", 0, "New cards to introduce (default from config)")

	RootCmd.AddCommand(cmd)
}

func runStudy(cmd *cobra.Command, args []string) error {
	types, _ := cmd.Flags().GetStringSlice("types")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	attrs, _ := cmd.Flags().GetStringArray("attr")
	newPerDay, _ := cmd.Flags().GetInt("new-per-day")

	f, err := parseFilters(types, statuses, attrs)
	if err != nil {
		return err
	}

	a, err := openApp(cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer a.Close()

	set := a.settings
	if newPerDay > 0 {
		set.NewCardsPerDay = newPerDay
	}

	sch := session.New(a.db, a.alg, a.builder, a.clock)
	if err := sch.Build(cmd.Context(), f, set); err != nil {
		return err
	}
	return study(cmd.Context(), sch, a.clock, cmd.InOrStdin(), cmd.OutOrStdout(), sleep)
}

// parseFilters turns the study flags into queue filters. Attribute filters
// look like "vocabulary.level=A1,A2".
func parseFilters(types, statuses, attrs []string) (queue.Filters, error) {
	f := queue.AllTypes()
	if len(types) > 0 {
		f.CardTypes = make(map[domain.CardType]bool, len(types))
		for _, name := range types {
			t, err := domain.ParseCardType(strings.TrimSpace(name))
			if err != nil {
				return queue.Filters{}, err
			}
			f.CardTypes[t] = true
		}
	}
	for _, s := range statuses {
		f.Statuses = append(f.Statuses, queue.Status(strings.TrimSpace(s)))
	}
	for _, arg := range attrs {
		lhs, values, ok := strings.Cut(arg, "=")
		typeName, key, ok2 := strings.Cut(lhs, ".")
		if !ok || !ok2 || key == "" || values == "" {
			return queue.Filters{}, fmt.Errorf("invalid attribute filter %q, want type.key=value[,value]", arg)
		}
		t, err := domain.ParseCardType(typeName)
		if err != nil {
			return queue.Filters{}, err
		}
		if f.Attributes == nil {
			f.Attributes = make(map[domain.CardType]map[string][]string)
		}
		if f.Attributes[t] == nil {
			f.Attributes[t] = make(map[string][]string)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				f.Attributes[t][key] = append(f.Attributes[t][key], v)
			}
		}
	}
	return f, nil
}

// waitFunc blocks for d or until ctx is done.
type waitFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errQuit = errors.New("quit")

// study drives a built session from line-oriented input until it completes
// or the user quits.
func study(ctx context.Context, sch *session.Scheduler, clk clock.Clock, in io.Reader, out io.Writer, wait waitFunc) error {
	sc := bufio.NewScanner(in)
	reviewed := 0
	defer func() {
		fmt.Fprintf(out, "Reviewed %d cards.\n", reviewed)
	}()

	for {
		sch.Tick(clk.Now())
		if sch.State() == session.Complete {
			fmt.Fprintln(out, "Session complete.")
			return nil
		}

		_, card, ok := sch.Current()
		if !ok {
			secs, held := sch.WaitSeconds()
			if !held {
				return nil
			}
			now := clk.Now()
			due := now.Add(time.Duration(secs) * time.Second)
			fmt.Fprintf(out, "Next learning card %s.\n", humanize.RelTime(due, now, "ago", "from now"))
			if err := wait(ctx, due.Sub(now)); err != nil {
				return err
			}
			continue
		}

		err := studyCard(ctx, sch, clk, card, sc, out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		reviewed++
	}
}

func studyCard(ctx context.Context, sch *session.Scheduler, clk clock.Clock, card domain.Card, sc *bufio.Scanner, out io.Writer) error {
	st := sch.Stats()
	fmt.Fprintf(out, "\n[%s] new %d, review %d, learning %d\n", card.Type, st.NewCount, st.ReviewCount, st.LearningCount)
	fmt.Fprintf(out, "  %s\n", card.Front)
	if card.Context != "" {
		fmt.Fprintf(out, "  (%s)\n", card.Context)
	}
	fmt.Fprint(out, "Press Enter to show the answer, q to quit: ")
	if line, ok := readLine(sc); !ok || line == "q" {
		return errQuit
	}
	fmt.Fprintf(out, "  %s\n", card.Back)

	for {
		fmt.Fprint(out, "Rate 1 again, 2 hard, 3 good, 4 easy: ")
		line, ok := readLine(sc)
		if !ok || line == "q" {
			return errQuit
		}
		q, err := srs.ParseQuality(strings.ToLower(line))
		if err != nil {
			fmt.Fprintln(out, "Please answer 1-4.")
			continue
		}

		res, err := sch.Review(ctx, q)
		var serr *session.StoreError
		switch {
		case errors.As(err, &serr):
			fmt.Fprintf(out, "warning: %v\n", err)
		case err != nil:
			return err
		}

		now := clk.Now()
		if res.Requeue != nil {
			fmt.Fprintf(out, "Again %s.\n", humanize.RelTime(now.Add(res.Requeue.Delay), now, "ago", "from now"))
		} else {
			fmt.Fprintf(out, "Next review %s.\n", humanize.RelTime(res.Card.SRS.DueAt, now, "ago", "from now"))
		}
		if res.Leech {
			fmt.Fprintln(out, "This card is a leech; consider rewriting it.")
		}
		return nil
	}
}

func readLine(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}
