package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mystery-hunt-client/internal/app"
	"mystery-hunt-client/internal/domain"
)

const playHelp = `Type an answer and press enter. Commands:
  :file <path>  upload an image answer
  :solved       report the puzzle as solved
  :hint         request the hint for this question
  :ack          continue after a present
  :refresh      reload the level from the server
  :quit         leave`

// NewPlayCmd plays a mystery level by level on the terminal.
func NewPlayCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "play <mystery-id> [level-id]",
		Short: "Play a mystery in the terminal",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, flags, func(ctx context.Context, d *deps) error {
				p := &player{
					service:   d.service,
					token:     d.token,
					mysteryID: args[0],
					out:       cmd.OutOrStdout(),
					advance:   make(chan struct{}, 1),
				}
				levelID := ""
				if len(args) == 2 {
					levelID = args[1]
				}
				return p.run(ctx, cmd.InOrStdin(), levelID)
			})
		},
	}
}

type player struct {
	service   *app.GameService
	token     string
	mysteryID string
	out       io.Writer
	advance   chan struct{}
	session   *app.LevelSession
}

func (p *player) run(ctx context.Context, in io.Reader, levelID string) error {
	levels, err := p.service.Levels(ctx, p.token, p.mysteryID)
	if err != nil {
		return err
	}
	printLevels(p.out, levels)
	start, ok := pickLevel(levels, levelID)
	if !ok {
		return fmt.Errorf("%w: no playable level", domain.ErrLevelNotFound)
	}
	fmt.Fprintln(p.out, playHelp)
	defer p.closeSession()

	if !p.open(ctx, start) {
		return nil
	}
	p.render()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == ":quit" {
			return nil
		}
		if line == "" {
			continue
		}
		p.handle(ctx, line)
		if !p.follow(ctx) {
			return nil
		}
		p.render()
	}
	return scanner.Err()
}

// pickLevel prefers levelID, then the first unlocked open level, then the
// first unlocked one.
func pickLevel(levels []domain.Level, levelID string) (domain.Level, bool) {
	if levelID != "" {
		for _, l := range levels {
			if l.ID == levelID {
				return l, true
			}
		}
		return domain.Level{}, false
	}
	for _, l := range levels {
		if l.IsUnlocked && !l.IsCompleted {
			return l, true
		}
	}
	for _, l := range levels {
		if l.IsUnlocked {
			return l, true
		}
	}
	return domain.Level{}, false
}

func (p *player) continuation(context.Context) error {
	select {
	case p.advance <- struct{}{}:
	default:
	}
	return nil
}

func (p *player) open(ctx context.Context, parent domain.Level) bool {
	session, notice, err := p.service.OpenLevel(ctx, p.token, parent, p.continuation)
	if notice != nil {
		p.notify(*notice)
	}
	if session == nil {
		p.notify(app.NotifyError("Open level", err))
		return false
	}
	p.session = session
	fmt.Fprintf(p.out, "\n== %s ==\n", session.Level().Name)
	return p.follow(ctx)
}

// follow moves to the next level after a continuation. It reports false
// once the mystery has no further unlocked level.
func (p *player) follow(ctx context.Context) bool {
	select {
	case <-p.advance:
	default:
		return true
	}
	current := p.session.Level().ID
	p.closeSession()
	next, ok, err := p.service.NextLevel(ctx, p.token, p.mysteryID, current)
	if err != nil {
		p.notify(app.NotifyError("Load levels", err))
		return false
	}
	if !ok {
		if levels, ok := p.service.CachedLevels(p.token, p.mysteryID); ok {
			printLevels(p.out, levels)
		}
		fmt.Fprintln(p.out, "No further level is unlocked yet.")
		return false
	}
	return p.open(ctx, next)
}

func (p *player) handle(ctx context.Context, line string) {
	s := p.session
	var (
		n   app.Notification
		err error
	)
	switch {
	case line == ":hint":
		n, err = s.RequestHint(ctx)
	case line == ":solved":
		if err = s.MarkPuzzleSolved(); err == nil {
			n, err = s.Submit(ctx)
		}
	case line == ":ack":
		err = s.Acknowledge(ctx)
	case line == ":refresh":
		_, err = s.Refresh(ctx)
		if err != nil {
			n = app.NotifyError("Refresh level", err)
		}
	case strings.HasPrefix(line, ":file "):
		var upload domain.Upload
		upload, err = readUpload(strings.TrimSpace(strings.TrimPrefix(line, ":file ")))
		if err != nil {
			n = app.NotifyError("Read file", err)
			break
		}
		if err = s.SetUpload(upload); err == nil {
			n, err = s.Submit(ctx)
		}
	default:
		if err = s.SetText(line); err == nil {
			n, err = s.Submit(ctx)
		}
	}
	if errors.Is(err, domain.ErrSessionClosed) {
		return
	}
	if n.Kind != "" {
		p.notify(n)
	}
}

func readUpload(path string) (domain.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Upload{}, err
	}
	return domain.Upload{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func (p *player) render() {
	if p.session == nil {
		return
	}
	snap := p.session.Snapshot()
	if snap.Present != nil {
		fmt.Fprintf(p.out, "You found a present: %s\n  %s\n(:ack to continue)\n", snap.Present.Title, presentBody(*snap.Present))
		return
	}
	if snap.Question == nil {
		return
	}
	fmt.Fprintf(p.out, "[%d/%d %s] %s\n", snap.Index+1, snap.Total, snap.Stars, snap.Question.Prompt)
	if snap.Phase == app.PhasePendingReview.String() {
		fmt.Fprintln(p.out, "  (waiting for review, :refresh to check)")
	}
}

func (p *player) notify(n app.Notification) {
	fmt.Fprintf(p.out, "» %s: %s\n", n.Title, n.Message)
}

func (p *player) closeSession() {
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
}
