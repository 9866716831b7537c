package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dayboard/internal/eventbus"
	"dayboard/internal/model"
	"dayboard/internal/planner"
	logx "dayboard/pkg/logx"
)

// MarkerDigest is the execution marker claimed per user and day.
const MarkerDigest = "telegram_digest_sent"

var ErrDisabled = errors.New("notifier disabled")

type Config struct {
	Enabled       bool
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Store is the persistence the digest needs.
type Store interface {
	Users(ctx context.Context) ([]model.User, error)
	ClaimMarker(ctx context.Context, owner int64, name string, day model.Date) (bool, error)
	ResetMarker(ctx context.Context, owner int64, name string) error
}

// Board builds the dashboard a digest is rendered from.
type Board interface {
	Today() model.Date
	Promote(ctx context.Context, owner int64, today model.Date, opt planner.PromoteOptions) (planner.PromoteResult, error)
	Dashboard(ctx context.Context, owner int64, today model.Date) (planner.Dashboard, error)
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	UserID int64     `json:"user_id"`
	Text   string    `json:"text"`
}

// Report summarises one digest run.
type Report struct {
	Day     model.Date `json:"day"`
	Users   int        `json:"users"`
	Sent    int        `json:"sent"`
	Skipped int        `json:"skipped"`
	Failed  int        `json:"failed"`
}

// Service renders and sends digests. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender Sender
	store  Store
	board  Board
	bus    eventbus.Bus
	log    logx.Logger

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender Sender, store Store, board Board, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, store: store, board: board, bus: bus, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SendDigests sends today's digest to every user with a linked chat.
// A failure for one user does not stop the others; the joined errors are
// returned with the report.
func (s *Service) SendDigests(ctx context.Context) (Report, error) {
	if !s.Enabled() {
		return Report{}, ErrDisabled
	}
	day := s.board.Today()
	rep := Report{Day: day}
	users, err := s.store.Users(ctx)
	if err != nil {
		return rep, fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, u := range users {
		if u.TelegramChatID == 0 {
			continue
		}
		rep.Users++
		sent, err := s.SendDigest(ctx, u, day)
		switch {
		case err != nil:
			rep.Failed++
			errs = append(errs, fmt.Errorf("user %d: %w", u.ID, err))
		case sent:
			rep.Sent++
		default:
			rep.Skipped++
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	s.log.Info("digest run done",
		logx.String("day", day.String()),
		logx.Int("users", rep.Users),
		logx.Int("sent", rep.Sent),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
	)
	return rep, errors.Join(errs...)
}

// SendDigest sends u the digest for day. It reports false without error when
// the Today bucket is empty or the digest already went out.
func (s *Service) SendDigest(ctx context.Context, u model.User, day model.Date) (bool, error) {
	if u.TelegramChatID == 0 {
		return false, nil
	}
	// Today's staging rows must be in the bucket lists before rendering.
	if _, err := s.board.Promote(ctx, u.ID, day, planner.PromoteOptions{Trigger: "digest"}); err != nil {
		return false, err
	}
	d, err := s.board.Dashboard(ctx, u.ID, day)
	if err != nil {
		return false, err
	}
	if len(d.Today.Incomplete)+len(d.Today.Completed) == 0 {
		return false, nil
	}
	claimed, err := s.store.ClaimMarker(ctx, u.ID, MarkerDigest, day)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	text := FormatDigest(day, d.Today)
	if err := s.sendWithRetry(ctx, u.TelegramChatID, text); err != nil {
		if rerr := s.store.ResetMarker(context.WithoutCancel(ctx), u.ID, MarkerDigest); rerr != nil {
			s.log.Warn("digest marker release failed", logx.Int64("user", u.ID), logx.Err(rerr))
		}
		return false, err
	}

	s.appendHistory(u.ID, text)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.DigestSent, Data: eventbus.DigestSentInfo{
			OwnerID: u.ID, Items: len(d.Today.Incomplete),
		}})
	}
	return true, nil
}

func (s *Service) sendWithRetry(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.sender.SendText(callCtx, chatID, text)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Debug("digest send failed", logx.Err(err), logx.Int("attempt", attempt))
		if attempt > cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// History returns recently sent digests, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(userID int64, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), UserID: userID, Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

// FormatDigest renders a Today bucket as a plain-text message.
func FormatDigest(day model.Date, b planner.Bucket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today, %s\n", day.Format("Mon 2 Jan 2006"))
	if len(b.Incomplete) == 0 {
		sb.WriteString("\nAll done.\n")
	} else {
		sb.WriteString("\n")
		for _, t := range b.Incomplete {
			sb.WriteString("• ")
			sb.WriteString(t.Title)
			if t.ListName != "" && t.ListName != model.ListToday {
				fmt.Fprintf(&sb, " [%s]", t.ListName)
			}
			sb.WriteString("\n")
		}
	}
	if n := len(b.Completed); n > 0 {
		fmt.Fprintf(&sb, "\nCompleted: %d\n", n)
	}
	return sb.String()
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
