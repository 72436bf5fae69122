package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rifa-api/internal/config"
	"rifa-api/internal/events"
	"rifa-api/internal/store"
)

// Notifier delivers out-of-band admin notifications. Always best-effort:
// a failed notification never fails the triggering transition.
type Notifier interface {
	NotifyAdmin(text string)
}

// Counters is the fast-display cache for per-user active purchase counts.
// The source of truth stays the order table; this is a cache only.
type Counters interface {
	SetActivePurchases(ctx context.Context, userID string, n int) error
	ActivePurchases(ctx context.Context, userID string) (int, bool)
}

// Service implements the raffle core: holds, checkout, proof review and
// purchase limits. Handlers stay thin; all rules live here.
type Service struct {
	store    store.Store
	cfg      config.RaffleConfig
	log      zerolog.Logger
	notifier Notifier
	events   events.Publisher
	counters Counters
	now      func() time.Time
	randInt  func(n int) int
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithCounters(c Counters) Option {
	return func(s *Service) { s.counters = c }
}

// WithClock overrides the time source (tests drive expiry with it).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the random source used by random holds.
func WithRand(randInt func(n int) int) Option {
	return func(s *Service) { s.randInt = randInt }
}

func New(st store.Store, cfg config.RaffleConfig, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store: st,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fingerprint is the deterministic digest that collapses duplicate
// checkout attempts: hex sha256 of "user:sorted ids", truncated to 32.
func fingerprint(userID string, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	sum := sha256.Sum256([]byte(userID + ":" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])[:32]
}

// normalizeIDs deduplicates and sorts the requested numbers, dropping
// anything outside the pool.
func (s *Service) normalizeIDs(numbers []int64) []int64 {
	seen := make(map[int64]struct{}, len(numbers))
	out := make([]int64, 0, len(numbers))
	for _, n := range numbers {
		if n < 0 || n >= int64(s.cfg.TotalNumbers) {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) intn(n int) int {
	if s.randInt != nil {
		return s.randInt(n)
	}
	return rand.Intn(n)
}

func (s *Service) shuffle(ids []int64) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func (s *Service) holdExpiry() *time.Time {
	if s.cfg.HoldTTL <= 0 {
		return nil
	}
	t := s.now().Add(s.cfg.HoldTTL)
	return &t
}

func (s *Service) notifyAdmin(format string, args ...interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyAdmin(fmt.Sprintf(format, args...))
}

func (s *Service) publish(ctx context.Context, ev events.OrderEvent) {
	if s.events == nil {
		return
	}
	ev.At = s.now()
	if err := s.events.PublishOrderEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Str("order_id", ev.OrderID).
			Msg("no se pudo publicar el evento")
	}
}

// refreshActivePurchases recomputes the derived counter from the order
// table and pushes it to the user row and the cache. Recompute, never
// increment: drift is impossible when the count is always re-derived.
func (s *Service) refreshActivePurchases(ctx context.Context, userID string) {
	n, err := s.store.CountOpenOrders(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("no se pudo recontar compras activas")
		return
	}
	if err := s.store.SetActivePurchases(ctx, userID, n); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("no se pudo guardar el contador")
	}
	if s.counters != nil {
		if err := s.counters.SetActivePurchases(ctx, userID, n); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("no se pudo cachear el contador")
		}
	}
}
