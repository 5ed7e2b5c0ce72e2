package audit

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

// Actions recorded by the auth services.
const (
	ActionLogin          = "auth.login"
	ActionPasswordChange = "auth.password_change"
	ActionCodeRequest    = "client.code_request"
	ActionCodeValidate   = "client.code_validate"
	ActionAccountLocked  = "account.locked"
)

// Classification tags for security review.
const (
	TagOK                = "ok"
	TagMissingInput      = "missing_input"
	TagRateLimited       = "rate_limited"
	TagUnknownAccount    = "unknown_account"
	TagWrongPassword     = "wrong_password"
	TagAccountInactive   = "account_inactive"
	TagAccountBlocked    = "account_blocked"
	TagNoEmail           = "no_email"
	TagDispatchFailed    = "dispatch_failed"
	TagCodeExpired       = "code_expired"
	TagWrongCode         = "wrong_code"
	TagAttemptsExhausted = "attempts_exhausted"
	TagStoreError        = "store_error"
)

// Event is one append-only audit record. Detail never carries secrets.
type Event struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Outcome   Outcome   `json:"outcome"`
	Tag       string    `json:"tag"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink is a destination for audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, event Event) error
}

const defaultSinkTimeout = 3 * time.Second

// Recorder fans each event out to every sink. Sink failures are logged and
// never reach the caller.
type Recorder struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

func NewRecorder(logger *zap.Logger, sinks []Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sinks:   sinks,
		logger:  logger,
		timeout: defaultSinkTimeout,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps the event with an id and timestamp and writes it to all sinks.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if event.ID == "" {
		event.ID = r.newID(event.Timestamp)
	}

	// audit writes outlive a cancelled request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range r.sinks {
		g.Go(func() error {
			if err := sink.Write(ctx, event); err != nil {
				r.logger.Error("Audit sink write failed",
					util.String("sink", sink.Name()),
					util.String("event_id", event.ID),
					util.String("action", event.Action),
					util.ErrorField(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Recorder) newID(t time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}
