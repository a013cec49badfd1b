// Package normalize maps GitHub push and pull_request webhook payloads onto
// model.Event records.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"githubevents/pkg/model"

	hooks "github.com/go-playground/webhooks/v6/github"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

const (
	branchRefPrefix = "refs/heads/"
	unknownAuthor   = "Unknown"
)

// SupportedEvents lists the X-GitHub-Event values that can produce a record.
var SupportedEvents = []hooks.Event{hooks.PushEvent, hooks.PullRequestEvent}

// Outcome tells a record apart from the two ways of producing nothing.
type Outcome int

const (
	// Record means Result.Event holds a normalized event.
	Record Outcome = iota
	// Skipped covers unknown event types and uninteresting pull_request actions.
	Skipped
	// Fault means the payload could not be mapped; Result.Err has the cause.
	Fault
)

func (o Outcome) String() string {
	switch o {
	case Record:
		return "record"
	case Skipped:
		return "skipped"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// Result is the outcome of normalizing a single delivery.
type Result struct {
	Outcome Outcome
	Event   *model.Event
	Err     error
}

// Normalizer converts webhook payloads. The zero value is not usable; use New.
type Normalizer struct {
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the ingestion clock.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets the logger used to report faults.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New returns a Normalizer using wall-clock ingestion time and a no-op logger
// unless overridden.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize maps a payload to a record, or nil when nothing should be stored.
func Normalize(eventType string, payload []byte) *model.Event {
	return defaultNormalizer.Normalize(eventType, payload).Event
}

// Normalize never fails; faults are logged and reported through Result.
func (n *Normalizer) Normalize(eventType string, payload []byte) Result {
	var res Result
	switch hooks.Event(eventType) {
	case hooks.PushEvent:
		res = n.push(payload)
	case hooks.PullRequestEvent:
		res = n.pullRequest(payload)
	default:
		return Result{Outcome: Skipped}
	}
	if res.Outcome == Fault {
		n.logger.Warn("webhook normalization failed",
			zap.String("event", eventType),
			zap.Error(res.Err),
		)
	}
	return res
}

func (n *Normalizer) ingestedAt() time.Time {
	return n.now().UTC()
}

func (n *Normalizer) push(payload []byte) Result {
	parsed, err := github.ParseWebHook(string(hooks.PushEvent), payload)
	if err != nil {
		return fault(fmt.Errorf("decode push payload: %w", err))
	}
	ev, ok := parsed.(*github.PushEvent)
	if !ok {
		return fault(fmt.Errorf("unexpected push payload type %T", parsed))
	}

	ref := ev.GetRef()
	if ref == "" {
		return fault(errMissing("ref"))
	}

	now := n.ingestedAt()
	head := ev.GetHeadCommit()

	requestID, ok := firstPresent(head.GetID())
	if !ok {
		requestID = "push_" + strconv.FormatInt(now.Unix(), 10)
	}

	return Result{
		Outcome: Record,
		Event: &model.Event{
			RequestID: requestID,
			Author:    authorOf(ev.GetPusher().GetName(), ev.GetSender().GetLogin()),
			Action:    model.ActionPush,
			ToBranch:  strings.TrimPrefix(ref, branchRefPrefix),
			Timestamp: timestampOr(head.GetTimestamp(), now),
		},
	}
}

func (n *Normalizer) pullRequest(payload []byte) Result {
	parsed, err := github.ParseWebHook(string(hooks.PullRequestEvent), payload)
	if err != nil {
		return fault(fmt.Errorf("decode pull_request payload: %w", err))
	}
	ev, ok := parsed.(*github.PullRequestEvent)
	if !ok {
		return fault(fmt.Errorf("unexpected pull_request payload type %T", parsed))
	}

	pr := ev.GetPullRequest()
	switch action := ev.GetAction(); {
	case action == "opened" || action == "synchronize":
		return n.pullRequestRecord(pr, model.ActionPullRequest, "pr_",
			pr.GetCreatedAt(),
			pr.GetUser().GetLogin(),
		)
	case action == "closed" && pr.GetMerged():
		return n.pullRequestRecord(pr, model.ActionMerge, "merge_",
			pr.GetMergedAt(),
			pr.GetMergedBy().GetLogin(), pr.GetUser().GetLogin(),
		)
	default:
		return Result{Outcome: Skipped}
	}
}

func (n *Normalizer) pullRequestRecord(pr *github.PullRequest, action model.Action, idPrefix string, ts github.Timestamp, authors ...string) Result {
	if pr == nil {
		return fault(errMissing("pull_request"))
	}
	if pr.ID == nil {
		return fault(errMissing("pull_request.id"))
	}
	base := pr.GetBase().GetRef()
	if base == "" {
		return fault(errMissing("pull_request.base.ref"))
	}

	return Result{
		Outcome: Record,
		Event: &model.Event{
			RequestID:  idPrefix + strconv.FormatInt(pr.GetID(), 10),
			Author:     authorOf(authors...),
			Action:     action,
			FromBranch: model.StringPtr(pr.GetHead().GetRef()),
			ToBranch:   base,
			Timestamp:  timestampOr(ts, n.ingestedAt()),
		},
	}
}

// firstPresent returns the first non-empty candidate.
func firstPresent(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if c != "" {
			return c, true
		}
	}
	return "", false
}

func authorOf(candidates ...string) string {
	if author, ok := firstPresent(candidates...); ok {
		return author
	}
	return unknownAuthor
}

func timestampOr(ts github.Timestamp, fallback time.Time) time.Time {
	if ts.IsZero() {
		return fallback
	}
	return ts.Time.UTC()
}

var errMissingField = errors.New("missing required field")

func errMissing(field string) error {
	return fmt.Errorf("%w: %s", errMissingField, field)
}

func fault(err error) Result {
	return Result{Outcome: Fault, Err: err}
}
