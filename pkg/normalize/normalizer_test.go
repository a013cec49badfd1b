package normalize

import (
	"errors"
	"testing"
	"time"

	"githubevents/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var ingestion = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return New(
		WithClock(func() time.Time { return ingestion }),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestNormalizePush(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("push", []byte(`{
		"ref": "refs/heads/main",
		"pusher": {"name": "alice"},
		"sender": {"login": "alice-gh"},
		"head_commit": {"id": "abc123", "timestamp": "2024-01-01T00:00:00Z"}
	}`))

	require.Equal(t, Record, res.Outcome)
	require.NotNil(t, res.Event)
	assert.Equal(t, "abc123", res.Event.RequestID)
	assert.Equal(t, "alice", res.Event.Author)
	assert.Equal(t, model.ActionPush, res.Event.Action)
	assert.Nil(t, res.Event.FromBranch)
	assert.Equal(t, "main", res.Event.ToBranch)
	assert.True(t, res.Event.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-01T00:00:00+00:00", model.FormatTimestamp(res.Event.Timestamp))
}

func TestNormalizePushBranchNames(t *testing.T) {
	cases := map[string]string{
		"refs/heads/main":              "main",
		"refs/heads/feature/login-fix": "feature/login-fix",
		"refs/tags/v1.0.0":             "refs/tags/v1.0.0",
		"develop":                      "develop",
	}
	n := newTestNormalizer(t)
	for ref, want := range cases {
		res := n.Normalize("push", []byte(`{"ref":"`+ref+`","pusher":{"name":"a"}}`))
		require.Equal(t, Record, res.Outcome, ref)
		assert.Equal(t, want, res.Event.ToBranch, ref)
		assert.Nil(t, res.Event.FromBranch, ref)
	}
}

func TestNormalizePushAuthorFallback(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("push", []byte(`{"ref":"refs/heads/main","sender":{"login":"octocat"}}`))
	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "octocat", res.Event.Author)

	res = n.Normalize("push", []byte(`{"ref":"refs/heads/main","pusher":{"email":"x@example.com"}}`))
	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "Unknown", res.Event.Author)
}

func TestNormalizePushWithoutHeadCommitUsesIngestionTime(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("push", []byte(`{"ref":"refs/heads/main","pusher":{"name":"alice"},"head_commit":null}`))

	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "push_1741064767", res.Event.RequestID)
	assert.True(t, res.Event.Timestamp.Equal(ingestion))
}

func TestNormalizePushKeepsOffsetInstant(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("push", []byte(`{"ref":"refs/heads/main","head_commit":{"id":"c1","timestamp":"2024-05-01T12:00:00+02:00"}}`))

	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "2024-05-01T10:00:00+00:00", model.FormatTimestamp(res.Event.Timestamp))
}

func TestNormalizePushFaults(t *testing.T) {
	n := newTestNormalizer(t)

	cases := map[string]string{
		"missing ref":    `{"pusher":{"name":"alice"}}`,
		"malformed json": `{"ref":`,
		"wrong ref type": `{"ref": 42}`,
		"bad timestamp":  `{"ref":"refs/heads/main","head_commit":{"timestamp":"yesterday"}}`,
		"array payload":  `[]`,
	}
	for name, payload := range cases {
		res := n.Normalize("push", []byte(payload))
		assert.Equal(t, Fault, res.Outcome, name)
		assert.Nil(t, res.Event, name)
		assert.Error(t, res.Err, name)
	}
}

func TestNormalizeMissingRefWrapsSentinel(t *testing.T) {
	res := newTestNormalizer(t).Normalize("push", []byte(`{}`))

	require.Equal(t, Fault, res.Outcome)
	assert.True(t, errors.Is(res.Err, errMissingField))
}

func TestNormalizePullRequestOpenedAndSynchronize(t *testing.T) {
	n := newTestNormalizer(t)

	for _, action := range []string{"opened", "synchronize"} {
		res := n.Normalize("pull_request", []byte(`{
			"action": "`+action+`",
			"pull_request": {
				"id": 42,
				"user": {"login": "bob"},
				"head": {"ref": "feature"},
				"base": {"ref": "main"},
				"created_at": "2024-02-02T10:00:00Z"
			}
		}`))

		require.Equal(t, Record, res.Outcome, action)
		assert.Equal(t, model.ActionPullRequest, res.Event.Action, action)
		assert.Equal(t, "pr_42", res.Event.RequestID, action)
		assert.Equal(t, "bob", res.Event.Author, action)
		require.NotNil(t, res.Event.FromBranch, action)
		assert.Equal(t, "feature", *res.Event.FromBranch, action)
		assert.Equal(t, "main", res.Event.ToBranch, action)
		assert.Equal(t, "2024-02-02T10:00:00+00:00", model.FormatTimestamp(res.Event.Timestamp), action)
	}
}

func TestNormalizePullRequestDefaults(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("pull_request", []byte(`{"action":"opened","pull_request":{"id":7,"head":{"ref":"f"},"base":{"ref":"main"}}}`))

	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "Unknown", res.Event.Author)
	assert.True(t, res.Event.Timestamp.Equal(ingestion))
}

func TestNormalizeMerge(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("pull_request", []byte(`{
		"action": "closed",
		"pull_request": {
			"id": 99,
			"merged": true,
			"user": {"login": "bob"},
			"merged_by": {"login": "carol"},
			"head": {"ref": "feature"},
			"base": {"ref": "main"},
			"merged_at": "2024-03-03T08:30:00Z"
		}
	}`))

	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, model.ActionMerge, res.Event.Action)
	assert.Equal(t, "merge_99", res.Event.RequestID)
	assert.Equal(t, "carol", res.Event.Author)
	assert.Equal(t, "2024-03-03T08:30:00+00:00", model.FormatTimestamp(res.Event.Timestamp))
}

func TestNormalizeMergeAuthorFallback(t *testing.T) {
	n := newTestNormalizer(t)

	res := n.Normalize("pull_request", []byte(`{"action":"closed","pull_request":{"id":1,"merged":true,"user":{"login":"bob"},"merged_by":null,"base":{"ref":"main"}}}`))
	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "bob", res.Event.Author)
	assert.Nil(t, res.Event.FromBranch)
	assert.True(t, res.Event.Timestamp.Equal(ingestion))

	res = n.Normalize("pull_request", []byte(`{"action":"closed","pull_request":{"id":1,"merged":true,"base":{"ref":"main"}}}`))
	require.Equal(t, Record, res.Outcome)
	assert.Equal(t, "Unknown", res.Event.Author)
}

func TestNormalizePullRequestSkipped(t *testing.T) {
	n := newTestNormalizer(t)

	cases := map[string]string{
		"closed not merged": `{"action":"closed","pull_request":{"id":99,"merged":false}}`,
		"closed no flag":    `{"action":"closed","pull_request":{"id":99}}`,
		"labeled":           `{"action":"labeled","pull_request":{"id":99,"base":{"ref":"main"}}}`,
		"reopened":          `{"action":"reopened","pull_request":{"id":99,"base":{"ref":"main"}}}`,
		"no action":         `{"pull_request":{"id":99}}`,
	}
	for name, payload := range cases {
		res := n.Normalize("pull_request", []byte(payload))
		assert.Equal(t, Skipped, res.Outcome, name)
		assert.Nil(t, res.Event, name)
		assert.NoError(t, res.Err, name)
	}
}

func TestNormalizePullRequestFaults(t *testing.T) {
	n := newTestNormalizer(t)

	cases := map[string]string{
		"no pull_request": `{"action":"opened"}`,
		"no id":           `{"action":"opened","pull_request":{"base":{"ref":"main"}}}`,
		"no base":         `{"action":"synchronize","pull_request":{"id":3}}`,
		"id as string":    `{"action":"opened","pull_request":{"id":"3"}}`,
	}
	for name, payload := range cases {
		res := n.Normalize("pull_request", []byte(payload))
		assert.Equal(t, Fault, res.Outcome, name)
		assert.Nil(t, res.Event, name)
	}
}

func TestNormalizeUnknownEventIgnoresPayload(t *testing.T) {
	n := newTestNormalizer(t)

	for _, eventType := range []string{"issues", "ping", "", "PUSH"} {
		res := n.Normalize(eventType, []byte(`not json at all`))
		assert.Equal(t, Skipped, res.Outcome, eventType)
		assert.Nil(t, res.Event, eventType)
	}
}

func TestPackageNormalizeReturnsRecordOrNil(t *testing.T) {
	event := Normalize("push", []byte(`{"ref":"refs/heads/dev","pusher":{"name":"a"},"head_commit":{"id":"x"}}`))
	require.NotNil(t, event)
	assert.Equal(t, "dev", event.ToBranch)

	assert.Nil(t, Normalize("pull_request", []byte(`{"action":"closed","pull_request":{"id":99,"merged":false}}`)))
	assert.Nil(t, Normalize("push", []byte(`{}`)))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "record", Record.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "fault", Fault.String())
}
