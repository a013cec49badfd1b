package internal

import (
	"testing"
	"time"

	"githubevents/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func mergeEvent() model.Event {
	return model.Event{
		ID:         "evt-1",
		RequestID:  "merge_99",
		Author:     "carol",
		Action:     model.ActionMerge,
		FromBranch: model.StringPtr("feature"),
		ToBranch:   "main",
		Timestamp:  time.Date(2024, 3, 3, 8, 30, 0, 0, time.UTC),
	}
}

func TestRuleEngineEvaluate(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{When: `action == "merge" && to_branch == "main"`, Emit: EmitList{"merges.main"}},
		{When: `action == "push"`, Emit: EmitList{"pushes"}},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Len())

	matches := engine.Evaluate(RuleParams("pull_request", mergeEvent(), nil))

	require.Len(t, matches, 1)
	assert.Equal(t, "merges.main", matches[0].Topic)
	assert.Empty(t, matches[0].Drivers)
}

func TestRuleEngineUsesPayloadAndEventType(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{
			When:    `event == "pull_request" && [payload.repository.full_name] == "octo/hello"`,
			Emit:    EmitList{"octo.hello", "audit"},
			Drivers: []string{"kafka"},
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	payload := map[string]interface{}{
		"repository": map[string]interface{}{"full_name": "octo/hello"},
	}
	matches := engine.Evaluate(RuleParams("pull_request", mergeEvent(), payload))

	require.Len(t, matches, 2)
	assert.Equal(t, RuleMatch{Topic: "octo.hello", Drivers: []string{"kafka"}}, matches[0])
	assert.Equal(t, "audit", matches[1].Topic)
}

func TestRuleEngineMissingParameterDoesNotMatch(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{When: `[payload.missing] == true`, Emit: EmitList{"never"}},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Empty(t, engine.Evaluate(RuleParams("push", mergeEvent(), map[string]interface{}{})))
}

func TestRuleEngineNullFromBranchIsEmpty(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{When: `from_branch == ""`, Emit: EmitList{"direct"}},
	}, nil)
	require.NoError(t, err)

	push := mergeEvent()
	push.Action = model.ActionPush
	push.FromBranch = nil

	assert.Len(t, engine.Evaluate(RuleParams("push", push, nil)), 1)
}

func TestNewRuleEngineRejectsInvalidExpression(t *testing.T) {
	_, err := NewRuleEngine([]Rule{{When: `action == `, Emit: EmitList{"x"}}}, nil)
	assert.Error(t, err)
}

func TestNilRuleEngineMatchesNothing(t *testing.T) {
	var engine *RuleEngine
	assert.Nil(t, engine.Evaluate(map[string]interface{}{}))
	assert.Zero(t, engine.Len())
}

func TestEmitListAcceptsScalarOrSequence(t *testing.T) {
	var rules []Rule
	err := yaml.Unmarshal([]byte(`
- when: action == "push"
  emit: pushes
- when: action == "merge"
  emit: [merges, audit]
`), &rules)
	require.NoError(t, err)

	require.Len(t, rules, 2)
	assert.Equal(t, EmitList{"pushes"}, rules[0].Emit)
	assert.Equal(t, EmitList{"merges", "audit"}, rules[1].Emit)
}

func TestRuleEngineJSONPath(t *testing.T) {
	engine, err := NewRuleEngine([]Rule{
		{When: `$.pull_request.draft == false && $.pull_request.number > 10`, Emit: EmitList{"ready"}},
		{When: `"bug" IN $.pull_request.labels[*].name`, Emit: EmitList{"bugs"}},
		{When: `$.pull_request.labels[1].name == "ui" && $.pull_request.labels[1].name != "bug"`, Emit: EmitList{"ui"}},
		{When: `$.repository.private == true`, Emit: EmitList{"never"}},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	payload := map[string]interface{}{
		"pull_request": map[string]interface{}{
			"draft":  false,
			"number": 42.0,
			"labels": []interface{}{
				map[string]interface{}{"name": "bug"},
				map[string]interface{}{"name": "ui"},
			},
		},
	}
	matches := engine.Evaluate(RuleParams("pull_request", mergeEvent(), payload))

	topics := make([]string, 0, len(matches))
	for _, m := range matches {
		topics = append(topics, m.Topic)
	}
	assert.Equal(t, []string{"ready", "bugs", "ui"}, topics)

	assert.Empty(t, engine.Evaluate(RuleParams("pull_request", mergeEvent(), nil)))
}

func TestCompileWhenReusesParameterPerPath(t *testing.T) {
	when, paths, err := compileWhen(`$.a.b == 1 || $.a.b == 2 || [payload.c] == 3`)
	require.NoError(t, err)
	assert.Equal(t, `jsonpath_0 == 1 || jsonpath_0 == 2 || [payload.c] == 3`, when)
	assert.Len(t, paths, 1)

	when, paths, err = compileWhen(`action == "push"`)
	require.NoError(t, err)
	assert.Equal(t, `action == "push"`, when)
	assert.Nil(t, paths)
}
