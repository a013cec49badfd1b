package internal

import (
	"context"
	"fmt"
	"regexp"

	"githubevents/pkg/model"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EmitList accepts either a single topic or a list of topics in YAML.
type EmitList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *EmitList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := value.Decode(&topic); err != nil {
			return err
		}
		*e = EmitList{topic}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = topics
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list of strings")
	}
}

// Rule maps a govaluate expression over a stored event to one or more topics.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is a topic selected for publishing, optionally restricted to drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    []string
	drivers []string
	expr    *govaluate.EvaluableExpression
	// paths resolves JSONPath parameters against the raw payload.
	paths map[string]gval.Evaluable
}

// payloadParam holds the decoded delivery body for JSONPath lookups.
const payloadParam = "payload"

// jsonPathPattern matches $.a.b, $.a[0].b and $.labels[*].name.
var jsonPathPattern = regexp.MustCompile(`\$(?:\.[A-Za-z_][A-Za-z0-9_]*|\[[^\]]*\])+`)

// compileWhen replaces every JSONPath in a rule with a generated govaluate
// parameter, so `"bug" IN $.pull_request.labels[*].name` evaluates against the
// payload.
func compileWhen(when string) (string, map[string]gval.Evaluable, error) {
	var (
		paths  map[string]gval.Evaluable
		byPath = map[string]string{}
		bad    error
	)
	rewritten := jsonPathPattern.ReplaceAllStringFunc(when, func(path string) string {
		if name, ok := byPath[path]; ok {
			return name
		}
		eval, err := jsonpath.New(path)
		if err != nil {
			if bad == nil {
				bad = fmt.Errorf("jsonpath %q: %w", path, err)
			}
			return path
		}
		if paths == nil {
			paths = map[string]gval.Evaluable{}
		}
		name := fmt.Sprintf("jsonpath_%d", len(byPath))
		byPath[path] = name
		paths[name] = eval
		return name
	})
	return rewritten, paths, bad
}

// RuleEngine evaluates notification rules. It is read-only after construction.
type RuleEngine struct {
	rules  []compiledRule
	logger *zap.Logger
}

// NewRuleEngine compiles rules, failing on the first invalid expression.
func NewRuleEngine(rules []Rule, logger *zap.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		when, paths, err := compileWhen(rule.When)
		if err != nil {
			return nil, fmt.Errorf("compile rule %d (%q): %w", i, rule.When, err)
		}
		expr, err := govaluate.NewEvaluableExpression(when)
		if err != nil {
			return nil, fmt.Errorf("compile rule %d (%q): %w", i, rule.When, err)
		}
		compiled = append(compiled, compiledRule{
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			paths:   paths,
		})
	}
	return &RuleEngine{rules: compiled, logger: logger}, nil
}

// Len reports the number of compiled rules.
func (r *RuleEngine) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

// RuleParams builds the evaluation parameters for a stored event: the record
// fields, the originating X-GitHub-Event as "event", and the flattened payload
// under "payload." keys. The decoded payload itself is kept for JSONPath rules.
func RuleParams(eventType string, event model.Event, payload map[string]interface{}) map[string]interface{} {
	params := event.Fields()
	params["event"] = eventType
	if payload != nil {
		params[payloadParam] = payload
	}
	for key, value := range Flatten(payload) {
		params["payload."+key] = value
	}
	return params
}

// Evaluate returns every topic whose rule matches. Rules that fail to
// evaluate, for example because a parameter is missing, do not match.
func (r *RuleEngine) Evaluate(params map[string]interface{}) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	var matches []RuleMatch
	for _, rule := range r.rules {
		ruleParams, err := rule.resolve(params)
		if err != nil {
			r.logger.Debug("rule jsonpath unresolved",
				zap.String("rule", rule.expr.String()),
				zap.Error(err),
			)
			continue
		}
		result, err := rule.expr.Evaluate(ruleParams)
		if err != nil {
			r.logger.Debug("rule evaluation failed",
				zap.String("rule", rule.expr.String()),
				zap.Error(err),
			)
			continue
		}
		if ok, _ := result.(bool); !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

func (c compiledRule) resolve(params map[string]interface{}) (map[string]interface{}, error) {
	if len(c.paths) == 0 {
		return params, nil
	}
	payload, ok := params[payloadParam]
	if !ok {
		return nil, fmt.Errorf("no payload for jsonpath")
	}
	out := make(map[string]interface{}, len(params)+len(c.paths))
	for key, value := range params {
		out[key] = value
	}
	for name, eval := range c.paths {
		value, err := eval(context.Background(), payload)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}
