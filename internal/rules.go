package internal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Rule maps a stored record to notification topics.
//
// When is a govaluate expression. Record fields (action, author, request_id,
// from_branch, to_branch, timestamp) plus event and provider are plain
// variables. Flattened payload keys and JSONPath lookups use the bracket form:
// [pull_request.draft], [$.repository.full_name].
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList accepts a single topic or a list of topics.
type EmitList []string

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

// RuleMatch is a topic selected for an event, optionally restricted to drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    []string
	drivers []string
	expr    *govaluate.EvaluableExpression
}

type RuleEngine struct {
	rules  []compiledRule
	logger zerolog.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		switch haystack := args[0].(type) {
		case string:
			needle, ok := args[1].(string)
			return ok && strings.Contains(haystack, needle), nil
		case ruleList:
			for _, item := range haystack {
				if reflect.DeepEqual(item, args[1]) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}
	},
	"hasPrefix": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("hasPrefix expects 2 arguments, got %d", len(args))
		}
		value, ok := args[0].(string)
		prefix, okPrefix := args[1].(string)
		return ok && okPrefix && strings.HasPrefix(value, prefix), nil
	},
}

func NewRuleEngine(cfg RulesConfig, logger zerolog.Logger) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rule.When, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
		})
	}

	return &RuleEngine{rules: rules, logger: logger}, nil
}

// Evaluate returns the topics matched by event.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if r == nil {
		return nil
	}
	return r.EvaluateWithLogger(event, r.logger)
}

// EvaluateWithLogger is Evaluate with a caller-scoped logger for evaluation errors.
func (r *RuleEngine) EvaluateWithLogger(event Event, logger zerolog.Logger) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	params := newRuleParameters(event)
	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		result, err := rule.expr.Eval(params)
		if err != nil {
			logger.Debug().Err(err).Str("rule", rule.when).Msg("rule eval failed")
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

// ruleList wraps JSON arrays handed to govaluate. A bare []interface{}
// argument would be spliced into the function's argument list.
type ruleList []interface{}

type ruleParameters struct {
	fields map[string]interface{}
	flat   map[string]interface{}
	raw    interface{}
}

func newRuleParameters(event Event) ruleParameters {
	fields := event.Record.Fields()
	fields["event"] = event.Name
	fields["provider"] = event.Provider

	raw := event.RawObject
	if raw == nil && len(event.RawPayload) > 0 {
		_ = json.Unmarshal(event.RawPayload, &raw)
	}
	flat := map[string]interface{}{}
	if object, ok := raw.(map[string]interface{}); ok {
		flat = Flatten(object)
	}
	return ruleParameters{fields: fields, flat: flat, raw: raw}
}

func (p ruleParameters) Get(name string) (interface{}, error) {
	value, err := p.lookup(name)
	if err != nil {
		return nil, err
	}
	if list, ok := value.([]interface{}); ok {
		return ruleList(list), nil
	}
	return value, nil
}

func (p ruleParameters) lookup(name string) (interface{}, error) {
	if strings.HasPrefix(name, "$") {
		if p.raw == nil {
			return nil, fmt.Errorf("no payload for %s", name)
		}
		return jsonpath.Get(name, p.raw)
	}
	if value, ok := p.fields[name]; ok {
		return value, nil
	}
	if value, ok := p.flat[name]; ok {
		return value, nil
	}
	return nil, fmt.Errorf("unknown parameter %q", name)
}
