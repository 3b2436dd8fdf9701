// Package model holds the data-model types shared by every component of
// the execution engine: the YAML-shaped Value/Condition tagged sums, and
// the Contract/Template/Job/Network record types (spec.md §3).
package model

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProducerKind is the closed set of value-producer discriminators.
type ProducerKind string

const (
	ProducerAbiEncode        ProducerKind = "abi-encode"
	ProducerConstructorEncode ProducerKind = "constructor-encode"
	ProducerComputeCreate2   ProducerKind = "compute-create2"
	ProducerReadBalance      ProducerKind = "read-balance"
	ProducerBasicArithmetic  ProducerKind = "basic-arithmetic"
	ProducerCall             ProducerKind = "call"
	ProducerContractExists   ProducerKind = "contract-exists"
)

var producerKinds = map[string]ProducerKind{
	string(ProducerAbiEncode):         ProducerAbiEncode,
	string(ProducerConstructorEncode): ProducerConstructorEncode,
	string(ProducerComputeCreate2):    ProducerComputeCreate2,
	string(ProducerReadBalance):       ProducerReadBalance,
	string(ProducerBasicArithmetic):   ProducerBasicArithmetic,
	string(ProducerCall):              ProducerCall,
	string(ProducerContractExists):    ProducerContractExists,
}

// referencePattern matches a whole-string `{{expr}}` value. Strings that
// merely contain `{{…}}` as a substring are literals, per spec.md §4.4.
var referencePattern = regexp.MustCompile(`^\{\{(.*)\}\}$`)

// Value is the tagged sum described in spec.md §3: a literal scalar, a
// whole-string `{{expr}}` reference, or a value-producer object. It is
// decoded directly from YAML as `Raw` and classified lazily by the
// resolver, so the parser never needs to know the producer grammar.
type Value struct {
	Raw any
}

// UnmarshalYAML decodes any YAML scalar/mapping/sequence into Raw
// unchanged, preserving map[string]any / []any / string / int / float /
// bool shapes for later classification.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v.Raw = normalizeYAML(raw)
	return nil
}

// normalizeYAML recursively rewrites map[any]any (as produced by some YAML
// decoders) into map[string]any so downstream type switches only ever see
// one map shape.
func normalizeYAML(in any) any {
	switch v := in.(type) {
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return in
	}
}

// IsReference reports whether the value is a whole-string `{{expr}}`
// reference, returning the inner expression text.
func (v Value) IsReference() (expr string, ok bool) {
	s, isString := v.Raw.(string)
	if !isString {
		return "", false
	}
	matches := referencePattern.FindStringSubmatch(s)
	if matches == nil {
		return "", false
	}
	return strings.TrimSpace(matches[1]), true
}

// IsProducer reports whether the value is a value-producer object,
// returning its discriminator kind and the raw field map.
func (v Value) IsProducer() (kind ProducerKind, fields map[string]any, ok bool) {
	m, isMap := v.Raw.(map[string]any)
	if !isMap {
		return "", nil, false
	}
	typeField, hasType := m["type"]
	typeStr, isString := typeField.(string)
	if !hasType || !isString {
		return "", nil, false
	}
	kind, known := producerKinds[typeStr]
	if !known {
		return "", nil, false
	}
	return kind, m, true
}

// IsLiteral reports whether the value is a plain scalar/array/map with no
// reference or producer shape — i.e. it should be returned unchanged.
func (v Value) IsLiteral() bool {
	if _, ok := v.IsReference(); ok {
		return false
	}
	if _, _, ok := v.IsProducer(); ok {
		return false
	}
	return true
}

// ConditionKind discriminates the three Condition forms (spec.md §3).
type ConditionKind string

const (
	ConditionContractExists ConditionKind = "contract-exists"
	ConditionJobCompleted   ConditionKind = "job-completed"
	ConditionGeneric        ConditionKind = "value"
)

// Condition is one entry of a `skip_condition` list.
type Condition struct {
	Kind    ConditionKind
	Address Value // set when Kind == ConditionContractExists
	Job     string // set when Kind == ConditionJobCompleted
	Expr    Value  // set when Kind == ConditionGeneric
}

// UnmarshalYAML decodes a condition node, recognizing the two named forms
// before falling back to a generic boolean-valued expression.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = normalizeYAML(raw)

	if m, ok := raw.(map[string]any); ok {
		if ce, exists := m[string(ConditionContractExists)]; exists {
			ceMap, _ := ce.(map[string]any)
			c.Kind = ConditionContractExists
			c.Address = Value{Raw: ceMap["address"]}
			return nil
		}
		if jc, exists := m[string(ConditionJobCompleted)]; exists {
			jcMap, _ := jc.(map[string]any)
			jobName, _ := jcMap["job"].(string)
			c.Kind = ConditionJobCompleted
			c.Job = jobName
			return nil
		}
	}

	c.Kind = ConditionGeneric
	c.Expr = Value{Raw: raw}
	return nil
}
