package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Policy names accepted under duplicateRules.policy
const (
	PolicyOrdered  = "ordered"
	PolicyWeighted = "weighted"
)

// DefaultConfidenceThreshold gates auto-decision when the config leaves it unset
const DefaultConfidenceThreshold = 70

// KnownRules are the rule names usable in an ordered policy, in default order
var KnownRules = []string{RuleLossless, RuleBitrate, RuleMetadata}

// IsKnownRule reports whether name is an ordered-policy rule
func IsKnownRule(name string) bool {
	for _, r := range KnownRules {
		if r == name {
			return true
		}
	}
	return false
}

// RuleConfiguration selects how duplicate groups are resolved automatically.
// Exactly one of Ordered or Weighted is set.
type RuleConfiguration struct {
	ConfidenceThreshold int
	RevealMetadata      bool
	Ordered             *OrderedRuleConfig
	Weighted            *WeightedConfig
}

// OrderedRuleConfig applies rules in order until one separates the best member
type OrderedRuleConfig struct {
	RuleOrder      []string `yaml:"ruleOrder" json:"ruleOrder" validate:"required,min=1,unique,dive,knownrule"`
	DestinationDir string   `yaml:"destinationDir" json:"destinationDir"`
}

// WeightedConfig scores every member on several factors
type WeightedConfig struct {
	ScoreDifferenceThreshold float64  `yaml:"scoreDifferenceThreshold" json:"scoreDifferenceThreshold" validate:"gte=0,lte=100"`
	Weights                  Weights  `yaml:"weights" json:"weights"`
	PathPriority             []string `yaml:"pathPriority" json:"pathPriority"`
}

// Weights for the weighted policy, summing to 100
type Weights struct {
	Lossless        int `yaml:"lossless" json:"lossless" validate:"gte=0,lte=100"`
	Bitrate         int `yaml:"bitrate" json:"bitrate" validate:"gte=0,lte=100"`
	PathPriority    int `yaml:"pathPriority" json:"pathPriority" validate:"gte=0,lte=100"`
	MetadataQuality int `yaml:"metadataQuality" json:"metadataQuality" validate:"gte=0,lte=100"`
}

// Sum returns the total of all weights
func (w Weights) Sum() int {
	return w.Lossless + w.Bitrate + w.PathPriority + w.MetadataQuality
}

// PolicyName returns the active variant name
func (c *RuleConfiguration) PolicyName() string {
	switch {
	case c.Weighted != nil:
		return PolicyWeighted
	case c.Ordered != nil:
		return PolicyOrdered
	}
	return ""
}

// DestinationDir is empty for the weighted policy
func (c *RuleConfiguration) DestinationDir() string {
	if c.Ordered != nil {
		return c.Ordered.DestinationDir
	}
	return ""
}

// DefaultRuleConfiguration is the ordered policy used when no rules are configured
func DefaultRuleConfiguration() RuleConfiguration {
	return RuleConfiguration{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RevealMetadata:      true,
		Ordered: &OrderedRuleConfig{
			RuleOrder: append([]string(nil), KnownRules...),
		},
	}
}

// ruleDocument is the flat on-disk shape shared by both variants
type ruleDocument struct {
	Policy                   string   `yaml:"policy,omitempty"`
	ConfidenceThreshold      *int     `yaml:"confidenceThreshold,omitempty"`
	RevealMetadata           *bool    `yaml:"revealMetadata,omitempty"`
	RuleOrder                []string `yaml:"ruleOrder,omitempty"`
	DestinationDir           string   `yaml:"destinationDir,omitempty"`
	ScoreDifferenceThreshold *float64 `yaml:"scoreDifferenceThreshold,omitempty"`
	Weights                  *Weights `yaml:"weights,omitempty"`
	PathPriority             []string `yaml:"pathPriority,omitempty"`
}

// UnmarshalYAML picks the variant from an explicit policy key, or from the
// shape of the document when the key is absent.
func (c *RuleConfiguration) UnmarshalYAML(value *yaml.Node) error {
	var doc ruleDocument
	if err := value.Decode(&doc); err != nil {
		return err
	}

	policy := doc.Policy
	if policy == "" {
		hasWeighted := doc.Weights != nil || doc.ScoreDifferenceThreshold != nil || len(doc.PathPriority) > 0
		hasOrdered := len(doc.RuleOrder) > 0 || doc.DestinationDir != ""
		switch {
		case hasWeighted && hasOrdered:
			return fmt.Errorf("duplicateRules mixes weighted and ordered fields; set policy explicitly")
		case hasWeighted:
			policy = PolicyWeighted
		default:
			policy = PolicyOrdered
		}
	}

	out := RuleConfiguration{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RevealMetadata:      true,
	}
	if doc.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *doc.ConfidenceThreshold
	}
	if doc.RevealMetadata != nil {
		out.RevealMetadata = *doc.RevealMetadata
	}

	switch policy {
	case PolicyOrdered:
		order := doc.RuleOrder
		if len(order) == 0 {
			order = append([]string(nil), KnownRules...)
		}
		out.Ordered = &OrderedRuleConfig{RuleOrder: order, DestinationDir: doc.DestinationDir}
	case PolicyWeighted:
		w := &WeightedConfig{PathPriority: doc.PathPriority}
		if doc.Weights != nil {
			w.Weights = *doc.Weights
		}
		if doc.ScoreDifferenceThreshold != nil {
			w.ScoreDifferenceThreshold = *doc.ScoreDifferenceThreshold
		}
		out.Weighted = w
	default:
		return fmt.Errorf("unknown duplicateRules policy %q", policy)
	}

	*c = out
	return nil
}

// MarshalYAML writes the active variant with an explicit policy key
func (c RuleConfiguration) MarshalYAML() (interface{}, error) {
	reveal := c.RevealMetadata
	threshold := c.ConfidenceThreshold
	doc := ruleDocument{
		Policy:              c.PolicyName(),
		ConfidenceThreshold: &threshold,
		RevealMetadata:      &reveal,
	}
	switch {
	case c.Weighted != nil:
		separation := c.Weighted.ScoreDifferenceThreshold
		weights := c.Weighted.Weights
		doc.ScoreDifferenceThreshold = &separation
		doc.Weights = &weights
		doc.PathPriority = c.Weighted.PathPriority
	case c.Ordered != nil:
		doc.RuleOrder = c.Ordered.RuleOrder
		doc.DestinationDir = c.Ordered.DestinationDir
	}
	return doc, nil
}
