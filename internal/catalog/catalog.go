// Package catalog holds the fixed vocabulary of the portal: the known survey
// questions, the demographic dimensions and the rules a saved view must obey.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Filter dimensions, in display order.
const (
	DimensionIndustry = "industry"
	DimensionRegion   = "region"
	DimensionGender   = "gender"
	DimensionVote     = "vote"
)

// Dimensions lists every recognized filter / distribution dimension.
var Dimensions = []string{DimensionIndustry, DimensionRegion, DimensionGender, DimensionVote}

// DefaultDimension is the distribution dimension selected on a fresh dashboard.
const DefaultDimension = DimensionIndustry

var (
	ErrUnknownQuestion  = errors.New("unknown question code")
	ErrUnknownDimension = errors.New("unknown distribution dimension")
	ErrUnknownFilterKey = errors.New("unknown filter key")
)

// Question is one entry of the question table.
type Question struct {
	Code  string `yaml:"code" json:"code"`
	Label string `yaml:"label" json:"label"`
}

// Catalog is the question table. The zero value is not usable; use Default or Load.
type Catalog struct {
	questions []Question
	labels    map[string]string
}

var defaultQuestions = []Question{
	{Code: "regulatory_pressure", Label: "Regulatory Pressure"},
	{Code: "policy_confidence", Label: "Policy Confidence"},
}

// Default returns the built-in question table.
func Default() *Catalog {
	c, _ := New(defaultQuestions)
	return c
}

// New builds a catalog from an ordered question list.
func New(questions []Question) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, errors.New("catalog needs at least one question")
	}

	c := &Catalog{
		questions: make([]Question, 0, len(questions)),
		labels:    make(map[string]string, len(questions)),
	}
	for _, q := range questions {
		if q.Code == "" {
			return nil, errors.New("question code cannot be empty")
		}
		if _, dup := c.labels[q.Code]; dup {
			return nil, fmt.Errorf("duplicate question code %q", q.Code)
		}
		if q.Label == "" {
			q.Label = q.Code
		}
		c.questions = append(c.questions, q)
		c.labels[q.Code] = q.Label
	}
	return c, nil
}

type catalogFile struct {
	Questions []Question `yaml:"questions"`
}

// Load reads a YAML question table. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	c, err := New(f.Questions)
	if err != nil {
		return nil, fmt.Errorf("build catalog %s: %w", path, err)
	}
	return c, nil
}

// Questions returns the ordered question table.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// DefaultQuestion is the first question of the table.
func (c *Catalog) DefaultQuestion() string {
	return c.questions[0].Code
}

// Label returns the display label for a question code, or the code itself when
// the code is not in the table.
func (c *Catalog) Label(code string) string {
	if label, ok := c.labels[code]; ok {
		return label
	}
	return code
}

// HasQuestion reports whether code is a known question.
func (c *Catalog) HasQuestion(code string) bool {
	_, ok := c.labels[code]
	return ok
}

// IsDimension reports whether name is one of the four recognized dimensions.
func IsDimension(name string) bool {
	for _, d := range Dimensions {
		if d == name {
			return true
		}
	}
	return false
}

// EmptyFilters returns the four-key filter map with every value unconstrained.
func EmptyFilters() map[string]string {
	out := make(map[string]string, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = ""
	}
	return out
}

// NormalizeFilters returns a four-key copy of in: missing keys become "" and
// unknown keys are dropped.
func NormalizeFilters(in map[string]string) map[string]string {
	out := EmptyFilters()
	for _, d := range Dimensions {
		out[d] = in[d]
	}
	return out
}

// ValidateView checks the saved view invariants.
func (c *Catalog) ValidateView(questionCode, dimension string, filters map[string]string) error {
	if !c.HasQuestion(questionCode) {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionCode)
	}
	if !IsDimension(dimension) {
		return fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	for key := range filters {
		if !IsDimension(key) {
			return fmt.Errorf("%w: %q", ErrUnknownFilterKey, key)
		}
	}
	return nil
}
