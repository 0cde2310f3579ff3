package stationconfig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"audiobook/internal/stationid"
)

//go:embed stations.yaml
var defaultCatalog []byte

// MainTemplate is the prompt template every station must define.
const MainTemplate = "main"

// DefaultCatalog returns the built-in station catalog source.
func DefaultCatalog() []byte {
	return append([]byte(nil), defaultCatalog...)
}

// Input is a free-text value requested from the operator before the first
// LLM call. The answer is stored in the station output under Key.
type Input struct {
	Key      string `yaml:"key"`
	Question string `yaml:"question"`
	Default  string `yaml:"default"`
}

// Choice describes an operator selection among options produced by the LLM.
type Choice struct {
	OptionsKey  string `yaml:"options_key"`
	LabelField  string `yaml:"label_field"`
	ChosenKey   string `yaml:"chosen_key"`
	Question    string `yaml:"question"`
	AllowCustom bool   `yaml:"allow_custom"`
}

// Followup is a second LLM exchange that refines the first reply via
// ProcessMessage. Its result lands under OutputKey.
type Followup struct {
	Template   string `yaml:"template"`
	OutputKey  string `yaml:"output_key"`
	ExpectJSON bool   `yaml:"expect_json"`
	Schema     Schema `yaml:"schema"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// Verdict configures validation stations whose reply carries a PASS/FAIL
// status and a list of issues with severities.
type Verdict struct {
	StatusKey       string   `yaml:"status_key"`
	IssuesKey       string   `yaml:"issues_key"`
	SeverityField   string   `yaml:"severity_field"`
	FailValue       string   `yaml:"fail_value"`
	FatalSeverities []string `yaml:"fatal_severities"`
	WarnSeverities  []string `yaml:"warn_severities"`
}

// Defaults apply to every station that leaves a field unset.
type Defaults struct {
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

// StationConfig is the resolved record for one station.
type StationConfig struct {
	ID              stationid.ID        `yaml:"id"`
	Name            string              `yaml:"name"`
	Description     string              `yaml:"description"`
	Model           string              `yaml:"model"`
	MaxTokens       int                 `yaml:"max_tokens"`
	Temperature     float64             `yaml:"-"`
	RawTemperature  *float64            `yaml:"temperature"`
	Dependencies    []stationid.ID      `yaml:"dependencies"`
	PromptTemplates map[string]Template `yaml:"prompt_templates"`
	Schema          Schema              `yaml:"schema"`
	Inputs          []Input             `yaml:"inputs"`
	Choice          *Choice             `yaml:"choice"`
	Followup        *Followup           `yaml:"followup"`
	Verdict         *Verdict            `yaml:"verdict"`
}

// Template returns the named prompt template.
func (c *StationConfig) Template(name string) (Template, bool) {
	tpl, ok := c.PromptTemplates[name]
	return tpl, ok
}

type catalogFile struct {
	Defaults Defaults         `yaml:"defaults"`
	Stations []*StationConfig `yaml:"stations"`
}

// Catalog is a parsed and validated set of station records.
type Catalog struct {
	Source   string
	Defaults Defaults
	byID     map[stationid.ID]*StationConfig
	ordered  []*StationConfig
}

// ParseCatalog decodes YAML station records, applies defaults and validates
// the result. Duplicate ids are an error.
func ParseCatalog(source string, r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file catalogFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("station catalog %s: %w", source, err)
	}

	cat := &Catalog{Source: source, Defaults: file.Defaults, byID: make(map[stationid.ID]*StationConfig, len(file.Stations))}
	var problems []string
	for idx, st := range file.Stations {
		if st == nil {
			problems = append(problems, fmt.Sprintf("stations[%d]: empty record", idx))
			continue
		}
		if _, dup := cat.byID[st.ID]; dup {
			problems = append(problems, fmt.Sprintf("station %s: duplicate id", st.ID))
			continue
		}
		applyDefaults(st, file.Defaults)
		problems = append(problems, validateStation(st)...)
		cat.byID[st.ID] = st
		cat.ordered = append(cat.ordered, st)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("station catalog %s: %s", source, strings.Join(problems, "; "))
	}
	sortConfigs(cat.ordered)
	return cat, nil
}

// ParseCatalogBytes is ParseCatalog over an in-memory document.
func ParseCatalogBytes(source string, data []byte) (*Catalog, error) {
	return ParseCatalog(source, bytes.NewReader(data))
}

// Stations returns every record ordered by id.
func (c *Catalog) Stations() []*StationConfig {
	return append([]*StationConfig(nil), c.ordered...)
}

// Lookup returns the record for id.
func (c *Catalog) Lookup(id stationid.ID) (*StationConfig, bool) {
	st, ok := c.byID[id]
	return st, ok
}

func applyDefaults(st *StationConfig, defaults Defaults) {
	st.Name = strings.TrimSpace(st.Name)
	if strings.TrimSpace(st.Model) == "" {
		st.Model = defaults.Model
	}
	if st.MaxTokens == 0 {
		st.MaxTokens = defaults.MaxTokens
	}
	switch {
	case st.RawTemperature != nil:
		st.Temperature = *st.RawTemperature
	case defaults.Temperature != nil:
		st.Temperature = *defaults.Temperature
	default:
		st.Temperature = 0.7
	}
}

func validateStation(st *StationConfig) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("station %s: ", st.ID)+fmt.Sprintf(format, args...))
	}

	if st.ID.IsZero() {
		add("id must be positive")
	}
	if st.Name == "" {
		add("name is required")
	}
	if st.MaxTokens <= 0 {
		add("max_tokens must be positive")
	}
	if st.Temperature < 0 || st.Temperature > 2 {
		add("temperature %.2f out of range [0, 2]", st.Temperature)
	}
	for _, dep := range st.Dependencies {
		if !dep.Less(st.ID) {
			add("dependency %s is not lower-numbered", dep)
		}
	}
	main, ok := st.PromptTemplates[MainTemplate]
	if !ok || strings.TrimSpace(string(main)) == "" {
		add("prompt_templates.%s is required", MainTemplate)
	}
	for name, tpl := range st.PromptTemplates {
		if _, err := tpl.Placeholders(); err != nil {
			add("prompt_templates.%s: %v", name, err)
		}
	}
	for key, typ := range st.Schema {
		if !typ.valid() {
			add("schema.%s: unknown type %q", key, typ)
		}
	}
	for i, in := range st.Inputs {
		if strings.TrimSpace(in.Key) == "" || strings.TrimSpace(in.Question) == "" {
			add("inputs[%d]: key and question are required", i)
		}
	}
	if st.Choice != nil {
		if st.Choice.OptionsKey == "" || st.Choice.ChosenKey == "" {
			add("choice: options_key and chosen_key are required")
		}
	}
	if st.Followup != nil {
		if _, ok := st.PromptTemplates[st.Followup.Template]; !ok {
			add("followup: template %q not defined", st.Followup.Template)
		}
		if st.Followup.OutputKey == "" {
			add("followup: output_key is required")
		}
	}
	if st.Verdict != nil {
		if st.Verdict.StatusKey == "" || st.Verdict.IssuesKey == "" {
			add("verdict: status_key and issues_key are required")
		}
		if st.Verdict.FailValue == "" {
			st.Verdict.FailValue = "FAIL"
		}
		if st.Verdict.SeverityField == "" {
			st.Verdict.SeverityField = "severity"
		}
	}
	return problems
}

func sortConfigs(configs []*StationConfig) {
	for i := 1; i < len(configs); i++ {
		for j := i; j > 0 && configs[j].ID.Less(configs[j-1].ID); j-- {
			configs[j], configs[j-1] = configs[j-1], configs[j]
		}
	}
}
