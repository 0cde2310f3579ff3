package stations

import (
	"fmt"
	"strings"

	"audiobook/internal/services"
	"audiobook/internal/station"
	"audiobook/internal/stationconfig"
)

// PromptStation is a catalog-driven station.
type PromptStation struct {
	*station.Base
	description string
}

var _ station.Station = (*PromptStation)(nil)

// New builds a station from its catalog record.
func New(cfg *stationconfig.StationConfig) *PromptStation {
	return &PromptStation{
		Base:        station.NewBase(cfg.ID, cfg.Name, cfg.Dependencies),
		description: strings.TrimSpace(cfg.Description),
	}
}

// Description returns the catalog description.
func (p *PromptStation) Description() string { return p.description }

// BuildFromCatalog returns one station per record, ordered by id. Lint
// problems are returned as a configuration error.
func BuildFromCatalog(cat *stationconfig.Catalog) ([]station.Station, error) {
	if cat == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "build stations", "catalog is nil", nil)
	}
	if problems := Lint(cat); len(problems) > 0 {
		return nil, services.WithHint(
			services.Wrap(services.ErrConfiguration, "", "lint catalog", strings.Join(problems, "; "), nil),
			"fix the placeholders or dependencies in "+cat.Source,
		)
	}
	records := cat.Stations()
	out := make([]station.Station, 0, len(records))
	for _, cfg := range records {
		out = append(out, New(cfg))
	}
	return out, nil
}

// Load reads the loader's catalog and builds its stations.
func Load(loader *stationconfig.Loader) ([]station.Station, error) {
	cat, err := loader.Catalog()
	if err != nil {
		return nil, err
	}
	return BuildFromCatalog(cat)
}

// Lint reports template placeholders that no dependency, input or reply key
// can satisfy, and dependencies missing from the catalog.
func Lint(cat *stationconfig.Catalog) []string {
	var problems []string
	for _, cfg := range cat.Stations() {
		available := map[string]struct{}{"session_id": {}}
		for _, dep := range cfg.Dependencies {
			depCfg, ok := cat.Lookup(dep)
			if !ok {
				problems = append(problems, fmt.Sprintf("station %s: dependency %s not in catalog", cfg.ID, dep))
				continue
			}
			available["station_"+dep.KeySuffix()] = struct{}{}
			for key := range OutputKeys(depCfg) {
				available[key] = struct{}{}
			}
		}
		for _, in := range cfg.Inputs {
			available[in.Key] = struct{}{}
		}
		problems = append(problems, lintTemplate(cfg, stationconfig.MainTemplate, available)...)

		if cfg.Followup != nil {
			withReply := make(map[string]struct{}, len(available)+len(cfg.Schema)+1)
			for key := range available {
				withReply[key] = struct{}{}
			}
			for _, key := range cfg.Schema.Keys() {
				withReply[key] = struct{}{}
			}
			if cfg.Choice != nil {
				withReply[cfg.Choice.ChosenKey] = struct{}{}
				withReply[cfg.Choice.ChosenKey+"_option"] = struct{}{}
			}
			problems = append(problems, lintTemplate(cfg, cfg.Followup.Template, withReply)...)
		}
	}
	return problems
}

// OutputKeys lists the top-level keys a station's stored output may carry.
func OutputKeys(cfg *stationconfig.StationConfig) map[string]struct{} {
	keys := map[string]struct{}{"session_id": {}}
	for _, key := range cfg.Schema.Keys() {
		keys[key] = struct{}{}
	}
	for _, in := range cfg.Inputs {
		keys[in.Key] = struct{}{}
	}
	if cfg.Choice != nil {
		keys[cfg.Choice.ChosenKey] = struct{}{}
		keys[cfg.Choice.ChosenKey+"_option"] = struct{}{}
	}
	if cfg.Followup != nil {
		keys[cfg.Followup.OutputKey] = struct{}{}
	}
	return keys
}

func lintTemplate(cfg *stationconfig.StationConfig, name string, available map[string]struct{}) []string {
	tpl, ok := cfg.Template(name)
	if !ok {
		return []string{fmt.Sprintf("station %s: template %q missing", cfg.ID, name)}
	}
	names, err := tpl.Placeholders()
	if err != nil {
		return []string{fmt.Sprintf("station %s: template %q: %v", cfg.ID, name, err)}
	}
	var problems []string
	for _, placeholder := range names {
		root, _, _ := strings.Cut(placeholder, ".")
		if _, ok := available[root]; !ok {
			problems = append(problems, fmt.Sprintf("station %s: template %q references {%s} which no dependency provides", cfg.ID, name, placeholder))
		}
	}
	return problems
}
