package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"audiobook/internal/stationconfig"
	"audiobook/internal/stations"
)

type stationView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"max_tokens"`
	Temperature  float64  `json:"temperature"`
	Dependencies []string `json:"dependencies,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`
	Outputs      []string `json:"outputs"`
}

func newStationsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stations",
		Short: "List the station catalog in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loader := stationconfig.NewLoader(cfg.Paths.StationsFile)
			cat, err := loader.Catalog()
			if err != nil {
				return err
			}
			if _, err := stations.BuildFromCatalog(cat); err != nil {
				return err
			}

			views := make([]stationView, 0, len(cat.Stations()))
			for _, st := range cat.Stations() {
				views = append(views, viewOf(st, cfg.LLM.Model))
			}
			if jsonOutput {
				return writeJSON(cmd, views)
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				deps := "-"
				if len(v.Dependencies) > 0 {
					deps = strings.Join(v.Dependencies, ", ")
				}
				rows = append(rows, []string{v.ID, v.Name, deps, strings.Join(v.Outputs, ", "), v.Model})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog: %s\n", loader.Source())
			fmt.Fprintln(out, renderTable(
				[]string{"Station", "Name", "Depends on", "Outputs", "Model"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the catalog as JSON")
	return cmd
}

func viewOf(st *stationconfig.StationConfig, defaultModel string) stationView {
	view := stationView{
		ID:          st.ID.String(),
		Name:        st.Name,
		Description: st.Description,
		Model:       st.Model,
		MaxTokens:   st.MaxTokens,
		Temperature: st.Temperature,
	}
	if view.Model == "" {
		view.Model = defaultModel
	}
	for _, dep := range st.Dependencies {
		view.Dependencies = append(view.Dependencies, dep.String())
	}
	for _, in := range st.Inputs {
		view.Inputs = append(view.Inputs, in.Key)
	}
	for key := range stations.OutputKeys(st) {
		if key != "session_id" {
			view.Outputs = append(view.Outputs, key)
		}
	}
	slices.Sort(view.Outputs)
	return view
}
