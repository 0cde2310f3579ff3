package stationconfig_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiobook/internal/services"
	"audiobook/internal/stationconfig"
	"audiobook/internal/stationid"
)

func TestDefaultCatalogIsConsistent(t *testing.T) {
	loader := stationconfig.NewLoader("")
	cat, err := loader.Catalog()
	if err != nil {
		t.Fatalf("Catalog returned error: %v", err)
	}
	stations := cat.Stations()
	if len(stations) != 7 {
		t.Fatalf("expected 7 stations, got %d", len(stations))
	}
	for i, st := range stations {
		if i > 0 && !stations[i-1].ID.Less(st.ID) {
			t.Fatalf("stations out of order at %s", st.ID)
		}
		for _, dep := range st.Dependencies {
			if !dep.Less(st.ID) {
				t.Fatalf("station %s depends on later station %s", st.ID, dep)
			}
			if _, ok := cat.Lookup(dep); !ok {
				t.Fatalf("station %s depends on unknown station %s", st.ID, dep)
			}
		}
		if _, ok := st.Template(stationconfig.MainTemplate); !ok {
			t.Fatalf("station %s lacks main template", st.ID)
		}
	}
}

func TestLoaderGetAndNotFound(t *testing.T) {
	loader := stationconfig.NewLoader("")
	st, err := loader.Get(stationid.New(4, 5))
	if err != nil {
		t.Fatalf("Get(4.5) returned error: %v", err)
	}
	if st.Name != "Reveal Strategy" || st.MaxTokens != 4000 || st.Temperature != 0.7 {
		t.Fatalf("unexpected record: %+v", st)
	}
	again, _ := loader.Get(stationid.New(4, 5))
	if again != st {
		t.Fatal("expected cached record")
	}

	_, err = loader.Get(stationid.New(99, 0))
	var notFound *stationconfig.ConfigNotFoundError
	if !errors.As(err, &notFound) || !errors.Is(err, services.ErrConfigNotFound) {
		t.Fatalf("expected ConfigNotFoundError, got %v", err)
	}
}

func TestParseCatalogRejectsDuplicatesAndForwardDependencies(t *testing.T) {
	doc := `
stations:
  - id: "1"
    name: One
    max_tokens: 10
    prompt_templates: {main: "hi"}
  - id: "1"
    name: Again
    max_tokens: 10
    prompt_templates: {main: "hi"}
  - id: "2"
    name: Two
    max_tokens: 10
    dependencies: ["3"]
    prompt_templates: {main: "hi"}
`
	_, err := stationconfig.ParseCatalogBytes("test", []byte(doc))
	if err == nil {
		t.Fatal("expected catalog error")
	}
	for _, fragment := range []string{"duplicate id", "dependency 3 is not lower-numbered"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in %v", fragment, err)
		}
	}
}

func TestParseCatalogRejectsBadTemplatesAndUnknownFields(t *testing.T) {
	cases := map[string]string{
		"bare brace": `
stations:
  - id: "1"
    name: One
    max_tokens: 10
    prompt_templates: {main: 'reply {"a": 1}'}
`,
		"unknown field": `
stations:
  - id: "1"
    name: One
    max_tokens: 10
    modle: typo
    prompt_templates: {main: "hi"}
`,
		"schema type": `
stations:
  - id: "1"
    name: One
    max_tokens: 10
    prompt_templates: {main: "hi"}
    schema: {a: text}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := stationconfig.ParseCatalogBytes(name, []byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoaderReadsFileOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	doc := "stations:\n  - id: \"1\"\n    name: One\n    max_tokens: 5\n    prompt_templates: {main: \"x\"}\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	loader := stationconfig.NewLoader(path)
	if _, err := loader.Get(stationid.New(1, 0)); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove catalog: %v", err)
	}
	if _, err := loader.Get(stationid.New(1, 0)); err != nil {
		t.Fatalf("expected cached catalog after file removal, got %v", err)
	}
}

func TestLoaderMissingFileIsConfigurationError(t *testing.T) {
	loader := stationconfig.NewLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := loader.Get(stationid.New(1, 0)); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTemplateFormat(t *testing.T) {
	tpl := stationconfig.Template(`Title: {chosen_title}
Cast: {station_03.characters}
Count: {count}
Literal: {{"a": 1}}`)

	out, err := tpl.Format(map[string]any{
		"chosen_title": "The Vault",
		"count":        json.Number("3"),
		"station_03": map[string]any{
			"characters": []any{"Ada"},
		},
	})
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	want := "Title: The Vault\nCast: [\n  \"Ada\"\n]\nCount: 3\nLiteral: {\"a\": 1}"
	if out != want {
		t.Fatalf("Format = %q, want %q", out, want)
	}
}

func TestTemplateMissingPlaceholderIsLoud(t *testing.T) {
	_, err := stationconfig.Template("Hello {name}").Format(map[string]any{})
	if !errors.Is(err, stationconfig.ErrMissingPlaceholder) {
		t.Fatalf("expected ErrMissingPlaceholder, got %v", err)
	}
	if !strings.Contains(err.Error(), "{name}") {
		t.Fatalf("expected placeholder name in error, got %v", err)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatal("missing placeholder should classify as configuration error")
	}
}

func TestTemplatePlaceholders(t *testing.T) {
	names, err := stationconfig.Template("{a} {b.c} {a} {{d}}").Placeholders()
	if err != nil {
		t.Fatalf("Placeholders returned error: %v", err)
	}
	if strings.Join(names, ",") != "a,b.c" {
		t.Fatalf("unexpected placeholders %v", names)
	}
	if _, err := stationconfig.Template("oops }").Placeholders(); err == nil {
		t.Fatal("expected error for unmatched brace")
	}
}

func TestSchemaValidate(t *testing.T) {
	schema := stationconfig.Schema{
		"titles":  "array!",
		"logline": "string",
		"count":   "integer",
		"notes":   "string?",
	}
	problems := schema.Validate(map[string]any{
		"titles":  []any{},
		"count":   json.Number("2.5"),
		"logline": "ok",
	})
	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %v", problems)
	}
	if !strings.Contains(problems[0], `"count"`) || !strings.Contains(problems[1], `"titles"`) {
		t.Fatalf("unexpected problems %v", problems)
	}

	if problems := schema.Validate(map[string]any{
		"titles":  []any{"x"},
		"count":   json.Number("2"),
		"logline": "ok",
	}); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}

	problems = schema.Validate(map[string]any{})
	if len(problems) != 3 {
		t.Fatalf("expected 3 missing keys, got %v", problems)
	}
}
