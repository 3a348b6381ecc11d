package catalog

import (
	"fmt"
	"strings"

	"github.com/sydlexius/kgmerge/internal/sparql"
)

// Shared Wikidata graph patterns.
const (
	// countryPattern binds ?country to sovereign states and historical countries.
	countryPattern = `
    {
        ?country wdt:P31 wd:Q6256 .
    } UNION {
        ?country wdt:P31 wd:Q3024240 .
    }`

	warPattern = `
    ?war wdt:P31/wdt:P279* wd:Q198 .`

	battlePattern = `
    ?battle wdt:P31 wd:Q178561 .`

	// statePattern binds ?state to former states that are not countries, and
	// requires both an inception and a dissolution date.
	statePattern = `
    {
        ?state wdt:P31 wd:Q7275 .
    } UNION {
        ?state wdt:P31 wd:Q133442 .
    } UNION {
        ?state wdt:P31 wd:Q148837 .
    }
    FILTER NOT EXISTS { ?state wdt:P31 wd:Q6256 . }
    FILTER NOT EXISTS { ?state wdt:P31 wd:Q3024240 . }
    ?state wdt:P571 ?inception .
    ?state wdt:P576 ?dissolution .`

	// leaguePattern binds ?league to leagues and ?state to their members.
	leaguePattern = `
    ?league wdt:P31 wd:Q170156 .
    FILTER NOT EXISTS { ?league wdt:P31 wd:Q6256 . }
    FILTER NOT EXISTS { ?league wdt:P31 wd:Q3024240 . }
    {
        ?state wdt:P463 ?league .
    } UNION {
        ?league wdt:P150 ?state .
    }
    {
        ?state wdt:P31 wd:Q6256 .
    } UNION {
        ?state wdt:P31 wd:Q3024240 .
    } UNION {
        ?state wdt:P31 wd:Q7275 .
    } UNION {
        ?state wdt:P31/wdt:P279* wd:Q515 .
    } UNION {
        ?state wdt:P31 wd:Q133442 .
    } UNION {
        ?state wdt:P31 wd:Q148837 .
    }`
)

// selectDistinct renders "SELECT DISTINCT ?a ?b WHERE { ... }" from graph pattern parts.
func selectDistinct(vars []string, parts ...string) string {
	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT")
	for _, v := range vars {
		sb.WriteString(" ?")
		sb.WriteString(v)
	}
	sb.WriteString(" WHERE {")
	for _, p := range parts {
		sb.WriteString("\n    ")
		sb.WriteString(strings.TrimSpace(p))
	}
	sb.WriteString("\n}")
	return sb.String()
}

// with returns parts followed by more without touching the caller's backing array.
func with(parts []string, more ...string) []string {
	out := make([]string, 0, len(parts)+len(more))
	out = append(out, parts...)
	return append(out, more...)
}

func q(vars []string, parts ...string) func() string {
	return func() string { return selectDistinct(vars, parts...) }
}

// labelVariant selects every label of the entity together with its language tag.
func labelVariant(entity string, parts ...string) Variant {
	body := with(parts,
		fmt.Sprintf("?%s rdfs:label ?label .", entity),
		"BIND (LANG(?label) AS ?language)")
	return Variant{Name: "label", Render: q([]string{entity, "label", "language"}, body...)}
}

// propertyVariant selects a single direct property into a column named name.
func propertyVariant(entity, name, prop string, parts ...string) Variant {
	body := with(parts, fmt.Sprintf("?%s wdt:%s ?%s .", entity, prop, name))
	return Variant{Name: name, Render: q([]string{entity, name}, body...)}
}

// capitalVariant selects capital statements with their temporal qualifiers.
func capitalVariant(entity string, parts ...string) Variant {
	body := with(parts,
		fmt.Sprintf("?%s p:P36 ?capitalStatement .", entity),
		"?capitalStatement ps:P36 ?capital .",
		"OPTIONAL { ?capitalStatement pq:P580 ?startTime . }",
		"OPTIONAL { ?capitalStatement pq:P582 ?endTime . }",
		"OPTIONAL { ?capitalStatement pq:P585 ?pointInTime . }")
	return Variant{
		Name:   "capital",
		Render: q([]string{entity, "capital", "startTime", "endTime", "pointInTime"}, body...),
	}
}

// personVariant selects human participants.
func personVariant(entity, pattern string) Variant {
	return Variant{
		Name: "person",
		Render: q([]string{entity, "person"},
			pattern,
			fmt.Sprintf("?%s wdt:P710 ?person .", entity),
			"?person wdt:P31 wd:Q5 ."),
	}
}

// countryParticipantVariant selects participants that are countries.
func countryParticipantVariant(entity, pattern string) Variant {
	return Variant{
		Name: "country",
		Render: q([]string{entity, "country"},
			pattern,
			fmt.Sprintf("?%s wdt:P710 ?country .", entity),
			countryPattern),
	}
}

func registerWikidata(r *Registry) {
	r.Register(sparql.Wikidata, Category{
		Name: "country",
		Variants: []Variant{
			propertyVariant("country", "inception", "P571", countryPattern),
			propertyVariant("country", "dissolution", "P576", countryPattern),
			propertyVariant("country", "coordinates", "P625", countryPattern),
			capitalVariant("country", countryPattern),
			labelVariant("country", countryPattern),
			propertyVariant("country", "flag", "P41", countryPattern),
		},
	})

	capitalOf := []string{countryPattern, "?country wdt:P36 ?capital ."}
	r.Register(sparql.Wikidata, Category{
		Name: "capital",
		Variants: []Variant{
			labelVariant("capital", capitalOf...),
			propertyVariant("capital", "coordinates", "P625", capitalOf...),
		},
	})

	r.Register(sparql.Wikidata, Category{
		Name: "war",
		Variants: []Variant{
			labelVariant("war", warPattern),
			propertyVariant("war", "coordinates", "P625", warPattern),
			personVariant("war", warPattern),
			propertyVariant("war", "startDate", "P580", warPattern),
			propertyVariant("war", "endDate", "P582", warPattern),
			countryParticipantVariant("war", warPattern),
		},
	})

	r.Register(sparql.Wikidata, Category{
		Name: "battle",
		Variants: []Variant{
			labelVariant("battle", battlePattern),
			propertyVariant("battle", "coordinates", "P625", battlePattern),
			propertyVariant("battle", "partOf", "P361", battlePattern),
			personVariant("battle", battlePattern),
			countryParticipantVariant("battle", battlePattern),
			propertyVariant("battle", "pointInTime", "P585", battlePattern),
			propertyVariant("battle", "image", "P18", battlePattern),
		},
	})

	r.Register(sparql.Wikidata, Category{
		Name: "state",
		Variants: []Variant{
			{Name: "inception", Render: q([]string{"state", "inception"}, statePattern)},
			{Name: "dissolution", Render: q([]string{"state", "dissolution"}, statePattern)},
			propertyVariant("state", "coordinates", "P625", statePattern),
			labelVariant("state", statePattern),
			propertyVariant("state", "flag", "P41", statePattern),
			capitalVariant("state", statePattern),
		},
	})

	r.Register(sparql.Wikidata, Category{
		Name: "league",
		Variants: []Variant{
			propertyVariant("league", "inception", "P571", leaguePattern),
			propertyVariant("league", "dissolution", "P576", leaguePattern),
			labelVariant("league", leaguePattern),
			{Name: "state", Render: q([]string{"league", "state"}, leaguePattern)},
			propertyVariant("league", "flag", "P41", leaguePattern),
		},
	})

	member := []string{leaguePattern, "BIND (?state AS ?leagueMember)"}
	r.Register(sparql.Wikidata, Category{
		Name:      "league_member",
		EntityVar: "leagueMember",
		Variants: []Variant{
			labelVariant("leagueMember", member...),
			propertyVariant("leagueMember", "coordinates", "P625", member...),
			propertyVariant("leagueMember", "flag", "P41", member...),
		},
	})
}
