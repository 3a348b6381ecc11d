package catalog

import "github.com/sydlexius/kgmerge/internal/sparql"

const dbpediaPrefixes = `prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#>
prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
prefix dbo: <http://dbpedia.org/ontology/>`

const dbpediaBattlePattern = `
    ?battle rdf:type dbo:MilitaryConflict .
    ?battle rdf:type dbo:Event .`

func registerDBpedia(r *Registry) {
	r.Register(sparql.DBpedia, Category{
		Name: "battle",
		Variants: []Variant{
			{
				Name: "abstract",
				Render: func() string {
					return dbpediaPrefixes + "\n" + selectDistinct(
						[]string{"battle", "abstract", "language"},
						dbpediaBattlePattern,
						"?battle dbo:abstract ?abstract .",
						"BIND (LANG(?abstract) AS ?language)")
				},
			},
		},
	})
}
