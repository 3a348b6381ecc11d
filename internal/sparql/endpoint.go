package sparql

// Known endpoint names. They double as directory names under <output>/sparql/.
const (
	Wikidata = "wikidata"
	DBpedia  = "dbpedia"
)

// Default public endpoint URLs.
const (
	DefaultWikidataURL = "https://query.wikidata.org/sparql"
	DefaultDBpediaURL  = "https://dbpedia.org/sparql"
)

// Endpoint is a named SPARQL service.
type Endpoint struct {
	Name string
	URL  string
}

// Endpoints maps endpoint names to their service URLs.
type Endpoints struct {
	byName map[string]Endpoint
}

// NewEndpoints returns the registry of default public endpoints.
func NewEndpoints() *Endpoints {
	return &Endpoints{
		byName: map[string]Endpoint{
			Wikidata: {Name: Wikidata, URL: DefaultWikidataURL},
			DBpedia:  {Name: DBpedia, URL: DefaultDBpediaURL},
		},
	}
}

// Set registers or replaces an endpoint URL. Empty URLs are ignored.
func (e *Endpoints) Set(name, url string) {
	if url == "" {
		return
	}
	e.byName[name] = Endpoint{Name: name, URL: url}
}

// Get looks up an endpoint by name.
func (e *Endpoints) Get(name string) (Endpoint, error) {
	ep, ok := e.byName[name]
	if !ok {
		return Endpoint{}, &ErrUnknownEndpoint{Name: name}
	}
	return ep, nil
}

// AllEndpointNames returns the known endpoint names in display order.
func AllEndpointNames() []string {
	return []string{Wikidata, DBpedia}
}
