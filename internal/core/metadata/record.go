// Package metadata queries the two bibliographic registries (PubMed and
// Crossref), normalizes their records into one schema, and merges them with
// fixed field-level precedence.
package metadata

// Funder identifies one funding body reported by Crossref. The serialized
// keys keep the catalog's established metadata shape, so stored
// metadata_json stays readable by existing consumers.
type Funder struct {
	Name   string   `json:"nombre"`
	DOI    string   `json:"doi,omitempty"`
	Awards []string `json:"award,omitempty"`
}

// Reference is one entry of a paper's reference list.
type Reference struct {
	Key string `json:"key,omitempty"`
	DOI string `json:"doi,omitempty"`
}

// Record is the normalized bibliographic record. Both registries map into
// this shape; the aggregator folds two of them into one.
type Record struct {
	DOI              string            `json:"doi,omitempty"`
	Title            string            `json:"title,omitempty"`
	Journal          string            `json:"journal,omitempty"`
	Year             int               `json:"year,omitempty"`
	PublishedDate    string            `json:"published_date,omitempty"`
	Authors          []string          `json:"authors,omitempty"`
	Abstract         string            `json:"abstract,omitempty"`
	AbstractSections map[string]string `json:"abstract_sections,omitempty"`
	MeshTerms        []string          `json:"mesh_terms,omitempty"`
	Affiliations     []string          `json:"affiliations,omitempty"`
	PMID             string            `json:"pmid,omitempty"`
	Funders          []Funder          `json:"funders,omitempty"`
	License          string            `json:"license,omitempty"`
	References       []Reference       `json:"references,omitempty"`
	RetractionStatus string            `json:"retraction_status,omitempty"`

	// Source records provenance: "pubmed", "crossref", or "merged".
	Source string `json:"source,omitempty"`

	// DOIValidated reports whether the identifier resolved via HEAD.
	// Informational only; lookups run regardless.
	DOIValidated bool `json:"doi_validated,omitempty"`
}

// IsEmpty reports whether no registry contributed any content. An empty
// record is a normal outcome for unknown identifiers, not an error.
func (r Record) IsEmpty() bool {
	return r.Title == "" &&
		r.Journal == "" &&
		r.Year == 0 &&
		len(r.Authors) == 0 &&
		r.Abstract == "" &&
		len(r.MeshTerms) == 0 &&
		len(r.Funders) == 0 &&
		r.License == "" &&
		len(r.References) == 0
}
