package metadata

// Merge folds a PubMed record and a Crossref record into one. Precedence is
// fixed:
//
//   - PubMed-only fields (structured abstract, MeSH terms, affiliations,
//     PMID) come from PubMed.
//   - Crossref-only fields (funders, license, references, retraction
//     status) come from Crossref.
//   - Shared fields (title, journal, authors, abstract) prefer PubMed when
//     non-empty, falling back to Crossref.
//   - Year takes the earlier of the two when both report one, guarding
//     against future-dated preprint records.
//
// The result is tagged "merged" when both sides contributed, otherwise with
// the single contributing source; two empty inputs yield an empty record.
func Merge(pubmed, crossref Record) Record {
	if pubmed.IsEmpty() && crossref.IsEmpty() {
		return Record{}
	}

	if crossref.IsEmpty() {
		return pubmed
	}

	if pubmed.IsEmpty() {
		return crossref
	}

	merged := Record{
		DOI: firstNonEmpty(pubmed.DOI, crossref.DOI),

		Title:   firstNonEmpty(pubmed.Title, crossref.Title),
		Journal: firstNonEmpty(pubmed.Journal, crossref.Journal),

		AbstractSections: pubmed.AbstractSections,
		MeshTerms:        pubmed.MeshTerms,
		Affiliations:     pubmed.Affiliations,
		PMID:             pubmed.PMID,

		Funders:          crossref.Funders,
		License:          crossref.License,
		References:       crossref.References,
		RetractionStatus: crossref.RetractionStatus,

		Source: "merged",
	}

	merged.Authors = pubmed.Authors
	if len(merged.Authors) == 0 {
		merged.Authors = crossref.Authors
	}

	merged.Abstract = firstNonEmpty(pubmed.Abstract, crossref.Abstract)
	merged.PublishedDate = firstNonEmpty(pubmed.PublishedDate, crossref.PublishedDate)

	switch {
	case pubmed.Year != 0 && crossref.Year != 0:
		merged.Year = min(pubmed.Year, crossref.Year)
	case pubmed.Year != 0:
		merged.Year = pubmed.Year
	default:
		merged.Year = crossref.Year
	}

	return merged
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}

	return b
}
