package metadata

import (
	"context"

	"github.com/rs/zerolog"
)

// Source is one bibliographic registry. An unknown DOI yields an empty
// record and a nil error; errors are reserved for transport failures.
type Source interface {
	LookupDOI(ctx context.Context, doi string) (Record, error)
}

// Aggregator queries both registries independently and merges the results.
// One registry failing degrades to the other's record alone; both failing
// degrades to an empty record. The aggregator never returns an error for
// missing enrichment.
type Aggregator struct {
	pubmed   Source
	crossref Source
	resolver *Resolver
	logger   *zerolog.Logger
}

func NewAggregator(pubmed, crossref Source, resolver *Resolver, logger *zerolog.Logger) *Aggregator {
	return &Aggregator{
		pubmed:   pubmed,
		crossref: crossref,
		resolver: resolver,
		logger:   logger,
	}
}

// Lookup normalizes the DOI, queries both registries, and merges. The
// grammar check and HEAD resolution are informational; malformed-looking
// identifiers are still queried.
func (a *Aggregator) Lookup(ctx context.Context, doi string) Record {
	doi = Normalize(doi)

	if !WellFormed(doi) {
		a.logger.Warn().Str("doi", doi).Msg("identifier fails DOI grammar, querying anyway")
	}

	pubmedRecord, err := a.pubmed.LookupDOI(ctx, doi)
	if err != nil {
		a.logger.Warn().Err(err).Str("doi", doi).Msg("pubmed lookup failed")
		pubmedRecord = Record{}
	}

	crossrefRecord, err := a.crossref.LookupDOI(ctx, doi)
	if err != nil {
		a.logger.Warn().Err(err).Str("doi", doi).Msg("crossref lookup failed")
		crossrefRecord = Record{}
	}

	merged := Merge(pubmedRecord, crossrefRecord)
	if merged.IsEmpty() {
		a.logger.Info().Str("doi", doi).Msg("no registry holds this identifier")
		return merged
	}

	merged.DOI = doi

	if a.resolver != nil {
		merged.DOIValidated = a.resolver.Resolves(ctx, doi)
	}

	return merged
}
