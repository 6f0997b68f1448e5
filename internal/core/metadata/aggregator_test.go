package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type mockSource struct {
	record Record
	err    error
	calls  []string
}

func (m *mockSource) LookupDOI(_ context.Context, doi string) (Record, error) {
	m.calls = append(m.calls, doi)
	return m.record, m.err
}

func newTestAggregator(pubmed, crossref Source) *Aggregator {
	logger := zerolog.Nop()
	return NewAggregator(pubmed, crossref, nil, &logger)
}

func TestAggregator_MergesBothRegistries(t *testing.T) {
	pubmed := &mockSource{record: Record{MeshTerms: []string{"X"}, Source: "pubmed"}}
	crossref := &mockSource{record: Record{
		Funders: []Funder{{Name: "NIH"}},
		License: "url",
		Source:  "crossref",
	}}

	a := newTestAggregator(pubmed, crossref)

	record := a.Lookup(context.Background(), "10.1056/NEJMoa2007764")

	assert.Equal(t, []string{"X"}, record.MeshTerms)
	assert.Equal(t, "NIH", record.Funders[0].Name)
	assert.Equal(t, "url", record.License)
	assert.Equal(t, "merged", record.Source)
	assert.Equal(t, "10.1056/NEJMoa2007764", record.DOI)
}

func TestAggregator_OneRegistryFailingDegrades(t *testing.T) {
	pubmed := &mockSource{err: errors.New("esearch unavailable")}
	crossref := &mockSource{record: Record{Title: "Crossref Title", Source: "crossref"}}

	a := newTestAggregator(pubmed, crossref)

	record := a.Lookup(context.Background(), "10.1000/xyz123")

	assert.Equal(t, "Crossref Title", record.Title)
	assert.Equal(t, "crossref", record.Source)
}

func TestAggregator_BothEmptyIsNotAnError(t *testing.T) {
	a := newTestAggregator(&mockSource{}, &mockSource{})

	record := a.Lookup(context.Background(), "10.1000/unknown")

	assert.True(t, record.IsEmpty())
}

func TestAggregator_NormalizesBeforeQuerying(t *testing.T) {
	pubmed := &mockSource{}
	crossref := &mockSource{}

	a := newTestAggregator(pubmed, crossref)

	a.Lookup(context.Background(), "https://doi.org/10.1000/xyz123")

	assert.Equal(t, []string{"10.1000/xyz123"}, pubmed.calls)
	assert.Equal(t, []string{"10.1000/xyz123"}, crossref.calls)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.1000/xyz123", "10.1000/xyz123"},
		{"https://doi.org/10.1000/xyz123", "10.1000/xyz123"},
		{"http://dx.doi.org/10.1000/xyz123", "10.1000/xyz123"},
		{"doi:10.1000/xyz123", "10.1000/xyz123"},
		{"  10.1000/xyz123  ", "10.1000/xyz123"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestWellFormed(t *testing.T) {
	assert.True(t, WellFormed("10.1056/NEJMoa2007764"))
	assert.True(t, WellFormed("10.1016/s0140-6736(20)31180-6"))
	assert.False(t, WellFormed("11.1056/NEJMoa2007764"))
	assert.False(t, WellFormed("10.105/short"))
	assert.False(t, WellFormed("not a doi"))
}
