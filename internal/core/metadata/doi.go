package metadata

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

var doiGrammar = regexp.MustCompile(`(?i)^10\.\d{4,9}/[-._;()/:a-z0-9]+$`)

// Normalize strips URL and scheme prefixes from a DOI so registry lookups
// and grammar checks see the bare identifier.
func Normalize(doi string) string {
	doi = strings.TrimSpace(doi)

	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
		"DOI:",
	} {
		doi = strings.TrimPrefix(doi, prefix)
	}

	return strings.TrimSpace(doi)
}

// WellFormed checks the identifier against the DOI grammar. A failed check
// never blocks a lookup; registries hold records for malformed-but-real
// identifiers.
func WellFormed(doi string) bool {
	return doiGrammar.MatchString(doi)
}

// Resolver confirms identifiers are live via HEAD against doi.org. Results
// are memoized for the process lifetime since DOIs do not un-resolve.
type Resolver struct {
	client *http.Client

	mu    sync.Mutex
	known map[string]bool
}

func NewResolver(client *http.Client) *Resolver {
	return &Resolver{
		client: client,
		known:  make(map[string]bool),
	}
}

// Resolves reports whether the DOI answers at doi.org. Transport failures
// count as unresolved; the outcome is informational either way.
func (r *Resolver) Resolves(ctx context.Context, doi string) bool {
	r.mu.Lock()
	if live, ok := r.known[doi]; ok {
		r.mu.Unlock()
		return live
	}
	r.mu.Unlock()

	live := r.head(ctx, doi)

	r.mu.Lock()
	r.known[doi] = live
	r.mu.Unlock()

	return live
}

func (r *Resolver) head(ctx context.Context, doi string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://doi.org/"+doi, nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 400
}
