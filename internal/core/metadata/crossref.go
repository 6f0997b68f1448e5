package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Crossref looks papers up on api.crossref.org. It contributes the fields
// PubMed lacks: funders, license, reference graph, retraction notices.
type Crossref struct {
	baseURL string
	client  *http.Client
	logger  *zerolog.Logger
}

func NewCrossref(baseURL string, client *http.Client, logger *zerolog.Logger) *Crossref {
	return &Crossref{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type crossrefResponse struct {
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	Title          []string `json:"title"`
	ContainerTitle []string `json:"container-title"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Abstract string `json:"abstract"`
	Funder   []struct {
		Name  string   `json:"name"`
		DOI   string   `json:"DOI"`
		Award []string `json:"award"`
	} `json:"funder"`
	License []struct {
		URL string `json:"URL"`
	} `json:"license"`
	Reference []struct {
		Key string `json:"key"`
		DOI string `json:"DOI"`
	} `json:"reference"`
	UpdateTo []struct {
		Type string `json:"type"`
	} `json:"update-to"`
}

// LookupDOI returns the normalized Crossref record for a DOI, or an empty
// record on a 404 (unknown identifiers are a normal outcome).
func (c *Crossref) LookupDOI(ctx context.Context, doi string) (Record, error) {
	endpoint := c.baseURL + "/works/" + url.PathEscape(doi)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("crossref lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Record{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("crossref lookup: unexpected status %d", resp.StatusCode)
	}

	var result crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Record{}, fmt.Errorf("decode crossref response: %w", err)
	}

	return normalizeCrossref(doi, result.Message), nil
}

func normalizeCrossref(doi string, work crossrefWork) Record {
	record := Record{
		DOI:      doi,
		Abstract: stripJATS(work.Abstract),
		Source:   "crossref",
	}

	if len(work.Title) > 0 {
		record.Title = strings.TrimSpace(work.Title[0])
	}

	if len(work.ContainerTitle) > 0 {
		record.Journal = strings.TrimSpace(work.ContainerTitle[0])
	}

	record.Year, record.PublishedDate = issuedDate(work.Issued.DateParts)

	for _, author := range work.Author {
		name := strings.TrimSpace(author.Given + " " + author.Family)
		if name != "" {
			record.Authors = append(record.Authors, name)
		}
	}

	for _, funder := range work.Funder {
		if funder.Name == "" {
			continue
		}

		record.Funders = append(record.Funders, Funder{
			Name:   funder.Name,
			DOI:    funder.DOI,
			Awards: funder.Award,
		})
	}

	if len(work.License) > 0 {
		record.License = work.License[0].URL
	}

	for _, ref := range work.Reference {
		record.References = append(record.References, Reference{Key: ref.Key, DOI: ref.DOI})
	}

	for _, update := range work.UpdateTo {
		if strings.EqualFold(update.Type, "retraction") {
			record.RetractionStatus = "retracted"
			break
		}

		if strings.EqualFold(update.Type, "correction") && record.RetractionStatus == "" {
			record.RetractionStatus = "corrected"
		}
	}

	return record
}

// issuedDate maps Crossref's date-parts ([[2023, 1, 15]]) to a year and,
// when month/day are present, an ISO date.
func issuedDate(parts [][]int) (int, string) {
	if len(parts) == 0 || len(parts[0]) == 0 {
		return 0, ""
	}

	p := parts[0]
	year := p[0]

	switch {
	case len(p) >= 3:
		return year, fmt.Sprintf("%d-%02d-%02d", p[0], p[1], p[2])
	case len(p) == 2:
		return year, fmt.Sprintf("%d-%02d-01", p[0], p[1])
	default:
		return year, ""
	}
}

// stripJATS removes the JATS markup Crossref wraps abstracts in.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}

	var b strings.Builder
	inTag := false

	for _, r := range abstract {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}
