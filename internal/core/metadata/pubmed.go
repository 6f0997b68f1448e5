package metadata

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
)

// PubMed looks papers up on the NCBI E-utilities API: esearch maps the DOI
// to a PMID, efetch returns the full citation as XML.
type PubMed struct {
	baseURL string
	client  *http.Client
	logger  *zerolog.Logger
}

func NewPubMed(baseURL string, client *http.Client, logger *zerolog.Logger) *PubMed {
	return &PubMed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type efetchResponse struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID     string         `xml:"MedlineCitation>PMID"`
	Title    string         `xml:"MedlineCitation>Article>ArticleTitle"`
	Journal  string         `xml:"MedlineCitation>Article>Journal>Title"`
	PubDate  pubmedDate     `xml:"MedlineCitation>Article>Journal>JournalIssue>PubDate"`
	Abstract []abstractText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	Authors  []pubmedAuthor `xml:"MedlineCitation>Article>AuthorList>Author"`
	Mesh     []string       `xml:"MedlineCitation>MeshHeadingList>MeshHeading>DescriptorName"`
}

type pubmedDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type pubmedAuthor struct {
	LastName     string   `xml:"LastName"`
	ForeName     string   `xml:"ForeName"`
	Affiliations []string `xml:"AffiliationInfo>Affiliation"`
}

// LookupDOI returns the normalized PubMed record for a DOI, or an empty
// record when PubMed does not know the identifier.
func (p *PubMed) LookupDOI(ctx context.Context, doi string) (Record, error) {
	pmid, err := p.findPMID(ctx, doi)
	if err != nil {
		return Record{}, fmt.Errorf("pubmed search: %w", err)
	}

	if pmid == "" {
		return Record{}, nil
	}

	article, err := p.fetchArticle(ctx, pmid)
	if err != nil {
		return Record{}, fmt.Errorf("pubmed fetch pmid %s: %w", pmid, err)
	}

	return p.normalize(doi, article), nil
}

func (p *PubMed) findPMID(ctx context.Context, doi string) (string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", doi+"[doi]")
	q.Set("retmode", "json")

	endpoint := p.baseURL + "/esearch.fcgi?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode esearch response: %w", err)
	}

	if len(result.Result.IDList) == 0 {
		return "", nil
	}

	return result.Result.IDList[0], nil
}

func (p *PubMed) fetchArticle(ctx context.Context, pmid string) (pubmedArticle, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", pmid)
	q.Set("retmode", "xml")

	endpoint := p.baseURL + "/efetch.fcgi?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pubmedArticle{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return pubmedArticle{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pubmedArticle{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result efetchResponse
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pubmedArticle{}, fmt.Errorf("decode efetch response: %w", err)
	}

	if len(result.Articles) == 0 {
		return pubmedArticle{}, fmt.Errorf("pmid %s not in efetch response", pmid)
	}

	return result.Articles[0], nil
}

func (p *PubMed) normalize(doi string, article pubmedArticle) Record {
	record := Record{
		DOI:       doi,
		Title:     strings.TrimSpace(article.Title),
		Journal:   strings.TrimSpace(article.Journal),
		PMID:      article.PMID,
		MeshTerms: article.Mesh,
		Source:    "pubmed",
	}

	for _, author := range article.Authors {
		name := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if name != "" {
			record.Authors = append(record.Authors, name)
		}

		for _, affiliation := range author.Affiliations {
			affiliation = strings.TrimSpace(affiliation)
			if affiliation != "" && !contains(record.Affiliations, affiliation) {
				record.Affiliations = append(record.Affiliations, affiliation)
			}
		}
	}

	var flat []string
	for _, section := range article.Abstract {
		text := strings.TrimSpace(section.Text)
		if text == "" {
			continue
		}

		flat = append(flat, text)

		if section.Label != "" {
			if record.AbstractSections == nil {
				record.AbstractSections = make(map[string]string)
			}
			record.AbstractSections[section.Label] = text
		}
	}
	record.Abstract = strings.Join(flat, "\n\n")

	record.Year, record.PublishedDate = parsePubDate(article.PubDate, p.logger)

	return record
}

// parsePubDate handles the loose PubMed date format ("2020", "2020 Jul",
// "2020 Jul 9"). A year alone is common for older citations.
func parsePubDate(d pubmedDate, logger *zerolog.Logger) (int, string) {
	year, err := strconv.Atoi(strings.TrimSpace(d.Year))
	if err != nil {
		return 0, ""
	}

	raw := strings.TrimSpace(strings.Join([]string{d.Year, d.Month, d.Day}, " "))
	if raw == d.Year {
		return year, ""
	}

	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		logger.Debug().Str("pub_date", raw).Msg("unparseable publication date, keeping year only")
		return year, ""
	}

	return year, parsed.Format("2006-01-02")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}
