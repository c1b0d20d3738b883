package enrichment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dealdesk-api/domain"
)

// One Serper call per template per company. Negative operators keep data
// brokers out of the snippets.
var searchQueryTemplates = []string{
	"%[1]s %[2]s CEO -zoominfo -dnb",
	"%[1]s %[2]s Founder owner -zoominfo -dnb",
	"%[1]s %[2]s president chairman -zoominfo -dnb",
	"%[1]s %[2]s partner -zoominfo -dnb",
	"%[1]s %[2]s contact email",
}

const defaultCompanyBatch = 7

// Searcher runs one web search query.
type Searcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

// Extractor turns a search summary into structured contacts.
type Extractor interface {
	Extract(ctx context.Context, summary string) ([]rawContact, error)
}

// Finder discovers decision-maker contacts for companies by searching the
// web and running the results through an extraction model.
type Finder struct {
	searcher  Searcher
	extractor Extractor
	batchSize int
	logger    *log.Logger
}

func NewFinder(searcher Searcher, extractor Extractor, logger *log.Logger) *Finder {
	if logger == nil {
		panic("Logger is not initialized")
	}
	return &Finder{
		searcher:  searcher,
		extractor: extractor,
		batchSize: defaultCompanyBatch,
		logger:    logger,
	}
}

// FindContacts processes the companies in concurrent batches and returns the
// contacts found per company. A company whose lookups all fail yields no
// entry rather than failing the rest of the batch.
func (f *Finder) FindContacts(ctx context.Context, companies []domain.Company) []domain.CompanyContacts {
	out := make([]domain.CompanyContacts, 0, len(companies))
	for start := 0; start < len(companies); start += f.batchSize {
		end := start + f.batchSize
		if end > len(companies) {
			end = len(companies)
		}
		batch := companies[start:end]

		results := make([]*domain.CompanyContacts, len(batch))
		var wg sync.WaitGroup
		for i, company := range batch {
			wg.Add(1)
			go func(i int, company domain.Company) {
				defer wg.Done()
				results[i] = f.processCompany(ctx, company)
			}(i, company)
		}
		wg.Wait()

		for _, res := range results {
			if res != nil {
				out = append(out, *res)
			}
		}
	}
	return out
}

func (f *Finder) processCompany(ctx context.Context, company domain.Company) *domain.CompanyContacts {
	queries := buildQueries(company)

	searches := make([]SearchResult, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			res, err := f.searcher.Search(ctx, q)
			if err != nil {
				f.logger.WithFields(log.Fields{"company": company.Domain, "query": q}).WithError(err).Warn("search failed")
				res = SearchResult{Query: q}
			}
			searches[i] = res
		}(i, q)
	}
	wg.Wait()

	summary := formatSearchResults(searches)
	if summary == "" {
		return nil
	}

	raw, err := f.extractor.Extract(ctx, summary)
	if err != nil {
		f.logger.WithFields(log.Fields{"company": company.Domain}).WithError(err).Error("contact extraction failed")
		return nil
	}

	contacts := make([]domain.Contact, 0, len(raw))
	for _, rc := range raw {
		if c, ok := toContact(rc); ok {
			contacts = append(contacts, c)
		}
	}
	if len(contacts) == 0 {
		return nil
	}
	return &domain.CompanyContacts{
		Company:  company,
		Contacts: contacts,
		FoundAt:  time.Now().UnixMilli(),
	}
}

func buildQueries(company domain.Company) []string {
	queries := make([]string, len(searchQueryTemplates))
	for i, tmpl := range searchQueryTemplates {
		q := fmt.Sprintf(tmpl, company.Domain, company.Name)
		queries[i] = strings.Join(strings.Fields(q), " ")
	}
	return queries
}

// formatSearchResults renders the per-query summary blocks consumed by the
// extraction prompt. The first four organic results per query suffice.
func formatSearchResults(results []SearchResult) string {
	sections := make([]string, 0, len(results))
	for _, res := range results {
		entries := make([]string, 0, 4)
		for _, item := range res.Organic {
			if len(entries) == 4 {
				break
			}
			if item.Title == "" || item.Link == "" {
				continue
			}
			entries = append(entries, "- "+item.Title+"\n  "+item.Link+"\n  "+item.Snippet)
		}
		if len(entries) == 0 {
			continue
		}
		sections = append(sections, "**Search Query:** "+res.Query+"\n\n"+strings.Join(entries, "\n---\n"))
	}
	return strings.Join(sections, "\n\n\n")
}

func toContact(rc rawContact) (domain.Contact, bool) {
	name := strings.TrimSpace(strings.TrimSpace(rc.FirstName) + " " + strings.TrimSpace(rc.LastName))
	email := strings.TrimSpace(rc.GenericEmail)
	if name == "" && email == "" {
		return domain.Contact{}, false
	}

	source := strings.TrimSpace(rc.SourceURL)
	if u := validLinkedInURL(rc.LinkedInURL); u != "" {
		source = u
	}

	return domain.Contact{
		Name:   name,
		Title:  strings.TrimSpace(rc.Title),
		Email:  email,
		Source: source,
	}, true
}

// validLinkedInURL accepts only personal profile URLs.
func validLinkedInURL(url string) string {
	url = strings.TrimSpace(url)
	if !strings.Contains(url, "linkedin.com/in/") {
		return ""
	}
	disallowed := []string{
		"linkedin.com/company/",
		"linkedin.com/posts/",
		"linkedin.com/pub/dir/",
		"linkedin.com/feed/",
		"linkedin.com/jobs/",
		"linkedin.com/school/",
	}
	for _, d := range disallowed {
		if strings.Contains(url, d) {
			return ""
		}
	}
	return url
}
