package domain

// Company identifies a business to enrich with decision-maker contacts.
type Company struct {
	Domain string `json:"domain"`
	Name   string `json:"companyName"`
}

// Contact is a decision maker or generic mailbox discovered for a company.
type Contact struct {
	Name       string  `json:"name,omitempty"`
	Title      string  `json:"title,omitempty"`
	Email      string  `json:"email,omitempty"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// CompanyContacts groups the contacts found for one company.
type CompanyContacts struct {
	Company  Company   `json:"company"`
	Contacts []Contact `json:"contacts"`
	FoundAt  int64     `json:"foundAt,omitempty"`
}

// EnrichmentJob is one queued unit of enrichment work.
type EnrichmentJob struct {
	WorkspaceID string    `json:"workspaceId"`
	Companies   []Company `json:"companies"`
	EnqueuedAt  int64     `json:"enqueuedAt"`
}
