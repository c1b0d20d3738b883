package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"dealdesk-api/domain"
)

type contactEntity struct {
	entityKeys
	CompanyDomain string  `json:"CompanyDomain"`
	CompanyName   string  `json:"CompanyName"`
	Name          string  `json:"Name"`
	Title         string  `json:"Title"`
	Email         string  `json:"Email"`
	Source        string  `json:"Source"`
	Confidence    float64 `json:"Confidence"`
	FoundAt       int64   `json:"FoundAt,string"`
	FoundAtType   string  `json:"FoundAt@odata.type,omitempty"`
}

// UpsertContacts stores discovered contacts, one row each, keyed under the
// workspace partition.
func (s *Storage) UpsertContacts(ctx context.Context, workspaceID string, results []domain.CompanyContacts) error {
	for _, res := range results {
		foundAt := res.FoundAt
		if foundAt == 0 {
			foundAt = time.Now().UnixMilli()
		}
		for _, c := range res.Contacts {
			ent := contactEntity{
				entityKeys:    entityKeys{PartitionKey: workspaceID, RowKey: uuid.NewString()},
				CompanyDomain: res.Company.Domain,
				CompanyName:   res.Company.Name,
				Name:          c.Name,
				Title:         c.Title,
				Email:         c.Email,
				Source:        c.Source,
				Confidence:    c.Confidence,
				FoundAt:       foundAt,
				FoundAtType:   "Edm.Int64",
			}
			data, err := json.Marshal(ent)
			if err != nil {
				return err
			}
			if _, err := s.contactsTable.UpsertEntity(ctx, data, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// FetchContacts returns all contacts found for the workspace, grouped by
// company domain.
func (s *Storage) FetchContacts(ctx context.Context, workspaceID string) ([]domain.CompanyContacts, error) {
	filter := "PartitionKey eq '" + workspaceID + "'"
	pager := s.contactsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})

	grouped := map[string]*domain.CompanyContacts{}
	order := []string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent contactEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			group, ok := grouped[ent.CompanyDomain]
			if !ok {
				group = &domain.CompanyContacts{
					Company: domain.Company{Domain: ent.CompanyDomain, Name: ent.CompanyName},
					FoundAt: ent.FoundAt,
				}
				grouped[ent.CompanyDomain] = group
				order = append(order, ent.CompanyDomain)
			}
			group.Contacts = append(group.Contacts, domain.Contact{
				Name:       ent.Name,
				Title:      ent.Title,
				Email:      ent.Email,
				Source:     ent.Source,
				Confidence: ent.Confidence,
			})
			if ent.FoundAt > group.FoundAt {
				group.FoundAt = ent.FoundAt
			}
		}
	}

	out := make([]domain.CompanyContacts, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	return out, nil
}
