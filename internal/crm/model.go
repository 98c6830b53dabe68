// Package crm holds the client directory that visits point at: customers,
// organizations, leads and deals, their visit-frequency policy and their
// addresses.
package crm

import (
	"strings"
	"time"

	"github.com/promise4all/visit-management/internal/apperr"
)

// Kind tags which client table a reference points into.
type Kind string

const (
	Customer     Kind = "Customer"
	Organization Kind = "CRM Organization"
	Lead         Kind = "CRM Lead"
	Deal         Kind = "CRM Deal"
)

// Kinds lists every recognised client kind.
var Kinds = []Kind{Customer, Organization, Lead, Deal}

// FrequencyKinds are the kinds that carry a visit-frequency policy.
var FrequencyKinds = []Kind{Customer, Organization}

// ParseKind validates a client type tag.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", apperr.Validation("Unknown client type %q.", s)
}

// Ref is a reference to one client record.
type Ref struct {
	Kind Kind   `json:"client_type"`
	ID   string `json:"client"`
}

// IsZero reports whether no client is referenced.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

func (r Ref) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Client is a client record with its visit-frequency policy.
type Client struct {
	Kind                  Kind       `json:"client_type"`
	ID                    string     `json:"client"`
	Name                  string     `json:"client_name"`
	RequiresRegularVisits bool       `json:"requires_regular_visits"`
	VisitFrequency        string     `json:"visit_frequency"`
	LastVisitDate         *time.Time `json:"last_visit_date,omitempty"`
}

// Ref returns the reference to this client.
func (c *Client) Ref() Ref {
	return Ref{Kind: c.Kind, ID: c.ID}
}

// Address is a postal address linked to a client.
type Address struct {
	Name      string `json:"name"`
	Client    Ref    `json:"link"`
	Address   string `json:"address"`
	IsPrimary bool   `json:"is_primary"`
}
