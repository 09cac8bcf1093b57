package api

import (
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/orchestrator"
)

// orchestratorRequest is the wire shape of a createRequest body's "request"
// field: only the fields a caller supplies, the rest (id, status, timestamps)
// are assigned by the orchestrator itself.
type orchestratorRequest struct {
	Kind             domain.MediaKind        `json:"kind"`
	ExternalID       string                  `json:"externalId"`
	Title            string                  `json:"title"`
	Year             int                     `json:"year"`
	RequestedSeasons []int                   `json:"requestedSeasons,omitempty"`
	Targets          []domain.DeliveryTarget `json:"targets"`
}

func (b orchestratorRequest) toDomain() domain.Request {
	return domain.Request{
		Kind:             b.Kind,
		ExternalID:       b.ExternalID,
		Title:            b.Title,
		Year:             b.Year,
		RequestedSeasons: b.RequestedSeasons,
		Targets:          b.Targets,
	}
}

type itemSpecBody struct {
	Type    domain.ItemType `json:"type"`
	Season  int             `json:"season,omitempty"`
	Episode int             `json:"episode,omitempty"`
}

func toItemSpecs(items []itemSpecBody) []orchestrator.ItemSpec {
	specs := make([]orchestrator.ItemSpec, len(items))
	for i, it := range items {
		specs[i] = orchestrator.ItemSpec{Type: it.Type, Season: it.Season, Episode: it.Episode}
	}
	return specs
}
