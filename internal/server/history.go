package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type historyEntryResponse struct {
	ID                 int64          `json:"id"`
	NumberID           string         `json:"number_id"`
	ChangeType         string         `json:"change_type"`
	PreviousStatus     string         `json:"previous_status"`
	NewStatus          string         `json:"new_status"`
	PreviousCompany    *string        `json:"previous_company"`
	NewCompany         *string        `json:"new_company"`
	PreviousGateway    *string        `json:"previous_gateway"`
	NewGateway         *string        `json:"new_gateway"`
	PreviousSubscriber *string        `json:"previous_subscriber"`
	NewSubscriber      *string        `json:"new_subscriber"`
	Notes              *string        `json:"notes"`
	Actor              *string        `json:"actor"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ChangeDate         time.Time      `json:"change_date"`
}

func (s *Server) ListNumberHistory(c *gin.Context) {
	entries, err := s.historySvc.ListByNumber(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		data = append(data, historyEntryResponse{
			ID:                 e.ID,
			NumberID:           e.NumberID.String(),
			ChangeType:         string(e.ChangeType),
			PreviousStatus:     string(e.PreviousStatus),
			NewStatus:          string(e.NewStatus),
			PreviousCompany:    e.PreviousCompany,
			NewCompany:         e.NewCompany,
			PreviousGateway:    e.PreviousGateway,
			NewGateway:         e.NewGateway,
			PreviousSubscriber: e.PreviousSubscriber,
			NewSubscriber:      e.NewSubscriber,
			Notes:              e.Notes,
			Actor:              e.Actor,
			Metadata:           e.Metadata,
			ChangeDate:         e.ChangeDate,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
