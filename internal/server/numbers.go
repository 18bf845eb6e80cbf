package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/pkg/db/pagination"
)

type numberResponse struct {
	ID                 string     `json:"id"`
	FullNumber         string     `json:"full_number"`
	IsGolden           bool       `json:"is_golden"`
	Status             string     `json:"status"`
	EffectiveStatus    string     `json:"effective_status"`
	SubscriberName     *string    `json:"subscriber_name"`
	CompanyName        *string    `json:"company_name"`
	Gateway            *string    `json:"gateway"`
	GatewayUsername    *string    `json:"gateway_username"`
	AssignmentDate     *time.Time `json:"assignment_date"`
	UnassignmentDate   *time.Time `json:"unassignment_date"`
	PreviousCompany    *string    `json:"previous_company"`
	PreviousSubscriber *string    `json:"previous_subscriber"`
	IsPublished        bool       `json:"is_published"`
	PublishedDate      *time.Time `json:"published_date"`
	PublishedBy        *string    `json:"published_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toNumberResponse(n phonenumberdomain.PhoneNumber) numberResponse {
	return numberResponse{
		ID:                 n.ID.String(),
		FullNumber:         n.FullNumber,
		IsGolden:           n.IsGolden,
		Status:             string(n.Status),
		EffectiveStatus:    string(n.Effective),
		SubscriberName:     n.SubscriberName,
		CompanyName:        n.CompanyName,
		Gateway:            n.Gateway,
		GatewayUsername:    n.GatewayUsername,
		AssignmentDate:     n.AssignmentDate,
		UnassignmentDate:   n.UnassignmentDate,
		PreviousCompany:    n.PreviousCompany,
		PreviousSubscriber: n.PreviousSubscriber,
		IsPublished:        n.IsPublished,
		PublishedDate:      n.PublishedDate,
		PublishedBy:        n.PublishedBy,
		CreatedAt:          n.CreatedAt,
		UpdatedAt:          n.UpdatedAt,
	}
}

func (s *Server) ListNumbers(c *gin.Context) {
	var query struct {
		pagination.Page
		Status       string `form:"status"`
		IsGolden     string `form:"is_golden"`
		IsPublished  string `form:"is_published"`
		Gateway      string `form:"gateway"`
		Search       string `form:"q"`
		SuffixDigits int    `form:"suffix_digits"`
		SuffixFrom   string `form:"suffix_from"`
		SuffixTo     string `form:"suffix_to"`
		Available    bool   `form:"available"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isGolden, err := parseOptionalBool(query.IsGolden)
	if err != nil {
		AbortWithError(c, newValidationError("is_golden", "invalid_is_golden", "invalid is_golden"))
		return
	}
	isPublished, err := parseOptionalBool(query.IsPublished)
	if err != nil {
		AbortWithError(c, newValidationError("is_published", "invalid_is_published", "invalid is_published"))
		return
	}
	suffixFrom, err := parseOptionalInt64(query.SuffixFrom)
	if err != nil {
		AbortWithError(c, newValidationError("suffix_from", "invalid_suffix_from", "invalid suffix_from"))
		return
	}
	suffixTo, err := parseOptionalInt64(query.SuffixTo)
	if err != nil {
		AbortWithError(c, newValidationError("suffix_to", "invalid_suffix_to", "invalid suffix_to"))
		return
	}

	resp, err := s.numberSvc.List(c.Request.Context(), phonenumberdomain.ListRequest{
		Page: query.Page,
		Filter: phonenumberdomain.ListFilter{
			Status:       phonenumberdomain.Status(strings.TrimSpace(query.Status)),
			IsGolden:     isGolden,
			IsPublished:  isPublished,
			Gateway:      strings.TrimSpace(query.Gateway),
			Search:       strings.TrimSpace(query.Search),
			SuffixDigits: query.SuffixDigits,
			SuffixFrom:   suffixFrom,
			SuffixTo:     suffixTo,
			Available:    query.Available,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]numberResponse, 0, len(resp.Numbers))
	for _, n := range resp.Numbers {
		data = append(data, toNumberResponse(n))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": resp.PageInfo})
}

type provisionNumberRequest struct {
	FullNumber string `json:"full_number"`
	IsGolden   bool   `json:"is_golden"`
}

func (s *Server) ProvisionNumber(c *gin.Context) {
	var req provisionNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.numberSvc.Provision(c.Request.Context(), phonenumberdomain.ProvisionRequest{
		FullNumber: strings.TrimSpace(req.FullNumber),
		IsGolden:   req.IsGolden,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toNumberResponse(resp)})
}

func (s *Server) GetNumber(c *gin.Context) {
	resp, err := s.numberSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

func (s *Server) LookupNumber(c *gin.Context) {
	number := strings.TrimSpace(c.Query("number"))
	if number == "" {
		AbortWithError(c, newValidationError("number", "required", "number is required"))
		return
	}

	resp, err := s.numberSvc.GetByNumber(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

type assignNumberRequest struct {
	SubscriberName  string `json:"subscriber_name"`
	CompanyName     string `json:"company_name"`
	Gateway         string `json:"gateway"`
	GatewayUsername string `json:"gateway_username"`
}

func (s *Server) AssignNumber(c *gin.Context) {
	var req assignNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.lifecycleSvc.Assign(c.Request.Context(), lifecycledomain.AssignRequest{
		NumberID:        c.Param("id"),
		SubscriberName:  req.SubscriberName,
		CompanyName:     req.CompanyName,
		Gateway:         req.Gateway,
		GatewayUsername: req.GatewayUsername,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

type unassignNumberRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) UnassignNumber(c *gin.Context) {
	var req unassignNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.lifecycleSvc.Unassign(c.Request.Context(), lifecycledomain.UnassignRequest{
		NumberID: c.Param("id"),
		Notes:    req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

type updateNumberRequest struct {
	SubscriberName  *string `json:"subscriber_name"`
	CompanyName     *string `json:"company_name"`
	Gateway         *string `json:"gateway"`
	GatewayUsername *string `json:"gateway_username"`
	Notes           string  `json:"notes"`
}

func (s *Server) UpdateNumber(c *gin.Context) {
	var req updateNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.lifecycleSvc.Update(c.Request.Context(), lifecycledomain.UpdateRequest{
		NumberID:        c.Param("id"),
		SubscriberName:  req.SubscriberName,
		CompanyName:     req.CompanyName,
		Gateway:         req.Gateway,
		GatewayUsername: req.GatewayUsername,
		Notes:           req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

type publishNumberRequest struct {
	PublishedBy string `json:"published_by"`
}

func (s *Server) PublishNumber(c *gin.Context) {
	var req publishNumberRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.lifecycleSvc.Publish(c.Request.Context(), lifecycledomain.PublishRequest{
		NumberID:    c.Param("id"),
		PublishedBy: req.PublishedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}

func (s *Server) UnpublishNumber(c *gin.Context) {
	resp, err := s.lifecycleSvc.Unpublish(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toNumberResponse(resp)})
}
