package server

import (
	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
)

// Request payloads

type TakeActionRequest struct {
	Action            string                   `json:"action" example:"Forward"`
	Remarks           string                   `json:"remarks,omitempty"`
	AdditionalDetails engine.AdditionalDetails `json:"additionalDetails,omitempty"`
}

type SubmitApplicationRequest struct {
	ServiceID       int                `json:"serviceId" minimum:"1"`
	ReferenceNumber string             `json:"referenceNumber,omitempty"`
	FormDetails     domain.FormDetails `json:"formDetails"`
	Remarks         string             `json:"remarks,omitempty"`
}

type ResubmitRequest struct {
	Fields  map[string]any `json:"fields"`
	Remarks string         `json:"remarks,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

// ActionResponse is the {status, response} envelope of the action endpoint.
type ActionResponse struct {
	Status          bool   `json:"status"`
	Response        string `json:"response"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
	CurrentPlayer   int    `json:"currentPlayer"`
	State           string `json:"applicationStatus,omitempty"`
}

type ServiceResponse struct {
	ServiceID int             `json:"serviceId"`
	Name      string          `json:"name"`
	Workflow  domain.Workflow `json:"workflow"`
}

type PoolResponse struct {
	Status          bool   `json:"status"`
	ReferenceNumber string `json:"referenceNumber"`
	Pooled          bool   `json:"pooled"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

func serviceResponse(s domain.Service) ServiceResponse {
	wf := s.Steps
	if wf == nil {
		wf = domain.Workflow{}
	}
	return ServiceResponse{ServiceID: s.ServiceID, Name: s.Name, Workflow: wf}
}

func mapServices(items []domain.Service) []ServiceResponse {
	out := make([]ServiceResponse, 0, len(items))
	for _, s := range items {
		out = append(out, serviceResponse(s))
	}
	return out
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Username: k.Username, Name: k.Name, CreatedAt: k.CreatedAt}
}

func mapAPIKeys(items []domain.APIKey) []APIKeyResponse {
	out := make([]APIKeyResponse, 0, len(items))
	for _, k := range items {
		out = append(out, apiKeyResponse(k))
	}
	return out
}
