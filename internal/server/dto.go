package server

import (
	"encoding/json"

	"formline/internal/domain"
)

// Request payloads

type ImportTemplateRequest struct {
	Schema json.RawMessage `json:"schema"`
}

type StartInspectionRequest struct {
	TemplateID string `json:"template_id"`
}

type AnswerItemRequest struct {
	ItemID string `json:"item_id"`
	Value  any    `json:"value"`
}

type CreateAssetRequest struct {
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
}

type CreateLocationRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type TemplateResponse struct {
	ID        string         `json:"id"`
	Version   string         `json:"version"`
	Name      string         `json:"name,omitempty"`
	Status    string         `json:"status" enum:"active,archived"`
	Schema    map[string]any `json:"schema,omitempty"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type InspectionResponse struct {
	ID              string            `json:"id"`
	TemplateID      string            `json:"template_id"`
	TemplateVersion string            `json:"template_version"`
	Sequence        *string           `json:"sequence,omitempty"`
	Status          string            `json:"status" enum:"draft,submitted"`
	Section         int               `json:"section"`
	Answers         map[string]any    `json:"answers"`
	Errors          map[string]string `json:"errors,omitempty"`
	Score           *float64          `json:"score,omitempty"`
	MaxScore        *float64          `json:"max_score,omitempty"`
	Percentage      *float64          `json:"percentage,omitempty"`
	Passed          *bool             `json:"passed,omitempty"`
	AuthorID        string            `json:"author_id"`
	CreatedAt       string            `json:"created_at" format:"date-time"`
	UpdatedAt       string            `json:"updated_at" format:"date-time"`
	SubmittedAt     *string           `json:"submitted_at,omitempty" format:"date-time"`
}

type AssetResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
	Status     string  `json:"status" enum:"active,retired"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type LocationResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CreatedAPIKeyResponse carries the plaintext key exactly once, at creation.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

type ValidateTemplateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type paginatedInspections struct {
	Items      []InspectionResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func templateResponse(rec domain.TemplateRecord, withSchema bool) TemplateResponse {
	res := TemplateResponse{
		ID:        rec.ID,
		Version:   rec.Version,
		Name:      rec.Name,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if withSchema {
		res.Schema = decodeJSONMap(&rec.SchemaJSON)
	}
	return res
}

func inspectionResponse(insp domain.Inspection) InspectionResponse {
	answers := decodeJSONMap(&insp.AnswersJSON)
	if answers == nil {
		answers = map[string]any{}
	}
	return InspectionResponse{
		ID:              insp.ID,
		TemplateID:      insp.TemplateID,
		TemplateVersion: insp.TemplateVersion,
		Sequence:        insp.Sequence,
		Status:          insp.Status,
		Section:         insp.Section,
		Answers:         answers,
		Errors:          decodeStringMap(insp.ErrorsJSON),
		Score:           insp.Score,
		MaxScore:        insp.MaxScore,
		Percentage:      insp.Percentage,
		Passed:          insp.Passed,
		AuthorID:        insp.AuthorID,
		CreatedAt:       insp.CreatedAt,
		UpdatedAt:       insp.UpdatedAt,
		SubmittedAt:     insp.SubmittedAt,
	}
}

func assetResponse(a domain.Asset) AssetResponse {
	return AssetResponse(a)
}

func locationResponse(l domain.Location) LocationResponse {
	return LocationResponse(l)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(&e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func decodeStringMap(raw *string) map[string]string {
	if raw == nil || *raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return nil
	}
	return out
}
