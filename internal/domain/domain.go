package domain

// TemplateRecord is a stored, versioned form template. SchemaJSON holds the
// raw template document; the engine parses it on demand.
type TemplateRecord struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status" enum:"active,archived"`
	SchemaJSON string `json:"schema_json"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

// Inspection is one filled (or in-progress) form. TemplateJSON is the
// snapshot pinned when the inspection started; later template edits never
// affect it.
type Inspection struct {
	ID              string   `json:"id"`
	TemplateID      string   `json:"template_id"`
	TemplateVersion string   `json:"template_version,omitempty"`
	TemplateJSON    string   `json:"template_json"`
	Sequence        *string  `json:"sequence,omitempty"`
	Status          string   `json:"status" enum:"draft,submitted"`
	Section         int      `json:"section"`
	AnswersJSON     string   `json:"answers_json"`
	ErrorsJSON      *string  `json:"errors_json,omitempty"`
	Score           *float64 `json:"score,omitempty"`
	MaxScore        *float64 `json:"max_score,omitempty"`
	Percentage      *float64 `json:"percentage,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`
	AuthorID        string   `json:"author_id"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
	SubmittedAt     *string  `json:"submitted_at,omitempty" format:"date-time"`
}

// Asset is an inspectable piece of equipment, served as the option list for
// asset-reference items.
type Asset struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category,omitempty"`
	LocationID *string `json:"location_id,omitempty"`
	Status     string  `json:"status" enum:"active,retired"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// Location is a place inspections happen at, served as the option list for
// location-reference items.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
