// Package protocol defines the JSON wire shapes exchanged between the
// client transport (C5) and the server handlers (S1-S4), per spec §6.
// All timestamps are ISO-8601 UTC and compared by instant.
package protocol

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Todo is the server-visible record, §3.
type Todo struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
	DueDate   *time.Time `json:"dueDate"`
	Tags      []string   `json:"tags"`
	Status    Status     `json:"status"`
	Position  int        `json:"position"`
	EditedAt  time.Time  `json:"editedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	CreatedBy string     `json:"createdBy"`
	UpdatedBy string     `json:"updatedBy"`
}

// TombstoneRef is the shape of a deletion entry inside a delta response.
type TombstoneRef struct {
	ServerID  string    `json:"serverId"`
	DeletedAt time.Time `json:"deletedAt"`
}

// PushTodo is one upsert entry in a push request body.
type PushTodo struct {
	ServerID *string    `json:"serverId,omitempty"`
	ClientID *string    `json:"clientId,omitempty"`
	Title    string     `json:"title"`
	Notes    string     `json:"notes"`
	DueDate  *time.Time `json:"dueDate"`
	Tags     []string   `json:"tags"`
	Status   Status     `json:"status"`
	Position int        `json:"position"`
	EditedAt time.Time  `json:"editedAt"`
}

// PushDeletion is one deletion entry in a push request body.
type PushDeletion struct {
	ServerID  string    `json:"serverId"`
	DeletedAt time.Time `json:"deletedAt"`
}

type PushRequest struct {
	Todos struct {
		Upserted []PushTodo     `json:"upserted"`
		Deleted  []PushDeletion `json:"deleted"`
	} `json:"todos"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

// ConflictReason is the taxonomy from spec §4.7/§4.8 ("MergeConflict" kind).
type ConflictReason string

const (
	ReasonRemoteEditNewer   ConflictReason = "Remote edit was newer"
	ReasonRemoteDeleteNewer ConflictReason = "Remote delete was newer"
)

type Conflict struct {
	ServerID        string         `json:"serverId"`
	Reason          ConflictReason `json:"reason"`
	ServerTodo      *Todo          `json:"serverTodo"`
	ClientTodo      *PushTodo      `json:"clientTodo,omitempty"`
	ClientDeletedAt *time.Time     `json:"clientDeletedAt,omitempty"`
}

type Mapping struct {
	ServerID string `json:"serverId"`
	ClientID string `json:"clientId"`
}

type StateResponse struct {
	Todos    []Todo    `json:"todos"`
	SyncedAt time.Time `json:"syncedAt"`
}

type DeltaPayload struct {
	Upserted []Todo         `json:"upserted"`
	Deleted  []TombstoneRef `json:"deleted"`
}

type DeltaResponse struct {
	Todos    DeltaPayload `json:"todos"`
	SyncedAt time.Time    `json:"syncedAt"`
}

type PushResponse struct {
	State     StateResponse `json:"state"`
	Conflicts []Conflict    `json:"conflicts"`
	Mappings  []Mapping     `json:"mappings,omitempty"`
}

type ResetResponse struct {
	Success bool `json:"success"`
	Deleted struct {
		Todos      int `json:"todos"`
		Tombstones int `json:"tombstones"`
	} `json:"deleted"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
