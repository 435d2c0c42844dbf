// Package domain defines the canonical audit event model.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Status is the outcome of the audited operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Actions recorded by this core. LOGIN, UPLOAD, AUTHENTICATE, DELETE, and
// UPDATE are security-sensitive: they always trigger threat analysis.
const (
	ActionLogin        = "LOGIN"
	ActionLogout       = "LOGOUT"
	ActionAuthenticate = "AUTHENTICATE"
	ActionRotate       = "ROTATE"
	ActionUpload       = "UPLOAD"
	ActionDelete       = "DELETE"
	ActionUpdate       = "UPDATE"
	ActionCheckIn      = "CHECKIN"
)

// SecuritySensitive reports whether action always feeds the threat engine,
// independent of outcome.
func SecuritySensitive(action string) bool {
	switch action {
	case ActionLogin, ActionUpload, ActionAuthenticate, ActionDelete, ActionUpdate:
		return true
	}
	return false
}

// RequestContext holds the ambient request attributes attached to an event.
// OS, Browser, and Device are best-effort enrichment parsed from the
// User-Agent; they may be empty and never affect whether the event persists.
type RequestContext struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent,omitempty"`
	OS        string `json:"os,omitempty"`
	Browser   string `json:"browser,omitempty"`
	Device    string `json:"device,omitempty"`
}

// Event is one append-only audit record. Retention is 180 days, enforced by
// the worker's prune job.
type Event struct {
	ID        string
	Timestamp time.Time
	EventType string
	Severity  Severity
	Status    Status
	Actor     string
	Target    string
	Action    string
	Context   RequestContext
	Metadata  Metadata
}

// Metadata is a tagged union keyed by event kind. Events the threat engine
// consumes carry typed payloads; purely informational events use
// GenericMetadata.
type Metadata interface {
	MetadataKind() string
}

// LoginMetadata describes an authentication attempt against an account.
type LoginMetadata struct {
	Identifier string `json:"identifier"`
	Method     string `json:"method,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (LoginMetadata) MetadataKind() string { return "login" }

// AuthenticateMetadata describes token verification, rotation, and reuse events.
type AuthenticateMetadata struct {
	TokenID string `json:"token_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (AuthenticateMetadata) MetadataKind() string { return "authenticate" }

// UploadMetadata describes a document upload into the vault.
type UploadMetadata struct {
	DocumentID string `json:"document_id"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

func (UploadMetadata) MetadataKind() string { return "upload" }

// ChangeMetadata describes a DELETE or UPDATE of a CRM entity.
type ChangeMetadata struct {
	Entity   string   `json:"entity"`
	EntityID string   `json:"entity_id,omitempty"`
	Fields   []string `json:"fields,omitempty"`
}

func (ChangeMetadata) MetadataKind() string { return "change" }

// GateMetadata describes an RFID gate interaction.
type GateMetadata struct {
	CardUID string `json:"card_uid,omitempty"`
	Branch  string `json:"branch"`
}

func (GateMetadata) MetadataKind() string { return "gate" }

// GenericMetadata is the opaque-payload variant for informational events.
type GenericMetadata map[string]any

func (GenericMetadata) MetadataKind() string { return "generic" }

// EncodeMetadata serializes m for storage as (kind, JSON payload).
// A nil m encodes as an empty generic payload.
func EncodeMetadata(m Metadata) (string, []byte, error) {
	if m == nil {
		return GenericMetadata{}.MetadataKind(), []byte("{}"), nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return "", nil, err
	}
	return m.MetadataKind(), payload, nil
}

// DecodeMetadata reverses EncodeMetadata. Unknown kinds decode as
// GenericMetadata so old rows survive schema drift.
func DecodeMetadata(kind string, payload []byte) (Metadata, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	switch kind {
	case "login":
		var m LoginMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode login metadata: %w", err)
		}
		return m, nil
	case "authenticate":
		var m AuthenticateMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode authenticate metadata: %w", err)
		}
		return m, nil
	case "upload":
		var m UploadMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode upload metadata: %w", err)
		}
		return m, nil
	case "change":
		var m ChangeMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode change metadata: %w", err)
		}
		return m, nil
	case "gate":
		var m GateMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode gate metadata: %w", err)
		}
		return m, nil
	default:
		var m GenericMetadata
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode generic metadata: %w", err)
		}
		return m, nil
	}
}
