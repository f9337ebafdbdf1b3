// Package types provides API request and response types.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol is returned for malformed framing: an unknown verb or a
// field combination the verb forbids.
var ErrProtocol = errors.New("protocol error")

// Mutation verbs accepted by POST /v1/collections/objects/{collection_id}.
const (
	VerbCreate = "create"
	VerbRead   = "read"
	VerbUpdate = "update"
	VerbDelete = "delete"
	VerbQuery  = "query"
	VerbStop   = "stop"
)

// MutationRequest is the body of a record mutation. Which fields are
// required depends on the verb; Validate enforces the combinations.
type MutationRequest struct {
	Event  string                 `json:"event"`
	ID     string                 `json:"id,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// Validate checks the verb and its field combination.
func (m *MutationRequest) Validate() error {
	switch m.Event {
	case VerbCreate:
		if m.Data == nil {
			return fmt.Errorf("%w: create requires data", ErrProtocol)
		}
		if m.ID != "" {
			return fmt.Errorf("%w: create does not accept a request id (set data.id instead)", ErrProtocol)
		}
	case VerbRead:
		if m.ID == "" {
			return fmt.Errorf("%w: read requires an id", ErrProtocol)
		}
		if m.Data != nil {
			return fmt.Errorf("%w: read does not accept data", ErrProtocol)
		}
	case VerbUpdate:
		if m.ID == "" {
			return fmt.Errorf("%w: update requires an id", ErrProtocol)
		}
		if m.Data == nil {
			return fmt.Errorf("%w: update requires data", ErrProtocol)
		}
	case VerbDelete:
		if m.ID == "" {
			return fmt.Errorf("%w: delete requires an id", ErrProtocol)
		}
		if m.Data != nil {
			return fmt.Errorf("%w: delete does not accept data", ErrProtocol)
		}
	case VerbQuery:
		if m.ID != "" {
			return fmt.Errorf("%w: query does not accept an id", ErrProtocol)
		}
	case VerbStop:
		if m.ID != "" || m.Data != nil {
			return fmt.Errorf("%w: stop does not accept an id or data", ErrProtocol)
		}
	case "":
		return fmt.Errorf("%w: event verb is required", ErrProtocol)
	default:
		return fmt.Errorf("%w: unknown event verb %q", ErrProtocol, m.Event)
	}
	if m.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrProtocol)
	}
	if m.Offset < 0 {
		return fmt.Errorf("%w: offset must not be negative", ErrProtocol)
	}
	return nil
}

// EventResponse is the mutation response envelope. Event echoes the request
// verb; Data carries the record, record list, or null depending on the verb.
type EventResponse struct {
	Collection string      `json:"collection"`
	Data       interface{} `json:"data"`
	Event      string      `json:"event"`
}

// StreamFrame is the payload of one SSE data frame.
type StreamFrame struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// CollectionResponse is the response for creating or fetching a collection.
type CollectionResponse struct {
	ID     string          `json:"id"`
	SHA    string          `json:"sha"`
	Schema json.RawMessage `json:"schema"`
}

// DeleteCollectionResponse reports a collection deletion. Code 0 means the
// collection was deleted, 1 that it did not exist.
type DeleteCollectionResponse struct {
	Code int `json:"code"`
}

// ServiceInfo is the banner served at the root path.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// Error codes surfaced in ErrorResponse.
const (
	ErrorCodeValidation         = 40001
	ErrorCodeProtocol           = 40002
	ErrorCodeCollectionNotFound = 40401
	ErrorCodeRecordNotFound     = 40402
	ErrorCodeConflict           = 40901
	ErrorCodeStorage            = 50001
	ErrorCodeShutdown           = 50301
)
