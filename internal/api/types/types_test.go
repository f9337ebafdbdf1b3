package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMutationRequest_Validate(t *testing.T) {
	doc := map[string]interface{}{"name": "x"}

	tests := []struct {
		name    string
		req     MutationRequest
		wantErr bool
	}{
		{"create with data", MutationRequest{Event: VerbCreate, Data: doc}, false},
		{"create without data", MutationRequest{Event: VerbCreate}, true},
		{"create with request id", MutationRequest{Event: VerbCreate, ID: "r1", Data: doc}, true},
		{"read with id", MutationRequest{Event: VerbRead, ID: "r1"}, false},
		{"read without id", MutationRequest{Event: VerbRead}, true},
		{"read with data", MutationRequest{Event: VerbRead, ID: "r1", Data: doc}, true},
		{"update with both", MutationRequest{Event: VerbUpdate, ID: "r1", Data: doc}, false},
		{"update without id", MutationRequest{Event: VerbUpdate, Data: doc}, true},
		{"update without data", MutationRequest{Event: VerbUpdate, ID: "r1"}, true},
		{"delete with id", MutationRequest{Event: VerbDelete, ID: "r1"}, false},
		{"delete without id", MutationRequest{Event: VerbDelete}, true},
		{"delete with data", MutationRequest{Event: VerbDelete, ID: "r1", Data: doc}, true},
		{"query bare", MutationRequest{Event: VerbQuery}, false},
		{"query with filter", MutationRequest{Event: VerbQuery, Data: doc, Limit: 10, Offset: 5}, false},
		{"query with id", MutationRequest{Event: VerbQuery, ID: "r1"}, true},
		{"query negative limit", MutationRequest{Event: VerbQuery, Limit: -1}, true},
		{"query negative offset", MutationRequest{Event: VerbQuery, Offset: -1}, true},
		{"stop bare", MutationRequest{Event: VerbStop}, false},
		{"stop with id", MutationRequest{Event: VerbStop, ID: "r1"}, true},
		{"stop with data", MutationRequest{Event: VerbStop, Data: doc}, true},
		{"missing verb", MutationRequest{}, true},
		{"unknown verb", MutationRequest{Event: "upsert"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrProtocol) {
				t.Errorf("Expected ErrProtocol, got %v", err)
			}
		})
	}
}

func TestMutationRequest_NullDataIsAbsent(t *testing.T) {
	var req MutationRequest
	if err := json.Unmarshal([]byte(`{"event":"read","id":"r1","data":null}`), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Expected null data treated as absent, got %v", err)
	}
}

func TestEventResponse_NullData(t *testing.T) {
	out, err := json.Marshal(EventResponse{Collection: "c1", Data: nil, Event: VerbStop})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"collection":"c1","data":null,"event":"stop"}`
	if string(out) != want {
		t.Errorf("Expected %s, got %s", want, string(out))
	}
}
