//go:build bdd

package steps

import (
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// RegisterRecordSteps registers record mutation step definitions.
func RegisterRecordSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	mutationPath := "/v1/collections/objects/{{collection_id}}"

	// --- Given steps ---
	ctx.Step(`^a record exists with data:$`, func(data *godog.DocString) error {
		body := fmt.Sprintf(`{"event": "create", "data": %s}`, data.Content)
		if err := tc.POST(mutationPath, body); err != nil {
			return err
		}
		if tc.LastStatusCode != 200 {
			return fmt.Errorf("expected 200 creating record, got %d: %s", tc.LastStatusCode, string(tc.LastBody))
		}
		id, err := tc.DataField("id")
		if err != nil {
			return err
		}
		tc.StoredValues["record_id"] = fmt.Sprintf("%v", id)
		return nil
	})

	// --- When steps ---
	ctx.Step(`^I create a record with data:$`, func(data *godog.DocString) error {
		return tc.POST(mutationPath, fmt.Sprintf(`{"event": "create", "data": %s}`, data.Content))
	})
	ctx.Step(`^I read the record$`, func() error {
		return tc.POST(mutationPath, `{"event": "read", "id": "{{record_id}}"}`)
	})
	ctx.Step(`^I read record "([^"]*)"$`, func(id string) error {
		return tc.POST(mutationPath, fmt.Sprintf(`{"event": "read", "id": %q}`, id))
	})
	ctx.Step(`^I update the record with data:$`, func(data *godog.DocString) error {
		return tc.POST(mutationPath, fmt.Sprintf(`{"event": "update", "id": "{{record_id}}", "data": %s}`, data.Content))
	})
	ctx.Step(`^I delete the record$`, func() error {
		return tc.POST(mutationPath, `{"event": "delete", "id": "{{record_id}}"}`)
	})
	ctx.Step(`^I query records with filter:$`, func(filter *godog.DocString) error {
		return tc.POST(mutationPath, fmt.Sprintf(`{"event": "query", "data": %s}`, filter.Content))
	})
	ctx.Step(`^I query all records$`, func() error {
		return tc.POST(mutationPath, `{"event": "query"}`)
	})
	ctx.Step(`^I query records with limit (\d+) and offset (\d+)$`, func(limit, offset int) error {
		return tc.POST(mutationPath, fmt.Sprintf(`{"event": "query", "limit": %d, "offset": %d}`, limit, offset))
	})
	ctx.Step(`^I send a mutation:$`, func(envelope *godog.DocString) error {
		return tc.POST(mutationPath, envelope.Content)
	})
	ctx.Step(`^I send a mutation to collection "([^"]*)":$`, func(id string, envelope *godog.DocString) error {
		return tc.POST("/v1/collections/objects/"+id, envelope.Content)
	})
	ctx.Step(`^I broadcast a stop$`, func() error {
		return tc.POST(mutationPath, `{"event": "stop"}`)
	})

	// --- Then steps ---
	ctx.Step(`^the response event should be "([^"]*)"$`, func(expected string) error {
		val, err := tc.JSONFieldString("event")
		if err != nil {
			return err
		}
		if val != expected {
			return fmt.Errorf("expected event %q, got %q", expected, val)
		}
		return nil
	})
	ctx.Step(`^the response data should have field "([^"]*)"$`, func(field string) error {
		_, err := tc.DataField(field)
		return err
	})
	ctx.Step(`^the response data field "([^"]*)" should be "([^"]*)"$`, func(field, expected string) error {
		val, err := tc.DataField(field)
		if err != nil {
			return err
		}
		if fmt.Sprintf("%v", val) != tc.resolveVars(expected) {
			return fmt.Errorf("data field %q: expected %q, got %v", field, expected, val)
		}
		return nil
	})
	ctx.Step(`^the response data field "([^"]*)" should be (true|false)$`, func(field, expected string) error {
		val, err := tc.DataField(field)
		if err != nil {
			return err
		}
		if val != (expected == "true") {
			return fmt.Errorf("data field %q: expected %s, got %v", field, expected, val)
		}
		return nil
	})
	ctx.Step(`^the response data should be an array of length (\d+)$`, func(expected int) error {
		arr, err := tc.DataArray()
		if err != nil {
			return err
		}
		if len(arr) != expected {
			return fmt.Errorf("expected data array length %d, got %d: %s", expected, len(arr), string(tc.LastBody))
		}
		return nil
	})
	ctx.Step(`^the response data should be null$`, func() error {
		raw, err := tc.JSONField("data")
		if err != nil {
			return err
		}
		if raw != nil {
			return fmt.Errorf("expected null data, got %v", raw)
		}
		return nil
	})
	ctx.Step(`^every record in the data array should have "([^"]*)" equal to (true|false)$`, func(field, expected string) error {
		arr, err := tc.DataArray()
		if err != nil {
			return err
		}
		want := expected == "true"
		for i, item := range arr {
			rec, ok := item.(map[string]interface{})
			if !ok {
				return fmt.Errorf("data[%d] is not an object", i)
			}
			if rec[field] != want {
				return fmt.Errorf("data[%d].%s: expected %v, got %v", i, field, want, rec[field])
			}
		}
		return nil
	})
	ctx.Step(`^I store the response data field "([^"]*)" as "([^"]*)"$`, func(field, key string) error {
		val, err := tc.DataField(field)
		if err != nil {
			return err
		}
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		// Strings store unquoted so placeholders splice into paths and bodies.
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			tc.StoredValues[key] = s
		} else {
			tc.StoredValues[key] = string(b)
		}
		return nil
	})
}
