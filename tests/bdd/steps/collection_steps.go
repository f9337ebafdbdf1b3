//go:build bdd

package steps

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// RegisterCollectionSteps registers collection-related step definitions.
func RegisterCollectionSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// --- Given steps ---
	ctx.Step(`^the server is running$`, func() error {
		if err := tc.GET("/"); err != nil {
			return err
		}
		if tc.LastStatusCode != 200 {
			return fmt.Errorf("server not healthy: status %d", tc.LastStatusCode)
		}
		return nil
	})
	ctx.Step(`^a collection registered with schema:$`, func(schema *godog.DocString) error {
		if err := tc.POST("/v1/collections", schema.Content); err != nil {
			return err
		}
		if tc.LastStatusCode != 200 {
			return fmt.Errorf("expected 200 registering schema, got %d: %s", tc.LastStatusCode, string(tc.LastBody))
		}
		id, err := tc.JSONFieldString("id")
		if err != nil {
			return err
		}
		tc.StoredValues["collection_id"] = id
		return nil
	})

	// --- Generic HTTP steps ---
	ctx.Step(`^I GET "([^"]*)"$`, func(path string) error {
		return tc.GET(path)
	})
	ctx.Step(`^I POST "([^"]*)" with body:$`, func(path string, body *godog.DocString) error {
		return tc.POST(path, body.Content)
	})
	ctx.Step(`^I DELETE "([^"]*)"$`, func(path string) error {
		return tc.DELETE(path)
	})

	// --- When steps ---
	ctx.Step(`^I register a collection with schema:$`, func(schema *godog.DocString) error {
		return tc.POST("/v1/collections", schema.Content)
	})
	ctx.Step(`^I list the collections$`, func() error {
		return tc.GET("/v1/collections")
	})
	ctx.Step(`^I list the collections with limit (\d+) and offset (\d+)$`, func(limit, offset int) error {
		return tc.GET(fmt.Sprintf("/v1/collections?limit=%d&offset=%d", limit, offset))
	})
	ctx.Step(`^I get the collection$`, func() error {
		return tc.GET("/v1/collections/{{collection_id}}")
	})
	ctx.Step(`^I get collection "([^"]*)"$`, func(id string) error {
		return tc.GET("/v1/collections/" + id)
	})
	ctx.Step(`^I delete the collection$`, func() error {
		return tc.DELETE("/v1/collections/{{collection_id}}")
	})
	ctx.Step(`^I delete collection "([^"]*)"$`, func(id string) error {
		return tc.DELETE("/v1/collections/" + id)
	})
	ctx.Step(`^I request the collection tool$`, func() error {
		return tc.GET("/v1/collections/{{collection_id}}/tool")
	})
	ctx.Step(`^I request the collection tool in "([^"]*)" format$`, func(format string) error {
		return tc.GET("/v1/collections/{{collection_id}}/tool?format=" + format)
	})

	// --- Then steps ---
	ctx.Step(`^the response status should be (\d+)$`, func(expected int) error {
		if tc.LastStatusCode != expected {
			return fmt.Errorf("expected status %d, got %d: %s", expected, tc.LastStatusCode, string(tc.LastBody))
		}
		return nil
	})
	ctx.Step(`^the response should have field "([^"]*)"$`, func(field string) error {
		_, err := tc.JSONField(field)
		return err
	})
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, func(field, expected string) error {
		val, err := tc.JSONFieldString(field)
		if err != nil {
			return err
		}
		if val != expected {
			return fmt.Errorf("field %q: expected %q, got %q", field, expected, val)
		}
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, func(field string, expected int) error {
		val, err := tc.JSONFieldInt(field)
		if err != nil {
			return err
		}
		if val != expected {
			return fmt.Errorf("field %q: expected %d, got %d", field, expected, val)
		}
		return nil
	})
	ctx.Step(`^the response should have error code (\d+)$`, func(code int) error {
		val, err := tc.JSONFieldInt("error_code")
		if err != nil {
			return err
		}
		if val != code {
			return fmt.Errorf("expected error_code %d, got %d", code, val)
		}
		return nil
	})
	ctx.Step(`^the response should be an array of length (\d+)$`, func(expected int) error {
		if tc.LastJSONArray == nil {
			if expected == 0 && strings.TrimSpace(string(tc.LastBody)) == "[]" {
				return nil
			}
			return fmt.Errorf("response is not a JSON array: %s", string(tc.LastBody))
		}
		if len(tc.LastJSONArray) != expected {
			return fmt.Errorf("expected array length %d, got %d: %s", expected, len(tc.LastJSONArray), string(tc.LastBody))
		}
		return nil
	})
	ctx.Step(`^the response body should contain "([^"]*)"$`, func(expected string) error {
		if !strings.Contains(string(tc.LastBody), tc.resolveVars(expected)) {
			return fmt.Errorf("response body does not contain %q: %s", expected, string(tc.LastBody))
		}
		return nil
	})
	ctx.Step(`^I store the response field "([^"]*)" as "([^"]*)"$`, func(field, key string) error {
		val, err := tc.JSONField(field)
		if err != nil {
			return err
		}
		tc.StoredValues[key] = fmt.Sprintf("%v", val)
		return nil
	})
	ctx.Step(`^the response field "([^"]*)" should equal the stored "([^"]*)"$`, func(field, key string) error {
		stored, ok := tc.StoredValues[key]
		if !ok {
			return fmt.Errorf("no stored value %q", key)
		}
		val, err := tc.JSONField(field)
		if err != nil {
			return err
		}
		if fmt.Sprintf("%v", val) != stored {
			return fmt.Errorf("field %q: expected stored %q, got %v", field, stored, val)
		}
		return nil
	})
}
