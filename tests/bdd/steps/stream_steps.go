//go:build bdd

package steps

import (
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

const frameWait = 3 * time.Second

// RegisterStreamSteps registers event stream step definitions.
func RegisterStreamSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// --- When steps ---
	ctx.Step(`^I open the collection's event stream$`, func() error {
		return tc.OpenStream("/v1/collections/objects/{{collection_id}}")
	})
	ctx.Step(`^I open the event stream for collection "([^"]*)"$`, func(id string) error {
		return tc.OpenStream("/v1/collections/objects/" + id)
	})
	ctx.Step(`^I close the stream$`, func() error {
		tc.CloseStream()
		return nil
	})

	// --- Then steps ---
	ctx.Step(`^the stream status should be (\d+)$`, func(expected int) error {
		if tc.StreamStatus != expected {
			return fmt.Errorf("expected stream status %d, got %d", expected, tc.StreamStatus)
		}
		return nil
	})
	ctx.Step(`^I receive a stream frame with event "([^"]*)"$`, func(expected string) error {
		select {
		case frame, ok := <-tc.StreamFrames:
			if !ok {
				return fmt.Errorf("stream closed while waiting for %q frame", expected)
			}
			tc.LastFrame = &frame
			if frame.Event != expected {
				return fmt.Errorf("expected frame event %q, got %q", expected, frame.Event)
			}
			return nil
		case <-tc.StreamDone:
			return fmt.Errorf("stream ended while waiting for %q frame", expected)
		case <-time.After(frameWait):
			return fmt.Errorf("no frame arrived within %s", frameWait)
		}
	})
	ctx.Step(`^the stream frame data field "([^"]*)" should be "([^"]*)"$`, func(field, expected string) error {
		if tc.LastFrame == nil {
			return fmt.Errorf("no frame received yet")
		}
		val, ok := tc.LastFrame.Data[field]
		if !ok {
			return fmt.Errorf("frame data has no field %q: %v", field, tc.LastFrame.Data)
		}
		if fmt.Sprintf("%v", val) != tc.resolveVars(expected) {
			return fmt.Errorf("frame data field %q: expected %q, got %v", field, expected, val)
		}
		return nil
	})
	ctx.Step(`^no stream frame should arrive$`, func() error {
		select {
		case frame, ok := <-tc.StreamFrames:
			if !ok {
				return nil
			}
			return fmt.Errorf("unexpected frame: %+v", frame)
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})
	ctx.Step(`^the stream should close$`, func() error {
		select {
		case <-tc.StreamDone:
			return nil
		case <-time.After(frameWait):
			return fmt.Errorf("stream still open after %s", frameWait)
		}
	})
}
