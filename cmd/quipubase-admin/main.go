// Package main is the entry point for the quipubase admin CLI.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	serverURL string
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quipubase-admin",
		Short: "Admin CLI for quipubase",
		Long:  `A command-line tool for managing collections and records in a quipubase server.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Quipubase server URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")

	// Collection commands
	collectionsCmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"coll"},
		Short:   "Manage collections",
	}

	collectionsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List all collections",
		RunE:  listCollections,
	}

	collectionsGetCmd := &cobra.Command{
		Use:   "get <collection-id>",
		Short: "Get a collection by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  getCollection,
	}

	collectionsCreateCmd := &cobra.Command{
		Use:   "create <schema-file>",
		Short: "Create a collection from a JSON Schema file (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  createCollection,
	}

	collectionsDeleteCmd := &cobra.Command{
		Use:   "delete <collection-id>",
		Short: "Delete a collection and its records",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteCollection,
	}

	collectionsToolCmd := &cobra.Command{
		Use:   "tool <collection-id>",
		Short: "Render the collection schema as a tool definition",
		Args:  cobra.ExactArgs(1),
		RunE:  getCollectionTool,
	}
	collectionsToolCmd.Flags().String("format", "openai", "Tool format: openai, anthropic")

	collectionsCmd.AddCommand(collectionsListCmd, collectionsGetCmd, collectionsCreateCmd, collectionsDeleteCmd, collectionsToolCmd)

	// Record commands
	recordsCmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"rec"},
		Short:   "Manage records",
	}

	recordsCreateCmd := &cobra.Command{
		Use:   "create <collection-id>",
		Short: "Create a record",
		Args:  cobra.ExactArgs(1),
		RunE:  createRecord,
	}
	recordsCreateCmd.Flags().String("data", "", "Record payload as JSON (required)")
	_ = recordsCreateCmd.MarkFlagRequired("data")

	recordsReadCmd := &cobra.Command{
		Use:   "read <collection-id> <record-id>",
		Short: "Read a record",
		Args:  cobra.ExactArgs(2),
		RunE:  readRecord,
	}

	recordsUpdateCmd := &cobra.Command{
		Use:   "update <collection-id> <record-id>",
		Short: "Update a record",
		Args:  cobra.ExactArgs(2),
		RunE:  updateRecord,
	}
	recordsUpdateCmd.Flags().String("data", "", "Fields to replace as JSON (required)")
	_ = recordsUpdateCmd.MarkFlagRequired("data")

	recordsDeleteCmd := &cobra.Command{
		Use:   "delete <collection-id> <record-id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE:  deleteRecord,
	}

	recordsQueryCmd := &cobra.Command{
		Use:   "query <collection-id>",
		Short: "Query records by equality filter",
		Args:  cobra.ExactArgs(1),
		RunE:  queryRecords,
	}
	recordsQueryCmd.Flags().String("filter", "", "Equality filter as JSON (empty matches all)")
	recordsQueryCmd.Flags().Int("limit", 0, "Maximum records to return (server default 100)")
	recordsQueryCmd.Flags().Int("offset", 0, "Matching records to skip")

	recordsStopCmd := &cobra.Command{
		Use:   "stop <collection-id>",
		Short: "Broadcast a stop marker to the collection's subscribers",
		Args:  cobra.ExactArgs(1),
		RunE:  stopCollection,
	}

	recordsCmd.AddCommand(recordsCreateCmd, recordsReadCmd, recordsUpdateCmd, recordsDeleteCmd, recordsQueryCmd, recordsStopCmd)

	// Stream command
	streamCmd := &cobra.Command{
		Use:   "stream <collection-id>",
		Short: "Tail a collection's event stream",
		Long:  `Follows the collection's server-sent event stream and prints one line per mutation until interrupted or a stop is broadcast.`,
		Args:  cobra.ExactArgs(1),
		RunE:  tailStream,
	}

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quipubase-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(collectionsCmd, recordsCmd, streamCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// doRequest performs one API call and returns the raw response body.
func doRequest(method, path string, body []byte) (json.RawMessage, error) {
	url := strings.TrimSuffix(serverURL, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d)", resp.StatusCode)
	}

	return raw, nil
}

// mutate posts one mutation envelope and returns the response data field.
func mutate(collectionID string, envelope map[string]interface{}) (json.RawMessage, string, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := doRequest("POST", "/v1/collections/objects/"+collectionID, body)
	if err != nil {
		return nil, "", err
	}

	var resp struct {
		Collection string          `json:"collection"`
		Data       json.RawMessage `json:"data"`
		Event      string          `json:"event"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Data, resp.Event, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRawJSON(raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return printJSON(v)
}

// Collection commands

func listCollections(cmd *cobra.Command, args []string) error {
	raw, err := doRequest("GET", "/v1/collections", nil)
	if err != nil {
		return err
	}

	var collections []struct {
		ID  string `json:"id"`
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(raw, &collections); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if output == "json" {
		return printRawJSON(raw)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSHA")
	for _, c := range collections {
		fmt.Fprintf(w, "%s\t%s\n", c.ID, c.SHA)
	}
	return w.Flush()
}

func getCollection(cmd *cobra.Command, args []string) error {
	raw, err := doRequest("GET", "/v1/collections/"+args[0], nil)
	if err != nil {
		return err
	}

	if output == "json" {
		return printRawJSON(raw)
	}

	var col struct {
		ID     string          `json:"id"`
		SHA    string          `json:"sha"`
		Schema json.RawMessage `json:"schema"`
	}
	if err := json.Unmarshal(raw, &col); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, col.Schema, "", "  "); err != nil {
		pretty.Write(col.Schema)
	}

	fmt.Printf("ID:     %s\n", col.ID)
	fmt.Printf("SHA:    %s\n", col.SHA)
	fmt.Printf("Schema: %s\n", pretty.String())
	return nil
}

func createCollection(cmd *cobra.Command, args []string) error {
	var schema []byte
	var err error
	if args[0] == "-" {
		schema, err = io.ReadAll(os.Stdin)
	} else {
		schema, err = os.ReadFile(args[0]) // #nosec G304 -- CLI tool; path is a user-provided argument
	}
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	raw, err := doRequest("POST", "/v1/collections", schema)
	if err != nil {
		return err
	}

	if output == "json" {
		return printRawJSON(raw)
	}

	var col struct {
		ID  string `json:"id"`
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(raw, &col); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Collection registered.\n")
	fmt.Printf("ID:  %s\n", col.ID)
	fmt.Printf("SHA: %s\n", col.SHA)
	return nil
}

func deleteCollection(cmd *cobra.Command, args []string) error {
	raw, err := doRequest("DELETE", "/v1/collections/"+args[0], nil)
	if err != nil {
		return err
	}

	if output == "json" {
		return printRawJSON(raw)
	}

	var result struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Code == 0 {
		fmt.Println("Collection deleted.")
	} else {
		fmt.Println("No such collection.")
	}
	return nil
}

func getCollectionTool(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	raw, err := doRequest("GET", "/v1/collections/"+args[0]+"/tool?format="+format, nil)
	if err != nil {
		return err
	}
	return printRawJSON(raw)
}

// Record commands

func parseData(cmd *cobra.Command, flagName string) (map[string]interface{}, error) {
	text, _ := cmd.Flags().GetString(flagName)
	if text == "" {
		return nil, nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("invalid --%s JSON: %w", flagName, err)
	}
	return data, nil
}

func createRecord(cmd *cobra.Command, args []string) error {
	data, err := parseData(cmd, "data")
	if err != nil {
		return err
	}

	result, _, err := mutate(args[0], map[string]interface{}{
		"event": "create",
		"data":  data,
	})
	if err != nil {
		return err
	}
	return printRawJSON(result)
}

func readRecord(cmd *cobra.Command, args []string) error {
	result, _, err := mutate(args[0], map[string]interface{}{
		"event": "read",
		"id":    args[1],
	})
	if err != nil {
		return err
	}
	return printRawJSON(result)
}

func updateRecord(cmd *cobra.Command, args []string) error {
	data, err := parseData(cmd, "data")
	if err != nil {
		return err
	}

	result, _, err := mutate(args[0], map[string]interface{}{
		"event": "update",
		"id":    args[1],
		"data":  data,
	})
	if err != nil {
		return err
	}
	return printRawJSON(result)
}

func deleteRecord(cmd *cobra.Command, args []string) error {
	result, _, err := mutate(args[0], map[string]interface{}{
		"event": "delete",
		"id":    args[1],
	})
	if err != nil {
		return err
	}

	if output == "json" {
		return printRawJSON(result)
	}

	fmt.Println("Record deleted. Pre-image:")
	return printRawJSON(result)
}

func queryRecords(cmd *cobra.Command, args []string) error {
	filter, err := parseData(cmd, "filter")
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	envelope := map[string]interface{}{"event": "query"}
	if filter != nil {
		envelope["data"] = filter
	}
	if limit > 0 {
		envelope["limit"] = limit
	}
	if offset > 0 {
		envelope["offset"] = offset
	}

	result, _, err := mutate(args[0], envelope)
	if err != nil {
		return err
	}

	if output == "json" {
		return printRawJSON(result)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(result, &records); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tDATA")
	for i, rec := range records {
		id, _ := rec["id"].(string)
		rest := make(map[string]interface{}, len(rec))
		for k, v := range rec {
			if k != "id" {
				rest[k] = v
			}
		}
		compact, _ := json.Marshal(rest)
		fmt.Fprintf(w, "%s\t%s\t%s\n", strconv.Itoa(i), id, compact)
	}
	return w.Flush()
}

func stopCollection(cmd *cobra.Command, args []string) error {
	_, _, err := mutate(args[0], map[string]interface{}{"event": "stop"})
	if err != nil {
		return err
	}
	fmt.Println("Stop broadcast.")
	return nil
}

// Stream command

func tailStream(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := strings.TrimSuffix(serverURL, "/") + "/v1/collections/objects/" + args[0]
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// No client timeout: the stream stays open until interrupted.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("API error (%d)", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if output == "json" {
			fmt.Println(payload)
			continue
		}

		var frame struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			fmt.Println(payload)
			continue
		}
		compact, _ := json.Marshal(frame.Data)
		fmt.Printf("%-8s %s\n", frame.Event, compact)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
