package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "runner",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/runner/submissions",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "lesson_id", Prompt: "lesson_id", Type: FieldString, Required: true},
				{Name: "entry_point", Prompt: "entry_point", Type: FieldString, Required: true},
				{Name: "tests_json", Prompt: "tests_json (JSON array)", Type: FieldJSON, Required: true},
				{Name: "session_id", Prompt: "session_id", Type: FieldString, Required: false},
				{Name: "backend_kind", Prompt: "backend_kind (interp|remote)", Type: FieldString, Required: false},
				{Name: "source_file", Prompt: "source_file", Type: FieldFile, Required: false},
				{Name: "files_json", Prompt: "files_json (JSON array)", Type: FieldJSON, Required: false},
				{Name: "files_file", Prompt: "files_file", Type: FieldFile, Required: false},
				{Name: "tests_file", Prompt: "tests_file", Type: FieldFile, Required: false},
				{Name: "timeout_ms", Prompt: "timeout_ms", Type: FieldInt64, Required: false},
				{Name: "aggregate_timeout_ms", Prompt: "aggregate_timeout_ms", Type: FieldInt64, Required: false},
			},
		},
		{
			Service:      "runner",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/runner/submissions/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "runner",
			Action:       "history",
			Method:       "GET",
			PathTemplate: "/api/v1/runner/submissions",
			RequiresAuth: true,
			QueryFields:  []string{"lesson_id"},
			Fields: []Field{
				{Name: "lesson_id", Prompt: "lesson_id", Type: FieldString, Required: false},
			},
		},
		{
			Service:      "runner",
			Action:       "cancel",
			Method:       "POST",
			PathTemplate: "/api/v1/runner/submissions/:id/cancel",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	path = appendQuery(path, cmd.QueryFields, params)

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	placeholder := ":id"
	if strings.Contains(path, placeholder) {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	return path, nil
}

func appendQuery(path string, queryFields []string, params Params) string {
	values := url.Values{}
	for _, key := range queryFields {
		if v := params.Get(key); v != "" {
			values.Set(key, v)
		}
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Service != "runner" || cmd.Action != "submit" {
		return nil, nil
	}
	return buildSubmitPayload(params)
}

type filePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func buildSubmitPayload(params Params) (interface{}, error) {
	files, err := collectFiles(params)
	if err != nil {
		return nil, err
	}
	testsJSON, err := parseJSONOrFile(params, "tests_json", "tests_file")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"lesson_id":   params.Get("lesson_id"),
		"entry_point": params.Get("entry_point"),
		"files":       files,
		"tests":       testsJSON,
	}
	if params.Get("session_id") != "" {
		payload["session_id"] = params.Get("session_id")
	}
	if params.Get("backend_kind") != "" {
		payload["backend_kind"] = params.Get("backend_kind")
	}
	if params.Get("timeout_ms") != "" {
		ms, err := ParseInt64(params.Get("timeout_ms"))
		if err != nil {
			return nil, fmt.Errorf("invalid timeout_ms: %w", err)
		}
		payload["timeout_ms"] = ms
	}
	if params.Get("aggregate_timeout_ms") != "" {
		ms, err := ParseInt64(params.Get("aggregate_timeout_ms"))
		if err != nil {
			return nil, fmt.Errorf("invalid aggregate_timeout_ms: %w", err)
		}
		payload["aggregate_timeout_ms"] = ms
	}
	return payload, nil
}

// collectFiles accepts either a single source file staged at the entry
// point path, or a full project as a JSON array of path/content pairs.
func collectFiles(params Params) (interface{}, error) {
	if params.Get("source_file") != "" {
		content, err := ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
		entry := params.Get("entry_point")
		if entry == "" {
			return nil, fmt.Errorf("entry_point is required")
		}
		return []filePayload{{Path: entry, Content: content}}, nil
	}

	filesJSON, err := parseJSONOrFile(params, "files_json", "files_file")
	if err != nil {
		return nil, fmt.Errorf("either source_file or files_json is required: %w", err)
	}
	return filesJSON, nil
}

func parseJSONOrFile(params Params, key, fileKey string) (json.RawMessage, error) {
	value := params.Get(key)
	if (value == "" || value == "_file_") && params.Get(fileKey) != "" {
		data, err := ReadFile(params.Get(fileKey))
		if err != nil {
			return nil, err
		}
		value = data
	}
	if value == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	return ParseJSON(value)
}
