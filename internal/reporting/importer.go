package reporting

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// PreviewRows is how many parsed rows an import preview returns.
const PreviewRows = 5

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportPreview is the parsed view of an uploaded file. Nothing is stored.
type ImportPreview struct {
	Entity    string              `json:"entity"`
	Headers   []string            `json:"headers"`
	Rows      []map[string]string `json:"rows"`
	Records   []any               `json:"records"`
	TotalRows int                 `json:"total_rows"`
	ValidRows int                 `json:"valid_rows"`
	Errors    []RowError          `json:"errors,omitempty"`
}

// Preview splits content on newlines and commas, takes the first line as the
// header row and returns up to PreviewRows rows. Every row is also decoded
// into the entity's record type to report conversion problems.
func Preview(entity, content string) (*ImportPreview, error) {
	e, ok := exporters[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	headers := splitFields(lines[0])
	keys := importKeys(e, headers)

	p := &ImportPreview{
		Entity:    entity,
		Headers:   headers,
		Rows:      []map[string]string{},
		Records:   []any{},
		TotalRows: len(lines) - 1,
	}
	for i, line := range lines[1:] {
		values := splitFields(line)
		row := make(map[string]string, len(headers))
		input := make(map[string]any, len(headers))
		for col, h := range headers {
			v := ""
			if col < len(values) {
				v = values[col]
			}
			row[h] = v
			if keys[col] != "" {
				input[keys[col]] = v
			}
		}

		record := e.newRecord()
		if err := decodeRow(input, record); err != nil {
			p.Errors = append(p.Errors, RowError{Row: i + 1, Error: err.Error()})
		} else {
			p.ValidRows++
		}

		if len(p.Rows) < PreviewRows {
			p.Rows = append(p.Rows, row)
			p.Records = append(p.Records, record)
		}
	}
	return p, nil
}

func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// importKeys maps uploaded header names to record keys. Matching is
// case-insensitive; unknown columns are ignored.
func importKeys(e exporter, headers []string) []string {
	byHeader := make(map[string]string, len(e.header))
	for i, h := range e.header {
		if i < len(e.fields) {
			byHeader[strings.ToLower(h)] = e.fields[i]
		}
	}
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = byHeader[strings.ToLower(h)]
	}
	return keys
}

func decodeRow(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			dateHook,
			mapstructure.StringToSliceHookFunc(" "),
		),
		WeaklyTypedInput: true,
		Squash:           true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// dateHook accepts empty strings and YYYY-MM-DD dates for time.Time fields.
func dateHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
