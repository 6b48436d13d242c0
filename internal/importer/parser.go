package importer

import (
	"strings"
	"time"

	"github.com/oicur0t/sematext2psql/internal/fault"
	"github.com/oicur0t/sematext2psql/pkg/models"
	"github.com/valyala/fastjson"
)

// DefaultMarker separates the file-name prefix left by the upstream grep from the JSON payload
const DefaultMarker = ".json:"

const maxQuotedInput = 200

// Parser turns raw input lines into log records.
// It reuses parse buffers between calls and is not safe for concurrent use.
type Parser struct {
	marker string
	json   fastjson.Parser
}

// NewParser creates a parser splitting lines on marker
func NewParser(marker string) *Parser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Parser{marker: marker}
}

// Parse extracts a record from one line. The payload is everything after the
// first occurrence of the marker, so a marker inside the JSON itself is harmless.
func (p *Parser) Parse(raw string) (models.LogRecord, error) {
	line := strings.TrimSuffix(raw, "\r")

	_, payload, found := strings.Cut(line, p.marker)
	if !found {
		return models.LogRecord{}, fault.Newf(fault.InputFormat, "marker %q not found in %q", p.marker, quoted(line))
	}

	doc, err := p.json.Parse(payload)
	if err != nil {
		return models.LogRecord{}, fault.Newf(fault.InputFormat, "invalid json %q", quoted(payload)).WithOriginal(err)
	}

	createdAt, err := requiredTimestamp(doc, "@timestamp")
	if err != nil {
		return models.LogRecord{}, err
	}

	return models.LogRecord{
		PodName:   optionalString(doc, "kubernetes", "pod", "name"),
		Message:   optionalString(doc, "message"),
		CreatedAt: createdAt,
	}, nil
}

// optionalString returns the value at path as text. Missing keys and null give "";
// non-string values are rendered as compact JSON.
func optionalString(doc *fastjson.Value, path ...string) string {
	v := doc.Get(path...)
	if v == nil {
		return ""
	}

	switch v.Type() {
	case fastjson.TypeNull:
		return ""
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	default:
		return v.String()
	}
}

// requiredTimestamp parses an RFC3339 string field and normalizes it to UTC
func requiredTimestamp(doc *fastjson.Value, key string) (time.Time, error) {
	v := doc.Get(key)
	if v == nil {
		return time.Time{}, fault.Newf(fault.Field, "missing %s", key)
	}
	if v.Type() != fastjson.TypeString {
		return time.Time{}, fault.Newf(fault.Field, "%s is a %s, not a string", key, v.Type())
	}

	s := string(v.GetStringBytes())
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fault.Newf(fault.Field, "bad %s %q", key, s).WithOriginal(err)
	}

	return ts.UTC(), nil
}

func quoted(s string) string {
	if len(s) <= maxQuotedInput {
		return s
	}
	return s[:maxQuotedInput] + "..."
}
