package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnencodable is returned when a document holds a value without a fixed
// encoding rule. Nothing is sent for such a document.
var ErrUnencodable = errors.New("payload: unencodable value")

// Encoder serializes documents. Output for equal documents is byte-identical.
type Encoder interface {
	Encode(doc Document) ([]byte, error)
	Name() string
}

// NewEncoder returns the encoder registered under name ("json" or "goccy").
func NewEncoder(name string) (Encoder, error) {
	switch name {
	case "", "json":
		return stdEncoder{}, nil
	case "goccy":
		return goccyEncoder{}, nil
	default:
		return nil, fmt.Errorf("payload: unknown encoder %q", name)
	}
}

type stdEncoder struct{}

func (stdEncoder) Name() string { return "json" }

func (stdEncoder) Encode(doc Document) ([]byte, error) {
	tree, err := doc.tree()
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

type goccyEncoder struct{}

func (goccyEncoder) Name() string { return "goccy" }

func (goccyEncoder) Encode(doc Document) ([]byte, error) {
	tree, err := doc.tree()
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(tree)
}

// tree converts the document into plain maps, slices and scalars. Map keys
// are sorted by both encoders, which is what makes the output deterministic.
func (d Document) tree() (map[string]any, error) {
	object, err := normalize(d.Object, "object")
	if err != nil {
		return nil, err
	}
	if object == nil {
		object = map[string]any{}
	}
	return map[string]any{
		"topic":        d.Topic,
		"object_type":  d.ObjectType,
		"webhook_uuid": d.WebhookUUID,
		"object":       object,
		"activity": map[string]any{
			"title":       d.Activity.Title,
			"description": d.Activity.Description,
			"actor":       d.Activity.Actor,
			"timestamp":   formatTime(d.Activity.Timestamp),
			"url":         d.Activity.URL,
		},
	}, nil
}

// Encoding rules:
//   - time.Time: RFC 3339 with nanoseconds, in UTC
//   - decimal.Decimal: its exact decimal string
//   - uuid.UUID: canonical hyphenated lowercase form
//   - json.RawMessage: compacted, must be valid JSON
//   - nil, strings, bools, integers and finite floats: as is
//   - maps with string keys and slices: element-wise
func normalize(v any, path string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return x, nil
	case float32:
		return normalize(float64(x), path)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s is %v", ErrUnencodable, path, x)
		}
		return x, nil
	case time.Time:
		return formatTime(x), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return formatTime(*x), nil
	case decimal.Decimal:
		return x.String(), nil
	case uuid.UUID:
		return x.String(), nil
	case json.RawMessage:
		if len(x) == 0 {
			return nil, nil
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, x); err != nil {
			return nil, fmt.Errorf("%w: %s is not valid JSON", ErrUnencodable, path)
		}
		return json.RawMessage(buf.Bytes()), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalize(e, path+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		return append([]string(nil), x...), nil
	default:
		return nil, fmt.Errorf("%w: %s has type %T", ErrUnencodable, path, v)
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
