package paystack

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/phillip/membership-portal-go/apperrors"
)

const (
	EventChargeSuccess = "charge.success"
	StatusSuccess      = "success"
)

type Customer struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

// Transaction is the gateway's record of a payment attempt. Amount is in minor units.
type Transaction struct {
	ID        int64           `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	PaidAt    string          `json:"paid_at"`
	Customer  Customer        `json:"customer"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (t Transaction) Successful() bool {
	return t.Status == StatusSuccess
}

// Event is a webhook delivery.
type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// ParseEvent decodes a webhook body. Call it only after the signature is verified.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook payload: %v", apperrors.ErrValidation, err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("%w: webhook payload has no event type", apperrors.ErrValidation)
	}
	return &evt, nil
}

type CustomField struct {
	DisplayName  string      `json:"display_name"`
	VariableName string      `json:"variable_name"`
	Value        interface{} `json:"value"`
}

// Metadata is the caller-defined context attached at transaction initiation.
type Metadata struct {
	CustomFields []CustomField
	Fields       map[string]interface{}
}

// ParseMetadata accepts an object, a JSON-encoded string holding an object, or nothing.
// Anything unparseable yields empty metadata.
func ParseMetadata(raw json.RawMessage) Metadata {
	md := Metadata{Fields: map[string]interface{}{}}
	if len(raw) == 0 || string(raw) == "null" {
		return md
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if strings.TrimSpace(encoded) == "" {
			return md
		}
		raw = json.RawMessage(encoded)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return md
	}

	for key, value := range fields {
		if key == "custom_fields" {
			_ = json.Unmarshal(value, &md.CustomFields)
			continue
		}
		var v interface{}
		if err := json.Unmarshal(value, &v); err == nil {
			md.Fields[key] = v
		}
	}
	return md
}

// Lookup finds a value by custom field variable name, then display name, then top-level key.
func (m Metadata) Lookup(name string) string {
	for _, f := range m.CustomFields {
		if strings.EqualFold(f.VariableName, name) {
			if s := stringify(f.Value); s != "" {
				return s
			}
		}
	}
	for _, f := range m.CustomFields {
		if strings.EqualFold(f.DisplayName, name) {
			if s := stringify(f.Value); s != "" {
				return s
			}
		}
	}
	return stringify(m.Fields[name])
}

// Map flattens the metadata for pass-through storage.
func (m Metadata) Map() map[string]interface{} {
	if len(m.Fields) == 0 && len(m.CustomFields) == 0 {
		return nil
	}

	out := make(map[string]interface{}, len(m.Fields)+1)
	for k, v := range m.Fields {
		out[k] = v
	}
	if len(m.CustomFields) > 0 {
		custom := make(map[string]interface{}, len(m.CustomFields))
		for _, f := range m.CustomFields {
			key := f.VariableName
			if key == "" {
				key = f.DisplayName
			}
			custom[key] = f.Value
		}
		out["custom_fields"] = custom
	}
	return out
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}
