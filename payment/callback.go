package payment

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	apperrors "github.com/qrmenu/menu-relay/internal/errors"
)

// CallbackComplete is the gateway status for a settled payment.
const CallbackComplete = "COMPLETE"

// ErrInvalidSignature is returned when a callback was not signed with the merchant secret.
var ErrInvalidSignature = errors.Wrap(apperrors.ErrUnauthorized, "callback signature invalid")

// requiredSignedFields must all be covered by a callback signature. The form
// signature handed to the browser at initiation does not cover status, so it
// cannot be replayed as a completion.
var requiredSignedFields = []string{"transaction_uuid", "total_amount", "status"}

// Callback is the gateway's decoded "data" payload, every value kept as the
// literal text it was signed over.
type Callback struct {
	Fields map[string]string
}

// DecodeCallback reads the base64 JSON payload the gateway appends to the
// success redirect.
func DecodeCallback(data string) (*Callback, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(data); err != nil {
			return nil, errors.Wrap(apperrors.ErrInvalidInput, "[DecodeCallback] data is not base64")
		}
	}
	fields, err := DecodeFields(raw)
	if err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidInput, "[DecodeCallback] %v", err)
	}
	return &Callback{Fields: fields}, nil
}

func (c *Callback) TransactionUUID() string { return strings.TrimSpace(c.Fields["transaction_uuid"]) }
func (c *Callback) Status() string          { return strings.TrimSpace(c.Fields["status"]) }
func (c *Callback) ProductCode() string     { return c.Fields["product_code"] }
func (c *Callback) Signature() string       { return c.Fields["signature"] }

// Outcome maps the gateway status onto the intent lifecycle.
func (c *Callback) Outcome() Status {
	if strings.EqualFold(c.Status(), CallbackComplete) {
		return StatusConfirmed
	}
	return StatusFailed
}

// TotalAmount parses total_amount, which the gateway may send with thousands separators.
func (c *Callback) TotalAmount() (Money, error) {
	return ParseMoney(strings.ReplaceAll(c.Fields["total_amount"], ",", ""))
}

// SignedMessage rebuilds "name=value,..." in signed_field_names order.
func (c *Callback) SignedMessage() (string, error) {
	names := strings.Split(c.Fields["signed_field_names"], ",")
	covered := make(map[string]bool, len(names))
	parts := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		v, ok := c.Fields[name]
		if name == "" || !ok {
			return "", errors.Wrapf(ErrInvalidSignature, "signed field %q missing", name)
		}
		covered[name] = true
		parts = append(parts, name+"="+v)
	}
	for _, name := range requiredSignedFields {
		if !covered[name] {
			return "", errors.Wrapf(ErrInvalidSignature, "%s is not signed", name)
		}
	}
	if c.Signature() == "" {
		return "", errors.Wrap(ErrInvalidSignature, "signature missing")
	}
	return strings.Join(parts, ","), nil
}

// DecodeFields flattens a JSON object of scalars into strings, keeping numbers verbatim.
func DecodeFields(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode fields")
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			fields[k] = t
		case json.Number:
			fields[k] = t.String()
		case bool:
			fields[k] = fmt.Sprint(t)
		default:
			return nil, errors.Errorf("field %q is not a scalar", k)
		}
	}
	return fields, nil
}
