// Package payload builds delivery requests from location records and the
// user's delivery template. The builder is pure and stateless: records in,
// one HTTP request out.
package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/waypost/waypost/internal/creds"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
)

// Builder errors.
var (
	ErrNoEndpoint      = errors.New("no endpoint configured")
	ErrBatchNeedsBody  = errors.New("array payloads require a body-carrying method")
	ErrEmptyBatch      = errors.New("empty record batch")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Options is the delivery template: where to send, how to encode, and
// which internal fields map to which remote parameter names.
type Options struct {
	Endpoint     string
	Method       string
	FieldMap     map[string]string
	CustomFields map[string]string
	Headers      creds.HeaderSet
}

// Build creates a request carrying a single record. GET templates encode
// the fields as query parameters; body-carrying methods send a JSON
// object.
func Build(ctx context.Context, rec *record.Location, opts Options) (*http.Request, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	if method == http.MethodGet {
		return buildQuery(ctx, rec, opts)
	}
	return buildJSON(ctx, method, fields(rec, opts), opts)
}

// BuildBatch creates one request carrying many records as a JSON array.
// GET templates cannot carry an array; callers fall back to per-record
// requests for those.
func BuildBatch(ctx context.Context, recs []*record.Location, opts Options) (*http.Request, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if len(recs) == 0 {
		return nil, ErrEmptyBatch
	}

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}
	if method == http.MethodGet {
		return nil, ErrBatchNeedsBody
	}

	body := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		body = append(body, fields(rec, opts))
	}

	return newJSONRequest(ctx, method, opts, body)
}

// fields maps a record onto the configured wire names. Only fields
// present in the field map are emitted; altitude, speed and bearing are
// omitted entirely when the record lacks them, never sent as null or
// zero, since receiving backends treat absence and zero differently.
func fields(rec *record.Location, opts Options) map[string]interface{} {
	out := make(map[string]interface{}, len(opts.FieldMap)+len(opts.CustomFields))

	emit := func(key string, value interface{}) {
		if name, ok := opts.FieldMap[key]; ok {
			out[name] = value
		}
	}

	emit(settings.FieldLat, rec.Latitude)
	emit(settings.FieldLon, rec.Longitude)
	emit(settings.FieldAcc, rec.Accuracy)
	emit(settings.FieldBatt, rec.BatteryLevel)
	emit(settings.FieldBattSt, string(rec.BatteryStatus))
	emit(settings.FieldTime, rec.Timestamp)

	if rec.Altitude != nil {
		emit(settings.FieldAlt, *rec.Altitude)
	}
	if rec.Speed != nil {
		emit(settings.FieldVel, *rec.Speed)
	}
	if rec.Bearing != nil {
		emit(settings.FieldBearing, *rec.Bearing)
	}

	for k, v := range opts.CustomFields {
		out[k] = v
	}

	return out
}

func buildQuery(ctx context.Context, rec *record.Location, opts Options) (*http.Request, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	q := u.Query()
	for name, value := range fields(rec, opts) {
		q.Set(name, stringify(value))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	applyHeaders(req, opts.Headers)
	return req, nil
}

func buildJSON(ctx context.Context, method string, body map[string]interface{}, opts Options) (*http.Request, error) {
	return newJSONRequest(ctx, method, opts, body)
}

func newJSONRequest(ctx context.Context, method string, opts Options, body interface{}) (*http.Request, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	applyHeaders(req, opts.Headers)
	return req, nil
}

func applyHeaders(req *http.Request, headers creds.HeaderSet) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

func stringify(v interface{}) string {
	switch value := v.(type) {
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}
