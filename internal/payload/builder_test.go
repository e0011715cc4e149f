package payload_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypost/waypost/internal/creds"
	"github.com/waypost/waypost/internal/payload"
	"github.com/waypost/waypost/internal/record"
	"github.com/waypost/waypost/internal/settings"
)

func testRecord() *record.Location {
	return &record.Location{
		ID:            42,
		Latitude:      52.370216,
		Longitude:     4.895168,
		Accuracy:      12.5,
		BatteryLevel:  88,
		BatteryStatus: record.BatteryCharging,
		Timestamp:     1700000000,
	}
}

func defaultOptions() payload.Options {
	return payload.Options{
		Endpoint: "https://track.example.com/log",
		Method:   http.MethodPost,
		FieldMap: settings.DefaultFieldMap(),
	}
}

func decodeBody(t *testing.T, req *http.Request) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestBuild_POSTBody(t *testing.T) {
	req, err := payload.Build(context.Background(), testRecord(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json; charset=UTF-8", req.Header.Get("Content-Type"))

	body := decodeBody(t, req)
	assert.Equal(t, 52.370216, body["lat"])
	assert.Equal(t, 4.895168, body["lon"])
	assert.Equal(t, 12.5, body["acc"])
	assert.Equal(t, float64(88), body["batt"])
	assert.Equal(t, "charging", body["bs"])
	assert.Equal(t, float64(1700000000), body["tst"])
}

func TestBuild_OmitsAbsentOptionalFields(t *testing.T) {
	req, err := payload.Build(context.Background(), testRecord(), defaultOptions())
	require.NoError(t, err)

	body := decodeBody(t, req)
	_, hasAlt := body["alt"]
	_, hasVel := body["vel"]
	_, hasBear := body["bear"]
	assert.False(t, hasAlt, "alt key must be entirely absent, not null or zero")
	assert.False(t, hasVel)
	assert.False(t, hasBear)
}

func TestBuild_IncludesPresentOptionalFields(t *testing.T) {
	rec := testRecord()
	alt := 3.2
	vel := 1.8
	bear := 182.0
	rec.Altitude = &alt
	rec.Speed = &vel
	rec.Bearing = &bear

	req, err := payload.Build(context.Background(), rec, defaultOptions())
	require.NoError(t, err)

	body := decodeBody(t, req)
	assert.Equal(t, 3.2, body["alt"])
	assert.Equal(t, 1.8, body["vel"])
	assert.Equal(t, 182.0, body["bear"])
}

func TestBuild_FieldMapRenamesAndFilters(t *testing.T) {
	opts := defaultOptions()
	opts.FieldMap = map[string]string{
		settings.FieldLat: "latitude",
		settings.FieldLon: "longitude",
		settings.FieldAcc: "hdop",
	}

	req, err := payload.Build(context.Background(), testRecord(), opts)
	require.NoError(t, err)

	body := decodeBody(t, req)
	assert.Equal(t, 52.370216, body["latitude"])
	assert.Equal(t, 4.895168, body["longitude"])
	assert.Equal(t, 12.5, body["hdop"])

	_, hasBatt := body["batt"]
	assert.False(t, hasBatt, "unmapped fields are not emitted")
}

func TestBuild_CustomFieldsVerbatim(t *testing.T) {
	opts := defaultOptions()
	opts.CustomFields = map[string]string{
		"device": "pixel-7",
		"source": "waypost",
	}

	req, err := payload.Build(context.Background(), testRecord(), opts)
	require.NoError(t, err)

	body := decodeBody(t, req)
	assert.Equal(t, "pixel-7", body["device"])
	assert.Equal(t, "waypost", body["source"])
}

func TestBuild_GETQueryParameters(t *testing.T) {
	opts := defaultOptions()
	opts.Method = http.MethodGet

	rec := testRecord()
	bear := 90.5
	rec.Bearing = &bear

	req, err := payload.Build(context.Background(), rec, opts)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)

	q := req.URL.Query()
	assert.Equal(t, "52.370216", q.Get("lat"))
	assert.Equal(t, "4.895168", q.Get("lon"))
	assert.Equal(t, "12.5", q.Get("acc"))
	assert.Equal(t, "88", q.Get("batt"))
	assert.Equal(t, "90.5", q.Get("bear"))
	assert.False(t, q.Has("alt"), "absent altitude must not appear as a parameter")
}

func TestBuild_AttachesAuthHeaders(t *testing.T) {
	provider := creds.NewStaticProvider(creds.StaticConfig{
		Type:   creds.AuthBearer,
		Token:  "tok-123",
		Custom: map[string]string{"X-Device-Id": "dev-9"},
	})

	opts := defaultOptions()
	opts.Headers = provider.Headers()

	req, err := payload.Build(context.Background(), testRecord(), opts)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
	assert.Equal(t, "dev-9", req.Header.Get("X-Device-Id"))
}

func TestBuildBatch_ArrayBody(t *testing.T) {
	recs := []*record.Location{testRecord(), testRecord()}
	recs[1].ID = 43
	recs[1].Latitude = 52.4

	req, err := payload.BuildBatch(context.Background(), recs, defaultOptions())
	require.NoError(t, err)

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body, 2)
	assert.Equal(t, 52.370216, body[0]["lat"])
	assert.Equal(t, 52.4, body[1]["lat"])
}

func TestBuildBatch_RejectsGET(t *testing.T) {
	opts := defaultOptions()
	opts.Method = http.MethodGet

	_, err := payload.BuildBatch(context.Background(), []*record.Location{testRecord()}, opts)
	assert.ErrorIs(t, err, payload.ErrBatchNeedsBody)
}

func TestBuild_NoEndpoint(t *testing.T) {
	opts := defaultOptions()
	opts.Endpoint = ""

	_, err := payload.Build(context.Background(), testRecord(), opts)
	assert.ErrorIs(t, err, payload.ErrNoEndpoint)
}

func TestStaticProvider_Basic(t *testing.T) {
	provider := creds.NewStaticProvider(creds.StaticConfig{
		Type:     creds.AuthBasic,
		Username: "anna",
		Password: "secret",
	})

	headers := provider.Headers()
	assert.Equal(t, "Basic YW5uYTpzZWNyZXQ=", headers["Authorization"])
}
