// Package settings holds the tracking configuration: the user's stored
// base settings plus the profile override layered on top of them. Exactly
// one coherent snapshot is active at any instant.
package settings

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
	ErrInsecureEndpoint = errors.New("plain http is only allowed for private or loopback hosts")
	ErrInvalidMethod    = errors.New("unsupported http method")
	ErrInvalidInterval  = errors.New("invalid interval")
)

// Wire field keys understood by delivery templates. FieldMap maps these to
// the remote endpoint's parameter names; keys absent from the map are not
// emitted at all.
const (
	FieldLat     = "lat"
	FieldLon     = "lon"
	FieldAcc     = "acc"
	FieldAlt     = "alt"
	FieldVel     = "vel"
	FieldBatt    = "batt"
	FieldBattSt  = "bs"
	FieldTime    = "tst"
	FieldBearing = "bear"
)

// Settings is one coherent tracking configuration snapshot.
type Settings struct {
	// Capture parameters.
	CaptureIntervalMs int64   `json:"captureIntervalMs"`
	DistanceMeters    float64 `json:"distanceMeters"`
	AccuracyFilter    bool    `json:"accuracyFilter"`
	AccuracyMeters    float64 `json:"accuracyMeters"`

	// Sync parameters. SyncIntervalSec == 0 means instant mode: drain as
	// soon as a record is enqueued. MaxRetries == 0 means unlimited.
	SyncIntervalSec  int  `json:"syncIntervalSec"`
	MaxRetries       int  `json:"maxRetries"`
	RetryIntervalSec int  `json:"retryIntervalSec"`
	OfflineMode      bool `json:"offlineMode"`
	WifiOnly         bool `json:"wifiOnly"`

	// Delivery template.
	Endpoint     string            `json:"endpoint"`
	Method       string            `json:"method"`
	FieldMap     map[string]string `json:"fieldMap"`
	CustomFields map[string]string `json:"customFields"`
	ArrayPayload bool              `json:"arrayPayload"`
	AuthRef      string            `json:"authRef"`
}

// Default returns the out-of-the-box configuration.
func Default() Settings {
	return Settings{
		CaptureIntervalMs: 30_000,
		DistanceMeters:    0,
		AccuracyFilter:    false,
		AccuracyMeters:    50,
		SyncIntervalSec:   0,
		MaxRetries:        0,
		RetryIntervalSec:  600,
		Method:            http.MethodPost,
		FieldMap:          DefaultFieldMap(),
	}
}

// DefaultFieldMap maps every wire field to its own name.
func DefaultFieldMap() map[string]string {
	return map[string]string{
		FieldLat:     FieldLat,
		FieldLon:     FieldLon,
		FieldAcc:     FieldAcc,
		FieldAlt:     FieldAlt,
		FieldVel:     FieldVel,
		FieldBatt:    FieldBatt,
		FieldBattSt:  FieldBattSt,
		FieldTime:    FieldTime,
		FieldBearing: FieldBearing,
	}
}

// CaptureInterval returns the capture interval as a duration.
func (s Settings) CaptureInterval() time.Duration {
	return time.Duration(s.CaptureIntervalMs) * time.Millisecond
}

// SyncInterval returns the batch sync interval as a duration.
func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalSec) * time.Second
}

// RetryInterval returns the backoff ceiling as a duration.
func (s Settings) RetryInterval() time.Duration {
	return time.Duration(s.RetryIntervalSec) * time.Second
}

// InstantSync reports whether records should be drained as soon as they
// are enqueued rather than on a timer.
func (s Settings) InstantSync() bool {
	return s.SyncIntervalSec == 0
}

// Validate checks that the settings form a coherent snapshot.
func (s Settings) Validate() error {
	// The capture poller tickers on this interval; zero is not "as fast
	// as possible", it is a rejected configuration.
	if s.CaptureIntervalMs <= 0 {
		return fmt.Errorf("%w: capture interval must be positive", ErrInvalidInterval)
	}
	if s.SyncIntervalSec < 0 || s.RetryIntervalSec < 0 {
		return ErrInvalidInterval
	}
	if s.DistanceMeters < 0 {
		return fmt.Errorf("%w: distance", ErrInvalidInterval)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative")
	}

	switch s.Method {
	case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidMethod, s.Method)
	}

	if s.Endpoint != "" {
		if err := validateEndpoint(s.Endpoint); err != nil {
			return err
		}
	}
	return nil
}

// validateEndpoint enforces the transport security policy: HTTPS is
// required except for RFC1918 private addresses and loopback.
func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isPrivateHost(u.Hostname()) {
			return nil
		}
		return ErrInsecureEndpoint
	default:
		return fmt.Errorf("%w: scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
}

// isPrivateHost reports whether host is loopback or an RFC1918 address.
// Hostnames other than localhost are not resolved; they must use HTTPS.
func isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// Patch is a partial settings object, as produced by configuration import.
// Nil fields are left unchanged by Merge.
type Patch struct {
	CaptureIntervalMs *int64   `json:"captureIntervalMs,omitempty"`
	DistanceMeters    *float64 `json:"distanceMeters,omitempty"`
	AccuracyFilter    *bool    `json:"accuracyFilter,omitempty"`
	AccuracyMeters    *float64 `json:"accuracyMeters,omitempty"`

	SyncIntervalSec  *int  `json:"syncIntervalSec,omitempty"`
	MaxRetries       *int  `json:"maxRetries,omitempty"`
	RetryIntervalSec *int  `json:"retryIntervalSec,omitempty"`
	OfflineMode      *bool `json:"offlineMode,omitempty"`
	WifiOnly         *bool `json:"wifiOnly,omitempty"`

	Endpoint     *string           `json:"endpoint,omitempty"`
	Method       *string           `json:"method,omitempty"`
	FieldMap     map[string]string `json:"fieldMap,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	ArrayPayload *bool             `json:"arrayPayload,omitempty"`
	AuthRef      *string           `json:"authRef,omitempty"`
}

// Merge applies the patch over base and returns the result. Base is not
// modified.
func (p Patch) Merge(base Settings) Settings {
	merged := base

	if p.CaptureIntervalMs != nil {
		merged.CaptureIntervalMs = *p.CaptureIntervalMs
	}
	if p.DistanceMeters != nil {
		merged.DistanceMeters = *p.DistanceMeters
	}
	if p.AccuracyFilter != nil {
		merged.AccuracyFilter = *p.AccuracyFilter
	}
	if p.AccuracyMeters != nil {
		merged.AccuracyMeters = *p.AccuracyMeters
	}
	if p.SyncIntervalSec != nil {
		merged.SyncIntervalSec = *p.SyncIntervalSec
	}
	if p.MaxRetries != nil {
		merged.MaxRetries = *p.MaxRetries
	}
	if p.RetryIntervalSec != nil {
		merged.RetryIntervalSec = *p.RetryIntervalSec
	}
	if p.OfflineMode != nil {
		merged.OfflineMode = *p.OfflineMode
	}
	if p.WifiOnly != nil {
		merged.WifiOnly = *p.WifiOnly
	}
	if p.Endpoint != nil {
		merged.Endpoint = *p.Endpoint
	}
	if p.Method != nil {
		merged.Method = *p.Method
	}
	if p.FieldMap != nil {
		merged.FieldMap = p.FieldMap
	}
	if p.CustomFields != nil {
		merged.CustomFields = p.CustomFields
	}
	if p.ArrayPayload != nil {
		merged.ArrayPayload = *p.ArrayPayload
	}
	if p.AuthRef != nil {
		merged.AuthRef = *p.AuthRef
	}

	return merged
}

// Override is the parameter set a tracking profile layers on top of the
// base settings while the profile is active. Nil fields fall through to
// the base value.
type Override struct {
	CaptureIntervalMs *int64   `json:"captureIntervalMs,omitempty"`
	DistanceMeters    *float64 `json:"distanceMeters,omitempty"`
	SyncIntervalSec   *int     `json:"syncIntervalSec,omitempty"`
}

// Apply layers the override over base and returns the result.
func (o Override) Apply(base Settings) Settings {
	out := base
	if o.CaptureIntervalMs != nil {
		out.CaptureIntervalMs = *o.CaptureIntervalMs
	}
	if o.DistanceMeters != nil {
		out.DistanceMeters = *o.DistanceMeters
	}
	if o.SyncIntervalSec != nil {
		out.SyncIntervalSec = *o.SyncIntervalSec
	}
	return out
}
