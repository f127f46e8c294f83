// Package bundle implements the deterministic replay-pack bundle: layout,
// manifest, the ordered execution-event log, the sha256 hash manifest, the
// builder, and the validator.
//
// A bundle is immutable once built. The only exception is the meta/
// directory, which holds derived reports (resolution, compare) written by
// later operations; meta/ is therefore outside hash coverage.
package bundle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/canonical"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// SchemaTag is the persisted event-schema identifier.
const SchemaTag = "BETA_EXEC_V1"

// LayoutVersion is the bundle directory layout version.
const LayoutVersion = 1

// Fixed relative paths inside a bundle.
const (
	ManifestFile         = "manifest.json"
	EventsFile           = "events/execution_events.jsonl"
	HashFile             = "hashes/sha256sums.txt"
	MetaDir              = "meta"
	FillsSnapshot        = "outputs/fills.json"
	PositionsSnapshot    = "outputs/positions.json"
	ResolutionReportFile = "meta/resolution_report.json"
	CompareReportFile    = "meta/compare_report.json"
)

// Source-run file names consumed by Build.
const (
	SourceEventsFile   = "events.jsonl"
	SourceDataRefsFile = "datarefs.json"
)

// Event types of the BETA_EXEC_V1 schema.
const (
	EventOrderAccepted = "order_accepted"
	EventOrderFill     = "order_fill"
	EventOrderCanceled = "order_canceled"
)

// DataRef declares externally cached data a replay may depend on.
type DataRef struct {
	RefID      string
	Required   bool
	SHA256Hint string // empty when the ref is not pinned
}

// Manifest describes a bundle. It contains no timestamps so its canonical
// bytes depend only on the source content.
type Manifest struct {
	RunID           string
	EventCount      int64
	IncludesOutputs bool
	DataRefs        []DataRef // sorted by RefID
}

// Event is one execution event. The stream is strictly ordered by
// (EventTimeUTC, Seq); Seq starts at 0 and is contiguous.
type Event struct {
	EventTimeUTC string
	Seq          int64
	EventType    string
	Payload      map[string]any

	// ts is EventTimeUTC parsed, so ordering compares instants rather than
	// strings; mixed sub-second precision would break a lexicographic
	// comparison.
	ts time.Time
}

// Less orders events by (EventTimeUTC, Seq).
func (e Event) Less(other Event) bool {
	if !e.ts.Equal(other.ts) {
		return e.ts.Before(other.ts)
	}
	return e.Seq < other.Seq
}

func (m *Manifest) toValue() any {
	refs := make([]any, 0, len(m.DataRefs))
	for _, r := range m.DataRefs {
		rv := map[string]any{
			"ref_id":   r.RefID,
			"required": r.Required,
		}
		if r.SHA256Hint != "" {
			rv["sha256_hint"] = r.SHA256Hint
		}
		refs = append(refs, rv)
	}
	return map[string]any{
		"schema":           SchemaTag,
		"layout_version":   int64(LayoutVersion),
		"run_id":           m.RunID,
		"event_count":      m.EventCount,
		"includes_outputs": m.IncludesOutputs,
		"data_refs":        refs,
	}
}

// EncodeManifest renders the manifest as canonical bytes.
func EncodeManifest(m *Manifest) ([]byte, error) {
	return canonical.Encode(m.toValue())
}

func manifestFromValue(v any) (*Manifest, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest is not an object")
	}
	schema, err := getString(obj, "schema")
	if err != nil {
		return nil, err
	}
	if schema != SchemaTag {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest schema %q, want %q", schema, SchemaTag)
	}
	layout, err := getInt(obj, "layout_version")
	if err != nil {
		return nil, err
	}
	if layout != LayoutVersion {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest layout_version %d, want %d", layout, LayoutVersion)
	}
	m := &Manifest{}
	if m.RunID, err = getString(obj, "run_id"); err != nil {
		return nil, err
	}
	if m.EventCount, err = getInt(obj, "event_count"); err != nil {
		return nil, err
	}
	inc, ok := obj["includes_outputs"].(bool)
	if !ok {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest includes_outputs missing or not a bool")
	}
	m.IncludesOutputs = inc
	rawRefs, ok := obj["data_refs"].([]any)
	if !ok {
		return nil, exitcode.Errorf(exitcode.ContractViolation, "manifest data_refs missing or not a list")
	}
	for i, rr := range rawRefs {
		ref, err := dataRefFromValue(rr)
		if err != nil {
			return nil, exitcode.Wrap(exitcode.ContractViolation, fmt.Errorf("data_refs[%d]: %w", i, err))
		}
		if i > 0 && m.DataRefs[i-1].RefID >= ref.RefID {
			return nil, exitcode.Errorf(exitcode.ContractViolation, "data_refs not sorted by ref_id at %q", ref.RefID)
		}
		m.DataRefs = append(m.DataRefs, ref)
	}
	return m, nil
}

func dataRefFromValue(v any) (DataRef, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return DataRef{}, fmt.Errorf("dataref is not an object")
	}
	var ref DataRef
	var err error
	if ref.RefID, err = getString(obj, "ref_id"); err != nil {
		return DataRef{}, err
	}
	if err := CheckRefID(ref.RefID); err != nil {
		return DataRef{}, err
	}
	req, ok := obj["required"].(bool)
	if !ok {
		return DataRef{}, fmt.Errorf("dataref %q: required missing or not a bool", ref.RefID)
	}
	ref.Required = req
	if hint, ok := obj["sha256_hint"]; ok {
		s, ok := hint.(string)
		if !ok || !isSHA256Hex(s) {
			return DataRef{}, fmt.Errorf("dataref %q: sha256_hint must be sha256 hex", ref.RefID)
		}
		ref.SHA256Hint = s
	}
	return ref, nil
}

// CheckRefID rejects ref ids that could escape the cache root when joined
// to it.
func CheckRefID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ref_id")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("ref_id %q must be a plain file name", id)
	}
	return nil
}

func (e *Event) toValue() any {
	return map[string]any{
		"event_time_utc": e.EventTimeUTC,
		"seq":            e.Seq,
		"event_type":     e.EventType,
		"payload":        e.Payload,
	}
}

// EncodeEvent renders one event as a canonical JSONL line (including the
// trailing LF).
func EncodeEvent(e *Event) ([]byte, error) {
	return canonical.Encode(e.toValue())
}

func eventFromValue(v any) (Event, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Event{}, exitcode.Errorf(exitcode.ContractViolation, "event is not an object")
	}
	if len(obj) != 4 {
		return Event{}, exitcode.Errorf(exitcode.ContractViolation, "event must have exactly event_time_utc, seq, event_type, payload")
	}
	var e Event
	var err error
	if e.EventTimeUTC, err = getString(obj, "event_time_utc"); err != nil {
		return Event{}, err
	}
	if e.ts, err = parseUTCTimestamp(e.EventTimeUTC); err != nil {
		return Event{}, err
	}
	if e.Seq, err = getInt(obj, "seq"); err != nil {
		return Event{}, err
	}
	if e.Seq < 0 {
		return Event{}, exitcode.Errorf(exitcode.ContractViolation, "negative seq %d", e.Seq)
	}
	if e.EventType, err = getString(obj, "event_type"); err != nil {
		return Event{}, err
	}
	switch e.EventType {
	case EventOrderAccepted, EventOrderFill, EventOrderCanceled:
	default:
		return Event{}, exitcode.Errorf(exitcode.ContractViolation, "unknown event_type %q", e.EventType)
	}
	payload, ok := obj["payload"].(map[string]any)
	if !ok {
		return Event{}, exitcode.Errorf(exitcode.ContractViolation, "event payload missing or not an object")
	}
	e.Payload = payload
	return e, nil
}

func parseUTCTimestamp(s string) (time.Time, error) {
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, exitcode.Errorf(exitcode.ContractViolation, "event_time_utc %q must be UTC (Z suffix)", s)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, exitcode.Errorf(exitcode.ContractViolation, "event_time_utc %q: %v", s, err)
	}
	return ts, nil
}

// PayloadString extracts a required string field from an event payload.
func (e *Event) PayloadString(key string) (string, error) {
	s, err := getString(e.Payload, key)
	if err != nil {
		return "", exitcode.Wrap(exitcode.ContractViolation,
			fmt.Errorf("seq %d (%s): %w", e.Seq, e.EventType, err))
	}
	return s, nil
}

func getString(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", exitcode.Errorf(exitcode.ContractViolation, "missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", exitcode.Errorf(exitcode.ContractViolation, "field %q is not a string", key)
	}
	return s, nil
}

func getInt(obj map[string]any, key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, exitcode.Errorf(exitcode.ContractViolation, "missing field %q", key)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, exitcode.Errorf(exitcode.ContractViolation, "field %q is not a number", key)
	}
	if !canonical.IsInteger(n) {
		return 0, exitcode.Errorf(exitcode.ContractViolation, "field %q is not an integer", key)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, exitcode.Errorf(exitcode.ContractViolation, "field %q: %v", key, err)
	}
	return i, nil
}
