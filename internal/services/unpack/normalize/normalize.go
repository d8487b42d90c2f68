// Package normalize migrates legacy record shapes and validates records
// before routing. A record either comes out normalized or is discarded
// with a counted reason; discards never abort the surrounding file.
package normalize

import (
	"regexp"
	"time"

	"histshard/internal/platform/logger"
	"histshard/internal/services/unpack/domain"
)

// Discard reasons, reported in aggregate per run
const (
	ReasonMissingProject   = "missing_project_name"
	ReasonDeprecatedChoose = "deprecated_choose"
	ReasonBadTimestamp     = "invalid_timestamp"
	ReasonBadProjectName   = "invalid_project_name"
	ReasonBadModel         = "invalid_model"
	ReasonMissingHistoryID = "missing_history_id"
)

// nameRx is the shared charset rule for project and model names
var nameRx = regexp.MustCompile(`^[A-Za-z0-9_\- .]+$`)

// accepted timestamp layouts, tried in order
var tsLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer applies the legacy migration and validation rules in order
type Normalizer struct {
	legacyKeys map[string]string // deprecated api_key -> project name
	log        *logger.Logger
}

// New builds a normalizer with the legacy api-key mapping
func New(legacyKeys map[string]string) *Normalizer {
	return &Normalizer{
		legacyKeys: legacyKeys,
		log:        logger.Named("normalize"),
	}
}

// Normalize migrates and validates one raw record, mutating the map in
// place (raw records are single-use). ok=false carries the discard
// reason; every discard logs a distinguishable warning.
func (n *Normalizer) Normalize(raw domain.RawRecord, now time.Time) (domain.Record, bool, string) {
	// project resolves from project_name, falling back to the
	// deprecated api_key mapping
	project, _ := raw["project_name"].(string)
	if project == "" {
		if key, ok := raw["api_key"].(string); ok {
			project = n.legacyKeys[key]
		}
	}
	delete(raw, "api_key")
	if project == "" {
		return n.discard(raw, ReasonMissingProject)
	}

	// legacy record_type migration
	if rt, ok := raw["record_type"]; ok {
		delete(raw, "record_type")
		switch rt {
		case "choose":
			return n.discard(raw, ReasonDeprecatedChoose)
		case "using":
			raw["type"] = "decision"
			if props, ok := raw["properties"]; ok {
				raw["variant"] = props
				delete(raw, "properties")
			}
		case "rewards":
			raw["type"] = "rewards"
		}
	}

	// legacy user_id is the old name for history_id
	if uid, ok := raw["user_id"]; ok {
		if _, has := raw["history_id"]; !has {
			raw["history_id"] = uid
		}
		delete(raw, "user_id")
	}

	ts, _ := raw["timestamp"].(string)
	t, ok := parseTimestamp(ts)
	if !ok {
		return n.discard(raw, ReasonBadTimestamp)
	}
	if t.After(now) {
		// clock skew happens; keep the record
		n.log.Warn().
			Str("project", project).
			Time("timestamp", t).
			Msg("normalize: record timestamp is in the future, keeping")
	}
	raw["timestamp"] = t.UTC().Format(domain.TimestampLayout)

	// project name is routing metadata only, never persisted in the body
	delete(raw, "project_name")

	if !nameRx.MatchString(project) {
		return n.discard(raw, ReasonBadProjectName)
	}

	typ, _ := raw["type"].(string)
	if typ == string(domain.TypeVariants) {
		model, _ := raw["model"].(string)
		if model == "" || !nameRx.MatchString(model) {
			return n.discard(raw, ReasonBadModel)
		}
		return domain.Record{
			Project:   project,
			Type:      domain.TypeVariants,
			Model:     model,
			Timestamp: t.UTC(),
			Body:      raw,
		}, true, ""
	}

	historyID, _ := raw["history_id"].(string)
	if historyID == "" {
		return n.discard(raw, ReasonMissingHistoryID)
	}
	return domain.Record{
		Project:   project,
		Type:      domain.RecordType(typ),
		HistoryID: historyID,
		Timestamp: t.UTC(),
		Body:      raw,
	}, true, ""
}

func (n *Normalizer) discard(raw domain.RawRecord, reason string) (domain.Record, bool, string) {
	n.log.Warn().Str("reason", reason).Msg("normalize: record discarded")
	return domain.Record{}, false, reason
}

// parseTimestamp accepts the layouts seen in the wild, strictest first
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
