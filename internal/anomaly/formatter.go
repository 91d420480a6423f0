// Package anomaly implements the audit-log anomaly pipeline: a text formatter
// that turns structured audit records into classifier-friendly log lines, a
// client for the remote anomaly detection service, an in-memory queue, and the
// background processor that drains it in batches.
package anomaly

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/db/models"
)

// fragmentSeparator joins the independently produced text fragments.
const fragmentSeparator = " | "

// metadata keys whose raw values are surfaced verbatim so the classifier sees
// injected payloads (SQL fragments, script tags, traversal sequences) exactly
// as the attacker sent them.
var suspiciousInputKeys = []string{"input", "query", "data"}

// FormatLogText deterministically maps an audit record to the natural-language
// line sent to the classifier. It is a pure function: same record in, same
// text out, no side effects.
//
// The classifier does pattern recognition over text, so the formatter's job is
// to surface attack-relevant substrings and behavioural context rather than
// passing a raw structured object: a privileged-actor marker, a per-action
// template, raw suspicious input fields, and the source IP. Missing optional
// fields are omitted — never rendered as "null" or "undefined".
func FormatLogText(rec models.AuditRecord) string {
	fragments := make([]string, 0, 4)

	if isPrivilegedActor(rec) {
		fragments = append(fragments, "admin user action")
	}

	fragments = append(fragments, actionText(rec))

	for _, key := range suspiciousInputKeys {
		if raw, ok := rec.Metadata[key]; ok {
			if s := stringifyMetadataValue(raw); s != "" {
				fragments = append(fragments, s)
			}
		}
	}

	if ip := sourceIP(rec.Metadata); ip != "" {
		fragments = append(fragments, "source ip: "+ip)
	}

	return strings.Join(fragments, fragmentSeparator)
}

// isPrivilegedActor reports whether the record describes an action by a
// privileged user, checked via role fields in metadata or an admin marker in
// the action/description text.
func isPrivilegedActor(rec models.AuditRecord) bool {
	for _, key := range []string{"role", "user_role", "actor_role"} {
		if v, ok := rec.Metadata[key].(string); ok {
			if strings.Contains(strings.ToLower(v), "admin") {
				return true
			}
		}
	}
	marker := strings.ToLower(rec.ActionType + " " + rec.Description)
	return strings.Contains(marker, "admin")
}

// actionText selects the per-action-type template. Unknown action types fall
// back to the description verbatim so nothing is ever lost.
func actionText(rec models.AuditRecord) string {
	switch audit.ActionType(rec.ActionType) {
	case audit.ActionLogin:
		if status, _ := rec.Metadata["status"].(string); strings.EqualFold(status, "failed") {
			return failedLoginText(rec)
		}
		return rec.Description
	default:
		return rec.Description
	}
}

// failedLoginText renders a failed login in the shape the classifier's
// authentication-failure patterns match on.
func failedLoginText(rec models.AuditRecord) string {
	username, _ := rec.Metadata["username"].(string)
	if username == "" {
		// The description already names the target user in the writer's
		// convention ("failed login attempt for username: bob").
		return rec.Description
	}
	if reason, _ := rec.Metadata["reason"].(string); reason != "" {
		return fmt.Sprintf("failed login attempt for user: %s (%s)", username, reason)
	}
	return fmt.Sprintf("failed login attempt for user: %s", username)
}

// sourceIP extracts the client IP from metadata, skipping the literal
// "unknown" placeholder some callers set when no address was available.
func sourceIP(metadata map[string]interface{}) string {
	for _, key := range []string{"ip", "ip_address", "source_ip"} {
		if v, ok := metadata[key].(string); ok {
			if v != "" && !strings.EqualFold(v, "unknown") {
				return v
			}
		}
	}
	return ""
}

// stringifyMetadataValue renders a metadata value verbatim when it is already
// text, and as compact JSON otherwise. Nils produce nothing rather than the
// text "null".
func stringifyMetadataValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
