// Package schema holds the lead tables shared by the SQL and PostgREST
// adapters: the DDL and the mapping from a LeadPatch to column values.
package schema

import (
	_ "embed"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// DDL creates every table idempotently.
//
//go:embed schema.sql
var DDL string

// Table names.
const (
	Leads             = "leads"
	StageHistory      = "lead_stage_history"
	Activities        = "lead_activities"
	Meetings          = "meetings"
	Agents            = "agents"
	NotificationReads = "notification_reads"
)

// PatchColumns maps a patch onto the columns it owns. Dates are returned
// as domain.Date; adapters convert them to their wire form. A nil value
// writes NULL.
func PatchColumns(p domain.LeadPatch) map[string]any {
	cols := make(map[string]any)
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.Closure != nil {
		cols["closed_by"] = p.Closure.ClosedBy
		cols["closed_reason"] = p.Closure.ClosedReason
		if p.Closure.ClosedAt != nil {
			cols["closed_at"] = *p.Closure.ClosedAt
		} else {
			cols["closed_at"] = nil
		}
	}
	if p.ClearFollowUp {
		cols["next_follow_up"] = nil
	} else if p.NextFollowUp != nil {
		cols["next_follow_up"] = *p.NextFollowUp
	}
	if p.LastActivity != nil {
		cols["last_activity"] = *p.LastActivity
	}
	if p.Qualification != nil {
		cols["qualification"] = *p.Qualification
	}
	if p.QualityGatePass != nil {
		cols["quality_gate_pass"] = *p.QualityGatePass
	}
	if p.Cadence != nil {
		cols["cadence"] = p.Cadence
	}
	if p.AssignedAgent != nil {
		cols["assigned_agent"] = *p.AssignedAgent
	}
	return cols
}
