package domain

// Stage is one of the eleven pipeline stage keys. Keys are case-sensitive
// and part of the wire contract.
type Stage string

const (
	StageNewLead          Stage = "New Lead"
	StageWorking          Stage = "Working"
	StageConnected        Stage = "Connected"
	StageQualified        Stage = "Qualified"
	StageMeetingBooked    Stage = "Meeting Booked"
	StageMeetingCompleted Stage = "Meeting Completed"
	StageProposalSent     Stage = "Proposal Sent"
	StageNegotiation      Stage = "Negotiation"
	StageClosedWon        Stage = "Closed Won"
	StageClosedLost       Stage = "Closed Lost"
	StageNurture          Stage = "Nurture"
)

// Stages lists every stage in pipeline order. Order is presentational only:
// any stage may move to any other stage.
var Stages = []Stage{
	StageNewLead,
	StageWorking,
	StageConnected,
	StageQualified,
	StageMeetingBooked,
	StageMeetingCompleted,
	StageProposalSent,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
	StageNurture,
}

// ParseStage converts a caller-supplied key into a Stage. Unknown keys are
// rejected; use NormalizeStage for values read back from storage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", &ErrValidation{Field: "stage", Message: "unknown stage '" + s + "'"}
	}
	return st, nil
}

// NormalizeStage reads a stored stage value. An unrecognized value fails
// closed to New Lead and is flagged untrusted.
func NormalizeStage(s string) Checked[Stage] {
	st, err := ParseStage(s)
	if err != nil {
		return Fallback(StageNewLead, err)
	}
	return Trusted(st)
}

func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether follow-up and cadence due-tracking are
// suppressed for the stage.
func (s Stage) IsTerminal() bool {
	return s == StageClosedWon || s == StageClosedLost || s == StageNurture
}

// IsClosed reports whether the stage closes the deal (won or lost). Only
// closed stages populate ClosedBy/ClosedAt/ClosedReason.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// IsRecording marks stages where calls are expected to be recorded. It is a
// policy marker for the UI and the audit log, nothing more.
func (s Stage) IsRecording() bool {
	return s == StageMeetingCompleted || s == StageNegotiation || s == StageClosedWon
}

func (s Stage) String() string {
	return string(s)
}
