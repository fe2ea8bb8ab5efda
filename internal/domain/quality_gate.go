package domain

// QualityGateField identifies one of the seven completeness rules. The
// declaration order is the evaluation order.
type QualityGateField string

const (
	GateCompanyName      QualityGateField = "company_name"
	GateWebPresence      QualityGateField = "web_presence"
	GateState            QualityGateField = "state"
	GateSegment          QualityGateField = "segment"
	GateDecisionMaker    QualityGateField = "decision_maker"
	GateReachableChannel QualityGateField = "reachable_channel"
	GateSourceChannel    QualityGateField = "source_channel"
)

// QualityGateFields lists the rules in evaluation order.
var QualityGateFields = []QualityGateField{
	GateCompanyName,
	GateWebPresence,
	GateState,
	GateSegment,
	GateDecisionMaker,
	GateReachableChannel,
	GateSourceChannel,
}

var gateLabels = map[QualityGateField]string{
	GateCompanyName:      "Company Name",
	GateWebPresence:      "Website or LinkedIn URL",
	GateState:            "State",
	GateSegment:          "Segment",
	GateDecisionMaker:    "Decision-maker Name or Title",
	GateReachableChannel: "Email or Phone",
	GateSourceChannel:    "Source Channel",
}

// Label is the human-readable name reported in QualityGateResult.Missing.
func (f QualityGateField) Label() string {
	return gateLabels[f]
}

// QualityGateResult is the advisory outcome of the gate.
type QualityGateResult struct {
	Pass    bool               `json:"pass"`
	Missing []string           `json:"missing"`
	Fields  []QualityGateField `json:"fields"`
}

// QualityGateStatus compares the live gate with the stored snapshot.
type QualityGateStatus struct {
	Live     QualityGateResult `json:"live"`
	Snapshot bool              `json:"snapshot"`
	Stale    bool              `json:"stale"`
}
