package service

import (
	"strings"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

type gateRule struct {
	field domain.QualityGateField
	ok    func(l *domain.Lead) bool
}

// gateRules are evaluated in QualityGateFields order.
var gateRules = []gateRule{
	{domain.GateCompanyName, func(l *domain.Lead) bool { return present(l.CompanyName) }},
	{domain.GateWebPresence, func(l *domain.Lead) bool {
		return anyPresent(l.Website, l.CompanyLinkedIn, l.PersonLinkedIn)
	}},
	{domain.GateState, func(l *domain.Lead) bool { return present(l.State) }},
	{domain.GateSegment, func(l *domain.Lead) bool { return present(l.Segment) }},
	// Title alone does not identify a decision maker.
	{domain.GateDecisionMaker, func(l *domain.Lead) bool { return present(l.DecisionMakerName) }},
	{domain.GateReachableChannel, func(l *domain.Lead) bool {
		return anyPresent(l.Email, l.PhoneWorkDirect, l.PhoneMobile, l.PhoneHome)
	}},
	{domain.GateSourceChannel, func(l *domain.Lead) bool { return present(l.SourceChannel) }},
}

// CheckQualityGate runs the seven completeness rules against a lead. The
// result is advisory and the lead is never modified.
func CheckQualityGate(l *domain.Lead) domain.QualityGateResult {
	res := domain.QualityGateResult{Missing: []string{}, Fields: []domain.QualityGateField{}}
	for _, r := range gateRules {
		if !r.ok(l) {
			res.Missing = append(res.Missing, r.field.Label())
			res.Fields = append(res.Fields, r.field)
		}
	}
	res.Pass = len(res.Missing) == 0
	return res
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

func anyPresent(vals ...string) bool {
	for _, v := range vals {
		if present(v) {
			return true
		}
	}
	return false
}
