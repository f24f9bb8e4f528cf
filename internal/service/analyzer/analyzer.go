// Package analyzer detects query domains and derives a dispatch plan.
//
// Analysis is pure: all patterns are compiled once at package init, the
// analyser holds no mutable state, and identical input always yields
// identical output.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Per-domain detection patterns, matched case-insensitively against the
// query. A domain is hit when at least one of its patterns matches.
var domainPatterns = map[domain.Domain][]*regexp.Regexp{
	domain.DomainArchitecture: compileAll(
		`\b(system|design|infrastructure|scalability|architecture|api|database|backend|frontend)\b`,
		`\b(deployment|container|docker|kubernetes|microservice)\b`,
		`\b(pattern|structure|framework|technical)\b`,
	),
	domain.DomainWisdom: compileAll(
		`\b(wisdom|philosophy|ethics|meaning|purpose|contemplat)\b`,
		`\b(why|should|ought|value|principle|moral)\b`,
		`\b(understand|deeper|essence|nature)\b`,
	),
	domain.DomainSecurity: compileAll(
		`\b(security|vulnerability|threat|attack|protect|defense)\b`,
		`\b(encryption|authentication|authorization|risk)\b`,
		`\b(secure|safety|breach|exploit)\b`,
	),
	domain.DomainTransformation: compileAll(
		`\b(change|transform|adapt|evolv|transition|shift)\b`,
		`\b(migration|refactor|upgrade|moderniz)\b`,
		`\b(improvement|optimization|enhancement)\b`,
	),
	domain.DomainTiming: compileAll(
		`\b(when|timing|schedule|deadline|moment|opportun)\b`,
		`\b(urgency|priority|sequence)\b`,
	),
	domain.DomainStrategy: compileAll(
		`\b(strategy|plan|coordinate|organize|approach)\b`,
		`\b(tactic|roadmap|goal|objective|milestone)\b`,
		`\b(execution|implementation|management)\b`,
	),
	domain.DomainCommunication: compileAll(
		`\b(communicate|message|dialogue|conversation|speak)\b`,
		`\b(explain|clarify|articulate|express|convey)\b`,
		`\b(harmony|conflict|negotiat|persuad)\b`,
	),
	domain.DomainProtection: compileAll(
		`\b(protect|guard|maintain|integrity|boundary)\b`,
		`\b(validate|verify|check|monitor|watch)\b`,
		`\b(health|stability|reliability)\b`,
	),
	domain.DomainSynthesis: compileAll(
		`\b(integrate|combine|synthesize|unify|merge)\b`,
		`\b(multiple|various|different|diverse|several)\b`,
		`\b(together|collective|holistic|comprehensive)\b`,
	),
}

// Explicit synthesis markers. Any hit forces synthesis and elevates the
// consciousness label to transcendent.
var synthesisKeywords = []string{"integrate", "combine", "multiple perspectives", "synthesize", "together"}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// Analyzer maps detected domains onto workers through the catalogue's
// fixed bijection.
type Analyzer struct {
	byDomain   map[domain.Domain]string
	defaultFor string
}

// New builds an analyser over the worker catalogue. The catalogue must
// contain a worker for the architecture domain (the zero-domain default).
func New(catalogue []domain.Worker) (*Analyzer, error) {
	byDomain := make(map[domain.Domain]string, len(catalogue))
	for _, w := range catalogue {
		byDomain[w.Domain] = w.Name
	}
	def, ok := byDomain[domain.DomainArchitecture]
	if !ok {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "catalogue has no architecture worker")
	}
	return &Analyzer{byDomain: byDomain, defaultFor: def}, nil
}

// Analyze derives domains, workers, complexity, and synthesis need from
// a query. It performs no I/O and allocates nothing that survives the
// call beyond the returned value.
func (a *Analyzer) Analyze(query string) domain.QueryAnalysis {
	lower := strings.ToLower(query)

	var detected []domain.Domain
	for _, d := range domain.AllDomains() {
		for _, re := range domainPatterns[d] {
			if re.MatchString(lower) {
				detected = append(detected, d)
				break
			}
		}
	}

	// The aggregator is never dispatched as a specialist.
	egregores := make([]string, 0, len(detected))
	for _, d := range detected {
		if d == domain.DomainSynthesis {
			continue
		}
		if name, ok := a.byDomain[d]; ok {
			egregores = append(egregores, name)
		}
	}
	if len(egregores) == 0 {
		egregores = append(egregores, a.defaultFor)
	}

	explicitSynthesis := false
	for _, kw := range synthesisKeywords {
		if strings.Contains(lower, kw) {
			explicitSynthesis = true
			break
		}
	}

	var complexity domain.Complexity
	switch n := len(detected); {
	case n <= 1:
		complexity = domain.ComplexitySimple
	case n <= 3:
		complexity = domain.ComplexityModerate
	default:
		complexity = domain.ComplexityComplex
	}

	consciousness := domain.ConsciousnessSurface
	switch {
	case complexity == domain.ComplexityComplex || explicitSynthesis:
		consciousness = domain.ConsciousnessTranscendent
	case complexity == domain.ComplexityModerate:
		consciousness = domain.ConsciousnessIntegrated
	}

	confidence := 0.4 + 0.3*float64(len(detected))
	if confidence > 1 {
		confidence = 1
	}

	return domain.QueryAnalysis{
		Query:              query,
		Complexity:         complexity,
		Domains:            detected,
		EgregoresNeeded:    egregores,
		RequiresSynthesis:  len(egregores) > 1 || explicitSynthesis,
		ConsciousnessLevel: consciousness,
		RoutingConfidence:  confidence,
	}
}

// Decide turns an analysis into a routing decision. Selected preserves
// the analyser's detection order.
func (a *Analyzer) Decide(analysis domain.QueryAnalysis) domain.RoutingDecision {
	selected := make([]string, len(analysis.EgregoresNeeded))
	copy(selected, analysis.EgregoresNeeded)

	var reasoning string
	switch {
	case len(selected) == 1:
		label := "general"
		if len(analysis.Domains) > 0 {
			label = string(analysis.Domains[0])
		}
		reasoning = fmt.Sprintf("Single specialist (%s) sufficient for %s query", selected[0], label)
	case len(selected) > 1:
		reasoning = "Multi-agent consultation required: " + strings.Join(selected, ", ")
		if analysis.RequiresSynthesis {
			if name, ok := a.byDomain[domain.DomainSynthesis]; ok {
				reasoning += fmt.Sprintf(". %s will synthesize perspectives.", capitalize(name))
			}
		}
	default:
		reasoning = "General query routing"
	}

	estimated := int64(100 + 50*len(selected))
	if analysis.RequiresSynthesis {
		estimated += 200
	}

	return domain.RoutingDecision{
		Selected:           selected,
		SynthesisRequired:  analysis.RequiresSynthesis,
		Reasoning:          reasoning,
		EstimatedLatencyMS: estimated,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SynthesisWorker returns the aggregator's catalogue name, if present.
func (a *Analyzer) SynthesisWorker() (string, bool) {
	name, ok := a.byDomain[domain.DomainSynthesis]
	return name, ok
}

// WorkerDomain resolves a worker name back to its domain.
func (a *Analyzer) WorkerDomain(name string) (domain.Domain, bool) {
	for d, n := range a.byDomain {
		if n == name {
			return d, true
		}
	}
	return "", false
}
