package invalidation

import (
	"log/slog"
	"regexp"
	"sort"

	"github.com/onnwee/caseace-cache/internal/logger"
)

// Target is the cache the invalidator removes keys from.
type Target interface {
	InvalidatePattern(re *regexp.Regexp) int
}

// Graph maps a domain to the domains whose cached data goes stale when it
// changes. Edges are followed one hop only.
type Graph map[string][]string

// DefaultGraph is the dependency graph of the back-office domains.
func DefaultGraph() Graph {
	return Graph{
		"tasks":           {"calendar", "notifications"},
		"cases":           {"tasks", "documents", "time-entries", "calendar"},
		"clients":         {"cases", "invoices"},
		"invoices":        {"payments", "finance", "clients"},
		"payments":        {"invoices", "finance"},
		"expenses":        {"finance"},
		"journal-entries": {"general-ledger", "finance"},
		"finance":         {"invoices", "payments", "expenses", "journal-entries", "general-ledger"},
		"staff":           {"attendance", "payroll", "leaves"},
		"events":          {"calendar"},
		"reminders":       {"calendar"},
	}
}

// Invalidator removes cached keys by domain.
type Invalidator struct {
	target Target
	graph  Graph
	log    *slog.Logger
}

// NewInvalidator returns an Invalidator over target. A nil graph uses
// DefaultGraph.
func NewInvalidator(target Target, graph Graph) *Invalidator {
	if graph == nil {
		graph = DefaultGraph()
	}
	return &Invalidator{target: target, graph: graph, log: logger.WithComponent("invalidation")}
}

// Invalidate removes every key in domain.
func (i *Invalidator) Invalidate(domain string) int {
	if domain == "" {
		return 0
	}
	return i.target.InvalidatePattern(PrefixPattern(domain))
}

// InvalidateDetail removes one record and its sub-resources.
func (i *Invalidator) InvalidateDetail(domain, id string) int {
	if domain == "" || id == "" {
		return 0
	}
	return i.target.InvalidatePattern(PrefixPattern(DetailKey(domain, id)))
}

// InvalidateRelated removes domain and every domain it points to.
func (i *Invalidator) InvalidateRelated(domain string) int {
	total := 0
	for _, d := range i.Related(domain) {
		total += i.Invalidate(d)
	}
	i.log.Debug("Invalidated related domains", "domain", domain, "removed", total)
	return total
}

// Related returns domain followed by its direct dependents, without duplicates.
func (i *Invalidator) Related(domain string) []string {
	if domain == "" {
		return nil
	}
	out := []string{domain}
	seen := map[string]bool{domain: true}
	for _, d := range i.graph[domain] {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// Domains lists every domain that appears in the graph, sorted.
func (i *Invalidator) Domains() []string {
	seen := make(map[string]struct{})
	for d, deps := range i.graph {
		seen[d] = struct{}{}
		for _, dep := range deps {
			seen[dep] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
