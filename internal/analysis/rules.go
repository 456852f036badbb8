package analysis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/finaudit/audit-engine/internal/extract"
	"github.com/finaudit/audit-engine/internal/models"
)

// Config holds tunable rule parameters
type Config struct {
	HighValueThreshold float64
}

// Rule represents one anomaly detection rule. Evaluate returns the anomaly
// description and whether the rule triggered for the given transaction.
type Rule struct {
	ID       string
	Name     string
	Severity string
	Evaluate func(txn extract.Transaction) (string, bool)
}

// newRules builds the rule set for a single analysis pass. The duplicate
// rule carries per-pass state (the set of IDs seen so far), so rules must
// not be shared across passes.
func newRules(cfg Config) []Rule {
	seenIDs := make(map[string]bool)

	return []Rule{
		{
			ID:       "RULE_HIGH_VALUE",
			Name:     "High-Value Transaction",
			Severity: models.SeverityMedium,
			Evaluate: func(txn extract.Transaction) (string, bool) {
				if txn.Amount.Kind != extract.CellNumber {
					return "", false
				}
				if txn.Amount.Number <= cfg.HighValueThreshold {
					return "", false
				}
				return fmt.Sprintf("Transaction amount of $%.2f exceeds the threshold of $%s.",
					txn.Amount.Number, strconv.FormatFloat(cfg.HighValueThreshold, 'f', -1, 64)), true
			},
		},
		{
			ID:       "RULE_DUPLICATE_ID",
			Name:     "Duplicate Transaction",
			Severity: models.SeverityHigh,
			Evaluate: func(txn extract.Transaction) (string, bool) {
				if txn.ID.IsMissing() {
					return "", false
				}
				id := txn.ID.String()
				if seenIDs[id] {
					return fmt.Sprintf("Duplicate Transaction ID #%s found.", id), true
				}
				seenIDs[id] = true
				return "", false
			},
		},
		{
			ID:       "RULE_WEEKEND_ACTIVITY",
			Name:     "Weekend Activity",
			Severity: models.SeverityLow,
			Evaluate: func(txn extract.Transaction) (string, bool) {
				if txn.Date.Kind != extract.CellDate {
					return "", false
				}
				day := txn.Date.Date.Weekday()
				if day != time.Saturday && day != time.Sunday {
					return "", false
				}
				return fmt.Sprintf("Transaction occurred on a weekend (%s).", txn.Date.String()), true
			},
		},
	}
}

// RunRules executes each rule over the full transaction sequence in turn
// and aggregates the findings. Anomalies are therefore grouped by rule in
// the stored result, not interleaved by row; one row may still produce
// several anomalies.
func RunRules(table *extract.Table, cfg Config) *models.AnalysisResult {
	rules := newRules(cfg)

	anomalies := []models.Anomaly{}
	for _, rule := range rules {
		for _, txn := range table.Transactions {
			description, triggered := rule.Evaluate(txn)
			if !triggered {
				continue
			}
			anomalies = append(anomalies, models.Anomaly{
				Type:            rule.Name,
				Description:     description,
				Severity:        rule.Severity,
				RecordReference: txn.Ref,
				Status:          models.FlagStatusOpen,
			})
		}
	}

	return &models.AnalysisResult{
		Summary:          fmt.Sprintf("Rule-based analysis complete. Found %d potential anomalies.", len(anomalies)),
		Anomalies:        anomalies,
		ComplianceIssues: []models.ComplianceIssue{},
		OverallRiskLevel: overallRiskLevel(anomalies),
	}
}

// overallRiskLevel is the highest severity among the anomalies, Low when
// there are none.
func overallRiskLevel(anomalies []models.Anomaly) string {
	level := models.SeverityLow
	for _, a := range anomalies {
		switch a.Severity {
		case models.SeverityHigh:
			return models.SeverityHigh
		case models.SeverityMedium:
			level = models.SeverityMedium
		}
	}
	return level
}
