package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"fintel/internal/core"
)

// Fingerprint hashes the narration-relevant slice of a report. Two
// reports with the same budget, spend, warnings, and top categories get
// the same narration, so re-requests within a period reuse the cached
// one until the numbers actually move.
func Fingerprint(ins *core.Insights) string {
	basis := struct {
		BudgetAmount  float64               `json:"budget_amount"`
		SpentTotal    float64               `json:"spent_total"`
		Warnings      []string              `json:"warnings"`
		TopCategories []core.CategoryAmount `json:"top_categories"`
	}{
		BudgetAmount:  ins.BudgetAmount,
		SpentTotal:    ins.SpentTotal,
		Warnings:      ins.Warnings,
		TopCategories: ins.TopCategories,
	}

	// Struct field order fixes the byte layout, so the hash is stable.
	raw, err := json.Marshal(basis)
	if err != nil {
		raw = []byte(ins.PeriodKey)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// NarrationKey builds the cache key a narration is stored under.
func NarrationKey(userID, period, periodKey, fingerprint string) string {
	return userID + "::" + period + "::" + periodKey + "::" + fingerprint
}
