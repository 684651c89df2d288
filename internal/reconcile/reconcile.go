// Package reconcile files a freshly computed distribution into tables without
// creating structural duplicates.
package reconcile

import (
	"errors"
	"strings"

	"polarlab/api/internal/store"
	"polarlab/api/internal/util"
)

// UntitledName replaces an empty distribution name.
const UntitledName = "Untitled"

// ErrNothingToSave is returned when a request names neither a target table nor
// a new table.
var ErrNothingToSave = errors.New("reconcile: no target tables")

// Request describes one save: the candidate distribution, the existing
// tables to file it into and an optional table to create for it.
type Request struct {
	Distribution store.Distribution
	TableIDs     []string
	NewTableName string
}

// Outcome reports what a save did.
type Outcome struct {
	// Created is set when the candidate itself was stored.
	Created        bool              `json:"created"`
	DistributionID string            `json:"distributionId"`
	Merged         map[string]string `json:"merged"`
	Added          []string          `json:"added"`
	NewTableID     string            `json:"newTableId,omitempty"`
	Skipped        []string          `json:"skipped"`
}

// Save applies req to s as a single atomic update.
//
// For each target table, a member with the same shape as the candidate
// absorbs the candidate's measures it lacks (existing results are never
// overwritten) and the table gains those column names. Otherwise the
// candidate is stored once and added to the table. A non-blank NewTableName
// creates a table that always receives the candidate itself.
func Save(s *store.Store, req Request) (Outcome, error) {
	newTable := strings.TrimSpace(req.NewTableName)
	if len(req.TableIDs) == 0 && newTable == "" {
		return Outcome{}, ErrNothingToSave
	}

	candidate := req.Distribution.Clone()
	candidate.Name = strings.TrimSpace(candidate.Name)
	if candidate.Name == "" {
		candidate.Name = UntitledName
	}
	if candidate.ID == "" {
		candidate.ID = util.NewUUID()
	}

	var out Outcome
	err := s.Update(func(st store.State) (store.State, error) {
		orig := st
		out = Outcome{DistributionID: candidate.ID, Merged: map[string]string{}, Added: []string{}, Skipped: []string{}}

		saveCandidate := func() {
			if !out.Created {
				st = st.SaveDistribution(candidate)
				out.Created = true
			}
		}

		seen := make(map[string]bool, len(req.TableIDs))
		for _, tableID := range req.TableIDs {
			if seen[tableID] {
				continue
			}
			seen[tableID] = true

			table, ok := st.Table(tableID)
			if !ok || tableID == store.DefaultTableID {
				out.Skipped = append(out.Skipped, tableID)
				continue
			}

			if match, ok := matchingMember(st, table, candidate); ok {
				merged, added := match.WithMissingMeasures(candidate.Measures)
				if len(added) > 0 {
					st = st.SaveDistribution(merged)
				}
				// The same member may sit in several targets; columns follow
				// what it lacked before this save.
				if before, ok := orig.Distribution(match.ID); ok {
					_, added = before.WithMissingMeasures(candidate.Measures)
				}
				if len(added) > 0 {
					next, err := st.AddMeasureNames(tableID, added)
					if err != nil {
						return st, err
					}
					st = next
				}
				out.Merged[tableID] = match.ID
				continue
			}

			saveCandidate()
			next, ok := st.AddToTable(tableID, candidate.ID)
			if !ok {
				out.Skipped = append(out.Skipped, tableID)
				continue
			}
			st = next
			out.Added = append(out.Added, tableID)
		}

		if newTable != "" {
			saveCandidate()
			t := store.Table{ID: util.NewUUID(), Name: newTable, DistributionIDs: []string{}, MeasureOrder: []string{}}
			st = st.AddTable(t)
			next, _ := st.AddToTable(t.ID, candidate.ID)
			st = next
			out.NewTableID = t.ID
		}
		return st, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// matchingMember finds the first member of table with the candidate's shape.
func matchingMember(st store.State, table store.Table, candidate store.Distribution) (store.Distribution, bool) {
	for _, id := range table.DistributionIDs {
		d, ok := st.Distribution(id)
		if !ok {
			continue
		}
		if d.SameShape(candidate) {
			return d, true
		}
	}
	return store.Distribution{}, false
}
