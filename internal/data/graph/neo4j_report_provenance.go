package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/neo4jdb"
)

// reportProvenance is the node and edge payload for one completed report.
type reportProvenance struct {
	report   map[string]any
	sections []map[string]any
	docs     []map[string]any
	uses     []map[string]any
}

func buildReportProvenance(r *reports.Report, outline []reports.Section, results []reports.SectionResult, now string) reportProvenance {
	out := reportProvenance{
		report: map[string]any{
			"id":            r.ID.String(),
			"parent_id":     r.ParentID.String(),
			"collection_id": r.CollectionID,
			"name":          r.Name,
			"status":        strings.TrimSpace(r.Status),
			"version":       int64(r.Version),
			"completed_at":  timeOrEmpty(r.CompletedAt),
			"synced_at":     now,
		},
	}

	positions := make(map[string]int, len(outline))
	for i, s := range outline {
		positions[s.ID] = i
	}

	seenDocs := map[string]bool{}
	for i, res := range results {
		if strings.TrimSpace(res.SectionID) == "" {
			continue
		}
		pos, ok := positions[res.SectionID]
		if !ok {
			pos = i
		}
		out.sections = append(out.sections, map[string]any{
			"id":        res.SectionID,
			"report_id": r.ID.String(),
			"title":     res.SectionTitle,
			"position":  int64(pos),
			"failed":    res.Failed(),
			"synced_at": now,
		})
		for rank, d := range res.Documents {
			if strings.TrimSpace(d.ID) == "" {
				continue
			}
			if !seenDocs[d.ID] {
				seenDocs[d.ID] = true
				out.docs = append(out.docs, map[string]any{
					"id":            d.ID,
					"collection_id": r.CollectionID,
					"title":         truncateString(d.Title, 300),
					"synced_at":     now,
				})
			}
			out.uses = append(out.uses, map[string]any{
				"section_id": res.SectionID,
				"doc_id":     d.ID,
				"rank":       int64(rank),
				"score":      d.SimilarityScore,
				"synced_at":  now,
			})
		}
	}
	return out
}

// UpsertReportProvenance records which documents grounded which sections of a report as
// (:Report)-[:HAS_SECTION]->(:ReportSection)-[:USED_DOC]->(:Document).
func UpsertReportProvenance(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, r *reports.Report, outline []reports.Section, results []reports.SectionResult) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if r == nil || r.ID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p := buildReportProvenance(r, outline, results, time.Now().UTC().Format(time.RFC3339Nano))

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	for _, q := range []string{
		`CREATE CONSTRAINT report_id_unique IF NOT EXISTS FOR (r:Report) REQUIRE r.id IS UNIQUE`,
		`CREATE CONSTRAINT report_section_id_unique IF NOT EXISTS FOR (s:ReportSection) REQUIRE s.id IS UNIQUE`,
		`CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	} {
		if res, err := session.Run(ctx, q, nil); err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
MERGE (rep:Report {id: $report.id})
SET rep += $report
`, map[string]any{"report": p.report}); err != nil {
			return nil, err
		}

		// Sections from an earlier version that are no longer in the outline lose their edge.
		if err := run(ctx, tx, `
MATCH (rep:Report {id: $report_id})-[e:HAS_SECTION]->(s:ReportSection)
WHERE NOT s.id IN $section_ids
DELETE e
`, map[string]any{"report_id": r.ID.String(), "section_ids": sectionIDs(p.sections)}); err != nil {
			return nil, err
		}

		if len(p.sections) > 0 {
			if err := run(ctx, tx, `
UNWIND $sections AS s
MERGE (sec:ReportSection {id: s.id})
SET sec += s
WITH sec, s
MATCH (rep:Report {id: s.report_id})
MERGE (rep)-[e:HAS_SECTION]->(sec)
SET e.position = s.position, e.synced_at = s.synced_at
WITH sec
OPTIONAL MATCH (sec)-[old:USED_DOC]->(:Document)
DELETE old
`, map[string]any{"sections": p.sections}); err != nil {
				return nil, err
			}
		}

		if len(p.docs) > 0 {
			if err := run(ctx, tx, `
UNWIND $docs AS d
MERGE (doc:Document {id: d.id})
SET doc += d
`, map[string]any{"docs": p.docs}); err != nil {
				return nil, err
			}
		}

		if len(p.uses) > 0 {
			if err := run(ctx, tx, `
UNWIND $uses AS u
MATCH (sec:ReportSection {id: u.section_id})
MATCH (doc:Document {id: u.doc_id})
MERGE (sec)-[e:USED_DOC]->(doc)
SET e.rank = u.rank, e.score = u.score, e.synced_at = u.synced_at
`, map[string]any{"uses": p.uses}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func sectionIDs(sections []map[string]any) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if id, ok := s["id"].(string); ok {
			out = append(out, id)
		}
	}
	return out
}

func timeOrEmpty(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func truncateString(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
