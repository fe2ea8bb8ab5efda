package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"
)

// ============================================================
// Agents & notification read flags
// ============================================================

func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAgents")
	defer span.End()

	var agents []domain.Agent
	err := c.run(ctx, schema.Agents, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, schema.Agents+"?order=name.asc")
		if err != nil {
			return err
		}
		agents = []domain.Agent{}
		if body == nil {
			return nil
		}
		if err := json.Unmarshal(body, &agents); err != nil {
			return fmt.Errorf("decode agents: %w", err)
		}
		return nil
	})
	return agents, err
}

type readRow struct {
	Viewer         string    `json:"viewer"`
	NotificationID string    `json:"notification_id"`
	ReadAt         time.Time `json:"read_at"`
}

func (c *Client) ReadIDs(ctx context.Context, viewer string) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ReadIDs")
	defer span.End()

	read := make(map[string]bool)
	err := c.run(ctx, schema.NotificationReads, func() error {
		path := fmt.Sprintf("%s?viewer=%s&select=notification_id", schema.NotificationReads, eq(viewer))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil || body == nil {
			return err
		}
		var rows []readRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode notification reads: %w", err)
		}
		for _, r := range rows {
			read[r.NotificationID] = true
		}
		return nil
	})
	return read, err
}

// MarkRead upserts every id in one request.
func (c *Client) MarkRead(ctx context.Context, viewer string, ids []string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkRead")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]readRow, len(ids))
	for i, id := range ids {
		rows[i] = readRow{Viewer: viewer, NotificationID: id, ReadAt: now}
	}
	table := schema.NotificationReads + "?on_conflict=" + strings.Join([]string{"viewer", "notification_id"}, ",")
	return c.run(ctx, schema.NotificationReads, func() error {
		_, err := c.doPost(ctx, table, rows, "resolution=ignore-duplicates,return=minimal")
		return err
	})
}
