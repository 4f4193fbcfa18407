package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"contentfeed/models"
)

// Tidy removes draft content created before cutoff. Each removal goes through
// Collection.Delete so listeners see the deletes.
func (db *DB) Tidy(ctx context.Context, cutoff time.Time) (int, error) {
	sel := sb.NewSelectBuilder()
	sel.Select("id").
		From("documents").
		Where(
			sel.Equal("collection", models.ContentsCollection),
			fieldExpr("draft")+" = 1",
			sel.LessThan("created_seconds", float64(cutoff.Unix())),
		)
	sql, args := sel.BuildWithFlavor(sb.SQLite)

	log.WithFields(log.Fields{
		"sql":    sql,
		"args":   args,
		"cutoff": cutoff,
	}).Info("Tidying database")

	rows, err := db.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("tidy query error: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("tidy scan error: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	contents := db.Collection(models.ContentsCollection)
	for _, id := range ids {
		if err := contents.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
