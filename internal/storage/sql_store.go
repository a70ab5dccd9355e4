package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"crawlerd/internal/models"
)

// pathChunk bounds the rows per multi-row path insert (5 params per row).
const pathChunk = 150

// SQLStore keeps raw events and daily rollups in postgres or sqlite.
type SQLStore struct {
	db  *DB
	now func() time.Time
}

func NewSQLStore(db *DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) InsertEvents(ctx context.Context, ownerID, workspaceID string, events []*models.CrawlerEvent) error {
	if len(events) == 0 {
		return nil
	}
	receivedAt := s.now().UTC()
	query := s.db.Rebind(`INSERT INTO crawler_events
		(id, owner_id, workspace_id, domain, path, crawler_name, crawler_company, crawler_category,
		 user_agent, status_code, response_time_ms, country, metadata, occurred_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, ev := range events {
			metadata, err := encodeMetadata(ev.Metadata)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx,
				ev.ID, ownerID, nullString(workspaceID), ev.Domain, ev.Path,
				ev.Crawler.Name, ev.Crawler.Company, string(ev.Crawler.Category),
				ev.UserAgent, nullInt(ev.StatusCode), nullInt(ev.ResponseTimeMs),
				nullString(ev.Country), metadata, ev.Timestamp.UTC(), receivedAt,
			)
			if err != nil {
				return fmt.Errorf("insert event %s: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// Merge applies a delta in one transaction. The stats upsert comes first so
// the row lock it takes serialises concurrent merges for the same key.
func (s *SQLStore) Merge(ctx context.Context, key models.DailyKey, delta *models.DailyDelta) error {
	if delta == nil || delta.Count == 0 {
		return nil
	}
	now := s.now().UTC()

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO crawler_daily_stats
			(owner_id, domain, day, crawler_name, crawler_company, crawler_category,
			 visit_count, unique_path_count, response_time_sum, response_time_samples, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT (owner_id, domain, day, crawler_name) DO UPDATE SET
				visit_count = crawler_daily_stats.visit_count + excluded.visit_count,
				response_time_sum = crawler_daily_stats.response_time_sum + excluded.response_time_sum,
				response_time_samples = crawler_daily_stats.response_time_samples + excluded.response_time_samples,
				updated_at = excluded.updated_at`),
			key.OwnerID, key.Domain, key.Date, key.CrawlerName,
			delta.CrawlerCompany, string(delta.CrawlerCategory),
			delta.Count, delta.ResponseTimeSum, delta.ResponseTimeSamples, now,
		)
		if err != nil {
			return fmt.Errorf("upsert daily stats: %w", err)
		}

		if err := s.insertPaths(ctx, tx, key, delta.PathList()); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, s.db.Rebind(`UPDATE crawler_daily_stats SET unique_path_count = (
				SELECT COUNT(*) FROM crawler_daily_paths
				WHERE owner_id = ? AND domain = ? AND day = ? AND crawler_name = ?)
			WHERE owner_id = ? AND domain = ? AND day = ? AND crawler_name = ?`),
			key.OwnerID, key.Domain, key.Date, key.CrawlerName,
			key.OwnerID, key.Domain, key.Date, key.CrawlerName,
		)
		if err != nil {
			return fmt.Errorf("refresh path count: %w", err)
		}

		for country, visits := range delta.Countries {
			_, err = tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO crawler_daily_countries
				(owner_id, domain, day, crawler_name, country, visits)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (owner_id, domain, day, crawler_name, country) DO UPDATE SET
					visits = crawler_daily_countries.visits + excluded.visits`),
				key.OwnerID, key.Domain, key.Date, key.CrawlerName, country, visits,
			)
			if err != nil {
				return fmt.Errorf("upsert country %s: %w", country, err)
			}
		}
		return nil
	})
}

func (s *SQLStore) insertPaths(ctx context.Context, tx *sql.Tx, key models.DailyKey, paths []string) error {
	for start := 0; start < len(paths); start += pathChunk {
		chunk := paths[start:min(start+pathChunk, len(paths))]

		var b strings.Builder
		b.WriteString("INSERT INTO crawler_daily_paths (owner_id, domain, day, crawler_name, path) VALUES ")
		args := make([]any, 0, len(chunk)*5)
		for i, p := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, key.OwnerID, key.Domain, key.Date, key.CrawlerName, p)
		}
		b.WriteString(" ON CONFLICT DO NOTHING")

		if _, err := tx.ExecContext(ctx, s.db.Rebind(b.String()), args...); err != nil {
			return fmt.Errorf("insert paths: %w", err)
		}
	}
	return nil
}

const statsColumns = `owner_id, domain, day, crawler_name, crawler_company, crawler_category,
	visit_count, unique_path_count, response_time_sum, response_time_samples, updated_at`

func scanStats(row interface{ Scan(...any) error }) (*models.DailyStatsRecord, error) {
	var (
		rec      models.DailyStatsRecord
		category string
		rtSum    int64
	)
	err := row.Scan(&rec.OwnerID, &rec.Domain, &rec.Date, &rec.CrawlerName, &rec.CrawlerCompany, &category,
		&rec.VisitCount, &rec.UniquePathCount, &rtSum, &rec.ResponseTimeSamples, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.CrawlerCategory = models.Category(category)
	rec.AvgResponseTimeMs = models.MeanResponseTime(rtSum, rec.ResponseTimeSamples)
	rec.CountryCounts = make(map[string]int64)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func (s *SQLStore) Get(ctx context.Context, key models.DailyKey) (*models.DailyStatsRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+statsColumns+` FROM crawler_daily_stats
		WHERE owner_id = ? AND domain = ? AND day = ? AND crawler_name = ?`),
		key.OwnerID, key.Domain, key.Date, key.CrawlerName)
	rec, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get daily stats %s: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT country, visits FROM crawler_daily_countries
		WHERE owner_id = ? AND domain = ? AND day = ? AND crawler_name = ?`),
		key.OwnerID, key.Domain, key.Date, key.CrawlerName)
	if err != nil {
		return nil, fmt.Errorf("get countries %s: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var country string
		var visits int64
		if err := rows.Scan(&country, &visits); err != nil {
			return nil, err
		}
		rec.CountryCounts[country] = visits
	}
	return rec, rows.Err()
}

// List returns the owner's rows for domain between from and to inclusive,
// ordered by day then crawler.
func (s *SQLStore) List(ctx context.Context, ownerID, domain, from, to string) ([]*models.DailyStatsRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT `+statsColumns+` FROM crawler_daily_stats
		WHERE owner_id = ? AND domain = ? AND day >= ? AND day <= ?
		ORDER BY day, crawler_name`),
		ownerID, domain, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}

	var records []*models.DailyStatsRecord
	index := make(map[models.DailyKey]*models.DailyStatsRecord)
	for rows.Next() {
		rec, err := scanStats(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, rec)
		index[rec.Key()] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	crows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT day, crawler_name, country, visits FROM crawler_daily_countries
		WHERE owner_id = ? AND domain = ? AND day >= ? AND day <= ?`),
		ownerID, domain, from, to)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var day, crawler, country string
		var visits int64
		if err := crows.Scan(&day, &crawler, &country, &visits); err != nil {
			return nil, err
		}
		key := models.DailyKey{OwnerID: ownerID, Domain: domain, Date: day, CrawlerName: crawler}
		if rec, ok := index[key]; ok {
			rec.CountryCounts[country] = visits
		}
	}
	return records, crows.Err()
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
