package audit

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PartitionManager maintains daily partitions of route_audit and prunes
// anything older than the configured retention window, adapted directly
// from the teacher's maintenance.PartitionManager (same daily-partition
// plus retention-cutoff shape, retargeted from route_events to
// route_audit since an audit sink accumulates exactly the same way a
// route-history table does).
type PartitionManager struct {
	pool          *pgxpool.Pool
	retentionDays int
	timezone      string
	logger        *zap.Logger
}

var validPartitionName = regexp.MustCompile(`^route_audit_\d{8}$`)

func NewPartitionManager(pool *pgxpool.Pool, retentionDays int, timezone string, logger *zap.Logger) *PartitionManager {
	if timezone == "" {
		timezone = "UTC"
	}
	return &PartitionManager{pool: pool, retentionDays: retentionDays, timezone: timezone, logger: logger}
}

func (pm *PartitionManager) Run(ctx context.Context) error {
	if err := pm.CreatePartitions(ctx); err != nil {
		return fmt.Errorf("audit: creating partitions: %w", err)
	}
	if err := pm.DropOldPartitions(ctx); err != nil {
		return fmt.Errorf("audit: dropping old partitions: %w", err)
	}
	return nil
}

// CreatePartitions ensures today's and tomorrow's partitions exist.
func (pm *PartitionManager) CreatePartitions(ctx context.Context) error {
	loc, err := time.LoadLocation(pm.timezone)
	if err != nil {
		return fmt.Errorf("audit: loading timezone %s: %w", pm.timezone, err)
	}

	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)

	if err := pm.createPartition(ctx, today, tomorrow); err != nil {
		return err
	}
	return pm.createPartition(ctx, tomorrow, dayAfter)
}

func (pm *PartitionManager) createPartition(ctx context.Context, from, to time.Time) error {
	name := fmt.Sprintf("route_audit_%s", from.Format("20060102"))
	safeName := pgx.Identifier{name}.Sanitize()
	fromStr := from.UTC().Format("2006-01-02 15:04:05+00")
	toStr := to.UTC().Format("2006-01-02 15:04:05+00")

	createSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF route_audit FOR VALUES FROM ('%s') TO ('%s')`,
		safeName, fromStr, toStr,
	)
	if _, err := pm.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("audit: creating partition %s: %w", name, err)
	}
	pm.logger.Info("audit partition ensured", zap.String("partition", name))

	idxName := pgx.Identifier{fmt.Sprintf("idx_%s_neighbor_time", name)}.Sanitize()
	idxSQL := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (neighbor, event_time DESC)`,
		idxName, safeName,
	)
	if _, err := pm.pool.Exec(ctx, idxSQL); err != nil {
		return fmt.Errorf("audit: creating index on %s: %w", name, err)
	}
	return nil
}

// DropOldPartitions drops partitions older than the retention window.
func (pm *PartitionManager) DropOldPartitions(ctx context.Context) error {
	loc, err := time.LoadLocation(pm.timezone)
	if err != nil {
		return fmt.Errorf("audit: loading timezone %s: %w", pm.timezone, err)
	}
	if pm.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().In(loc).AddDate(0, 0, -pm.retentionDays)
	cutoffDate := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, loc)

	rows, err := pm.pool.Query(ctx,
		`SELECT inhrelid::regclass::text FROM pg_inherits WHERE inhparent = 'route_audit'::regclass`)
	if err != nil {
		return fmt.Errorf("audit: listing partitions: %w", err)
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("audit: scanning partition name: %w", err)
		}
		partitions = append(partitions, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("audit: iterating partitions: %w", err)
	}

	for _, name := range partitions {
		if !validPartitionName.MatchString(name) {
			pm.logger.Warn("audit: skipping partition with unexpected name", zap.String("partition", name))
			continue
		}
		dateStr := name[len(name)-8:]
		partDate, err := time.ParseInLocation("20060102", dateStr, loc)
		if err != nil {
			pm.logger.Warn("audit: cannot parse partition date", zap.String("partition", name))
			continue
		}
		if partDate.Before(cutoffDate) {
			safeName := pgx.Identifier{name}.Sanitize()
			if _, err := pm.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", safeName)); err != nil {
				return fmt.Errorf("audit: dropping partition %s: %w", name, err)
			}
			pm.logger.Info("audit: dropped old partition", zap.String("partition", name), zap.Time("cutoff", cutoffDate))
		}
	}
	return nil
}
