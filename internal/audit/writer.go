// Package audit implements the optional, best-effort route-event sink
// described in SPEC_FULL.md's DOMAIN STACK: a durable log of route
// announce/withdraw/refresh events and peer up/down transitions, written
// off the reactor's critical path. It is explicitly not the source of
// truth for RIB-out/RIB-in on restart (§6) — disabling it changes nothing
// about session or RIB behavior.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/exabgpd/bgpd/internal/bgp"
	"github.com/exabgpd/bgpd/internal/metrics"
)

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("audit: zstd encoder init: %v", err))
	}
}

// Kind distinguishes the event rows this sink accepts.
type Kind string

const (
	KindAnnounce Kind = "announce"
	KindWithdraw Kind = "withdraw"
	KindRefresh  Kind = "refresh"
	KindPeerUp   Kind = "peer-up"
	KindPeerDown Kind = "peer-down"
)

// Event is one audit row, built by the reactor as it drives a peer and
// handed off over a bounded channel to Pipeline.Run — the sink never
// touches reactor-owned state directly.
type Event struct {
	Time      time.Time
	Neighbor  string
	PeerASN   bgp.ASN
	Kind      Kind
	Family    bgp.Family
	Prefix    string // Route.NLRI().String() when applicable, "" otherwise
	NextHop   string
	Attrs     map[string]any // flattened attribute view for JSONB storage
	RawUpdate []byte         // raw wire bytes, kept only when Writer.storeRaw
}

// EventID hashes the fields that make an event unique for ON CONFLICT
// dedup: neighbor, kind, peer ASN, family, prefix and next-hop. No time is
// hashed; the conflict key pairs this hash with event_time, so a retried
// write of the same event after a transient DB error never double counts
// the same occurrence.
func EventID(e *Event) []byte {
	return eventHash(e)
}

type Writer struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	storeRaw    bool
	compressRaw bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRaw, compressRaw bool) *Writer {
	return &Writer{pool: pool, logger: logger, storeRaw: storeRaw, compressRaw: compressRaw}
}

// FlushBatch inserts a batch of audit events into route_audit, returning
// the number of rows actually inserted after ON CONFLICT DO NOTHING dedup.
func (w *Writer) FlushBatch(ctx context.Context, events []*Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO route_audit (event_id, event_time, neighbor, peer_asn, kind, afi, safi,
			prefix, nexthop, attrs, raw_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, event_time) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		var attrsJSON []byte
		if len(e.Attrs) > 0 {
			attrsJSON, _ = json.Marshal(e.Attrs)
		}
		var raw []byte
		if w.storeRaw && e.RawUpdate != nil {
			if w.compressRaw {
				raw = zstdEncoder.EncodeAll(e.RawUpdate, nil)
			} else {
				raw = e.RawUpdate
			}
		}
		batch.Queue(insertSQL,
			EventID(e), e.Time, e.Neighbor, uint32(e.PeerASN), string(e.Kind),
			uint16(e.Family.AFI), uint8(e.Family.SAFI), nilIfEmpty(e.Prefix),
			nilIfEmpty(e.NextHop), attrsJSON, raw,
		)
	}

	results := tx.SendBatch(ctx, batch)
	var inserted int64
	for range events {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("audit: insert route_audit row: %w", err)
		}
		affected := tag.RowsAffected()
		inserted += affected
		if affected == 0 {
			metrics.AuditDedupConflictsTotal.WithLabelValues(events[0].Neighbor).Inc()
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("audit: closing batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("audit: commit tx: %w", err)
	}

	metrics.AuditWriteDuration.WithLabelValues("insert").Observe(time.Since(start).Seconds())
	return inserted, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
