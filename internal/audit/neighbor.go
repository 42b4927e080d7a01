package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const upsertNeighborSQL = `
INSERT INTO neighbor_meta (neighbor, peer_asn, description, first_seen, last_seen)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (neighbor) DO UPDATE SET
    peer_asn    = COALESCE(EXCLUDED.peer_asn, neighbor_meta.peer_asn),
    description = COALESCE(EXCLUDED.description, neighbor_meta.description),
    last_seen   = now()`

// UpsertNeighbor records or refreshes a neighbor's metadata row, mirroring
// the teacher's history.UpsertRouter (COALESCE preserves a previously
// populated field rather than overwriting it with NULL).
func UpsertNeighbor(ctx context.Context, pool *pgxpool.Pool, neighbor, description string, peerASN *int64) error {
	_, err := pool.Exec(ctx, upsertNeighborSQL, neighbor, peerASN, nilIfEmpty(description))
	return err
}
