package progress

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"

	"flash-swap-sol/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS flash_swap_progress (
	slot        BIGINT PRIMARY KEY,
	source      SMALLINT NOT NULL,
	block_time  BIGINT NOT NULL,
	status      SMALLINT NOT NULL,
	audited     INTEGER NOT NULL DEFAULT 0,
	violations  INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// 约 7 天的 slot 数（每秒 2.5 个 slot）
const retainSlots = uint64(7 * 24 * 3600 * 5 / 2)

// DBProgressStore 持久化 slot 进度，服务重启后用于判重 fallback
type DBProgressStore struct {
	db *sql.DB
}

// OpenPostgres 通过 pgx 驱动打开连接池并确认可用
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewDBProgressStore(db *sql.DB) *DBProgressStore {
	return &DBProgressStore{db: db}
}

// EnsureSchema 建表（幂等）
func (d *DBProgressStore) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CheckSlotExists 判断 slot 是否已完成（processed / invalid）
func (d *DBProgressStore) CheckSlotExists(ctx context.Context, slot uint64) (bool, error) {
	var dummy int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM flash_swap_progress WHERE slot = $1 AND status IN ($2, $3)`,
		int64(slot), int(SlotProcessed), int(SlotInvalid),
	).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check slot exists error: %w", err)
	}
	return true, nil
}

// LatestSlot 返回已记录的最大 slot，表为空时 ok=false
func (d *DBProgressStore) LatestSlot(ctx context.Context) (uint64, bool, error) {
	var latest sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(slot) FROM flash_swap_progress`).Scan(&latest); err != nil {
		return 0, false, fmt.Errorf("fetch latest slot failed: %w", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return uint64(latest.Int64), true, nil
}

// BatchUpsertSlots 按 1000 条一批写入，slot 冲突时更新状态与统计
func (d *DBProgressStore) BatchUpsertSlots(ctx context.Context, slots []*SlotRecord) error {
	const batchLimit = 1000
	for i := 0; i < len(slots); i += batchLimit {
		end := min(i+batchLimit, len(slots))
		if err := d.upsertChunk(ctx, slots[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func buildUpsert(slots []*SlotRecord) (string, []interface{}) {
	const cols = 6
	var sb strings.Builder
	sb.WriteString(`INSERT INTO flash_swap_progress (slot, source, block_time, status, audited, violations, updated_at) VALUES `)

	args := make([]interface{}, 0, len(slots)*cols)
	for i, s := range slots {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,CURRENT_TIMESTAMP)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, int64(s.Slot), s.Source, s.BlockTime, int(s.Status), s.Audited, s.Violations)
	}
	sb.WriteString(` ON CONFLICT (slot) DO UPDATE SET
	status = EXCLUDED.status,
	audited = EXCLUDED.audited,
	violations = EXCLUDED.violations,
	updated_at = CURRENT_TIMESTAMP`)
	return sb.String(), args
}

func (d *DBProgressStore) upsertChunk(ctx context.Context, slots []*SlotRecord) error {
	query, args := buildUpsert(slots)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d slots failed: %w", len(slots), err)
	}
	return nil
}

// DeleteOldSlots 删除最近约 7 天之前的记录，分批删除避免长事务
func (d *DBProgressStore) DeleteOldSlots(ctx context.Context) error {
	latest, ok, err := d.LatestSlot(ctx)
	if err != nil || !ok || latest <= retainSlots {
		return err
	}
	safeSlot := latest - retainSlots

	const batchSize = 1000
	for {
		res, err := d.db.ExecContext(ctx,
			`DELETE FROM flash_swap_progress WHERE slot IN (
				SELECT slot FROM flash_swap_progress WHERE slot < $1 ORDER BY slot LIMIT $2)`,
			int64(safeSlot), batchSize,
		)
		if err != nil {
			return fmt.Errorf("delete old slots failed: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		logger.Infof("[progress] GC deleted %d old rows below slot %d", n, safeSlot)
	}
}
