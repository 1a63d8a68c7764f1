package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/usageledger/pkg/entitlement"
	"github.com/dmitrymomot/usageledger/pkg/pg"
	"github.com/dmitrymomot/usageledger/pkg/usage"
)

// columns maps metered fields onto usage_ledgers columns, in entitlement.Fields order.
var columns = map[usage.Field]string{
	entitlement.FieldSuppliers:         "suppliers",
	entitlement.FieldAssessments:       "assessments",
	entitlement.FieldMessages:          "messages",
	entitlement.FieldDocumentReviews:   "document_reviews",
	entitlement.FieldReportCreate:      "report_create",
	entitlement.FieldReportsGenerated:  "reports_generated",
	entitlement.FieldNotificationsSend: "notifications_send",
}

var (
	selectColumns = buildSelectColumns()
	refreshSQL    = buildUpsert(true)
	applySQL      = buildUpsert(false)
	getSQL        = "SELECT " + selectColumns + " FROM usage_ledgers WHERE subscription_id = $1"
	zeroSQL       = buildZero()
)

// LedgerStore implements usage.Store on the usage_ledgers table.
type LedgerStore struct {
	db DB
}

// NewLedgerStore creates a ledger store.
func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Get(ctx context.Context, subID uuid.UUID) (*usage.Ledger, error) {
	l, err := scanLedger(s.db.QueryRow(ctx, getSQL, subID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, usage.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	return l, nil
}

// Refresh relies on ON CONFLICT DO UPDATE locking the row: a concurrent writer
// re-evaluates the stamp guard against the committed row and skips the update.
func (s *LedgerStore) Refresh(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	l, err := scanLedger(s.db.QueryRow(ctx, refreshSQL, upsertArgs(subID, period, grant)...))
	if err == nil {
		return l, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("refresh ledger: %w", err)
	}
	// Stamp already current: the guarded update returned no row
	return s.Get(ctx, subID)
}

func (s *LedgerStore) Apply(ctx context.Context, subID uuid.UUID, period usage.Period, grant usage.Grant) (*usage.Ledger, error) {
	l, err := scanLedger(s.db.QueryRow(ctx, applySQL, upsertArgs(subID, period, grant)...))
	if err == nil {
		return l, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("apply grant: %w", err)
	}
	// Plan already applied: the guarded update returned no row
	return s.Get(ctx, subID)
}

func (s *LedgerStore) Consume(ctx context.Context, subID uuid.UUID, field usage.Field, count int64) (usage.Quota, error) {
	col, ok := columns[field]
	if !ok {
		return 0, usage.ErrInvalidField
	}
	if count < 1 {
		return 0, usage.ErrInvalidCount
	}

	// col is taken from the fixed column map, never from input
	query := fmt.Sprintf(`UPDATE usage_ledgers
		SET %[1]s = CASE WHEN %[1]s = -1 THEN -1 ELSE %[1]s - $2 END, updated_at = now()
		WHERE subscription_id = $1 AND (%[1]s = -1 OR %[1]s >= $2)
		RETURNING %[1]s`, col)

	var remaining int64
	err := s.db.QueryRow(ctx, query, subID, count).Scan(&remaining)
	if err == nil {
		return usage.Quota(remaining), nil
	}
	if !pg.IsNotFoundError(err) {
		return 0, fmt.Errorf("consume %s: %w", field, err)
	}

	// Nothing updated: either no row or not enough balance
	var current int64
	err = s.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM usage_ledgers WHERE subscription_id = $1", col), subID).Scan(&current)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return 0, usage.ErrLedgerNotFound
		}
		return 0, fmt.Errorf("read %s: %w", field, err)
	}
	return 0, &usage.LimitExceededError{Field: field, Limit: usage.Quota(current), Required: count}
}

func (s *LedgerStore) Zero(ctx context.Context, subID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, zeroSQL, subID); err != nil {
		return fmt.Errorf("zero ledger: %w", err)
	}
	return nil
}

// upsertArgs are: subscription id, year, month, plan id, then one grant value
// per field. A grant value of -1 means the field becomes unlimited.
func upsertArgs(subID uuid.UUID, period usage.Period, grant usage.Grant) []any {
	initial := usage.Rollover(nil, grant, period)
	args := make([]any, 0, 4+len(entitlement.Fields))
	args = append(args, subID, period.Year, int(period.Month), grant.PlanID)
	for _, f := range entitlement.Fields {
		// Rollover of nothing is exactly the per-field grant (or -1)
		args = append(args, int64(initial.Counters[f]))
	}
	return args
}

func buildSelectColumns() string {
	cols := []string{"subscription_id", "plan_id"}
	for _, f := range entitlement.Fields {
		cols = append(cols, columns[f])
	}
	cols = append(cols, "period_year", "period_month", "updated_at")
	return strings.Join(cols, ", ")
}

// buildUpsert renders the refresh statement (stamp guard, plan kept once set)
// or the apply statement (plan guard, plan replaced).
func buildUpsert(refresh bool) string {
	var names, values, sets []string
	for i, f := range entitlement.Fields {
		col := columns[f]
		p := fmt.Sprintf("$%d", i+5)
		names = append(names, col)
		values = append(values, p)
		sets = append(sets, fmt.Sprintf(
			"%[1]s = CASE WHEN EXCLUDED.%[1]s = -1 THEN -1 WHEN usage_ledgers.%[1]s = -1 THEN EXCLUDED.%[1]s ELSE usage_ledgers.%[1]s + EXCLUDED.%[1]s END",
			col))
	}
	if refresh {
		sets = append(sets, "plan_id = CASE WHEN usage_ledgers.plan_id = '' THEN EXCLUDED.plan_id ELSE usage_ledgers.plan_id END")
	} else {
		sets = append(sets, "plan_id = EXCLUDED.plan_id")
	}
	sets = append(sets,
		"period_year = EXCLUDED.period_year",
		"period_month = EXCLUDED.period_month",
		"updated_at = now()",
	)

	q := fmt.Sprintf(`INSERT INTO usage_ledgers (subscription_id, period_year, period_month, plan_id, %s)
		VALUES ($1, $2, $3, $4, %s)
		ON CONFLICT (subscription_id) DO UPDATE SET %s`,
		strings.Join(names, ", "), strings.Join(values, ", "), strings.Join(sets, ", "))
	if refresh {
		q += " WHERE usage_ledgers.period_year <> EXCLUDED.period_year OR usage_ledgers.period_month <> EXCLUDED.period_month"
	} else {
		q += " WHERE EXCLUDED.plan_id = '' OR usage_ledgers.plan_id <> EXCLUDED.plan_id"
	}
	return q + " RETURNING " + selectColumns
}

func buildZero() string {
	sets := make([]string, 0, len(entitlement.Fields)+2)
	for _, f := range entitlement.Fields {
		sets = append(sets, columns[f]+" = 0")
	}
	sets = append(sets, "plan_id = ''", "updated_at = now()")
	return "UPDATE usage_ledgers SET " + strings.Join(sets, ", ") + " WHERE subscription_id = $1"
}

func scanLedger(row pgx.Row) (*usage.Ledger, error) {
	l := &usage.Ledger{Counters: make(map[usage.Field]usage.Quota, len(entitlement.Fields))}
	counters := make([]int64, len(entitlement.Fields))
	var month int

	dest := make([]any, 0, len(counters)+5)
	dest = append(dest, &l.SubscriptionID, &l.PlanID)
	for i := range counters {
		dest = append(dest, &counters[i])
	}
	dest = append(dest, &l.Period.Year, &month, &l.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range entitlement.Fields {
		l.Counters[f] = usage.Quota(counters[i])
	}
	l.Period.Month = time.Month(month)
	return l, nil
}
