package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"rifa-api/internal/models"
)

// SQL implements Store on the libsql/Turso database. Conditional updates
// with RETURNING are the concurrency-control primitive: whichever request
// lands first wins the row, the loser sees it missing from the result.
type SQL struct {
	conn *sql.DB
}

func NewSQL(conn *sql.DB) *SQL {
	return &SQL{conn: conn}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64, extra ...interface{}) []interface{} {
	args := make([]interface{}, 0, len(ids)+len(extra))
	for _, id := range ids {
		args = append(args, id)
	}
	return append(args, extra...)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQL) ListTickets(ctx context.Context, offset, limit int, status models.TicketStatus) ([]models.Ticket, error) {
	query := "SELECT id, status, held_by, hold_expires_at, order_id, updated_at FROM raffle_numbers"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listando números")
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.Status, &t.HeldBy, &t.HoldExpiresAt, &t.OrderID, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "escaneando número")
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQL) TicketsByID(ctx context.Context, ids []int64) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := "SELECT id, status, held_by, hold_expires_at, order_id, updated_at FROM raffle_numbers WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := s.conn.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, errors.Wrap(err, "buscando números")
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.Status, &t.HeldBy, &t.HoldExpiresAt, &t.OrderID, &t.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "escaneando número")
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQL) TicketsByOrder(ctx context.Context, orderID string) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT id FROM raffle_numbers WHERE order_id = ? ORDER BY id ASC", orderID)
	if err != nil {
		return nil, errors.Wrap(err, "números de la orden")
	}
	return scanIDs(rows)
}

func (s *SQL) ClaimAsHeld(ctx context.Context, ids []int64, userID string, expiresAt *time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE raffle_numbers
		SET status = 'held', held_by = ?, hold_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (` + placeholders(len(ids)) + `) AND status = 'free'
		RETURNING id`
	args := append([]interface{}{userID, expiresAt}, idArgs(ids)...)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "reservando números")
	}
	return scanIDs(rows)
}

func (s *SQL) ReleaseHeld(ctx context.Context, ids []int64, userID string) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE raffle_numbers
		SET status = 'free', held_by = NULL, hold_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (` + placeholders(len(ids)) + `)
		  AND status = 'held' AND held_by = ? AND order_id IS NULL
		RETURNING id`
	rows, err := s.conn.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, errors.Wrap(err, "liberando números")
	}
	return scanIDs(rows)
}

func (s *SQL) ReleaseExpired(ctx context.Context, ids []int64, now time.Time) (int, error) {
	query := `UPDATE raffle_numbers
		SET status = 'free', held_by = NULL, hold_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = 'held' AND order_id IS NULL
		  AND hold_expires_at IS NOT NULL AND hold_expires_at < ?`
	args := []interface{}{now}
	if len(ids) > 0 {
		query += " AND id IN (" + placeholders(len(ids)) + ")"
		args = append(args, idArgs(ids)...)
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "liberando reservas vencidas")
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQL) AttachToOrder(ctx context.Context, ids []int64, userID, orderID string) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `UPDATE raffle_numbers
		SET order_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id IN (` + placeholders(len(ids)) + `)
		  AND status = 'held' AND held_by = ? AND order_id IS NULL
		RETURNING id`
	args := append([]interface{}{orderID}, idArgs(ids, userID)...)
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "asociando números a la orden")
	}
	return scanIDs(rows)
}

func (s *SQL) MarkTicketsSold(ctx context.Context, orderID string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE raffle_numbers
		SET status = 'sold', held_by = NULL, hold_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?`, orderID)
	return errors.Wrap(err, "marcando números vendidos")
}

func (s *SQL) CountTickets(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	rows, err := s.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM raffle_numbers GROUP BY status")
	if err != nil {
		return c, errors.Wrap(err, "contando números")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, err
		}
		switch models.TicketStatus(status) {
		case models.TicketFree:
			c.Free = n
		case models.TicketHeld:
			c.Held = n
		case models.TicketSold:
			c.Sold = n
		}
	}
	return c, rows.Err()
}

func (s *SQL) CountFree(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM raffle_numbers WHERE status = 'free'").Scan(&n)
	return n, errors.Wrap(err, "contando números libres")
}

func (s *SQL) ListFree(ctx context.Context, offset, limit int) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id FROM raffle_numbers WHERE status = 'free' ORDER BY id ASC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "listando números libres")
	}
	return scanIDs(rows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQL) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO orders
		(id, user_id, status, total_amount, price_per_number, fingerprint, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount, o.PricePerNumber, o.Fingerprint, o.Notes)
	if isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return errors.Wrap(err, "creando orden")
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.PricePerNumber,
		&o.Fingerprint, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "escaneando orden")
	}
	return &o, nil
}

const orderColumns = "id, user_id, status, total_amount, price_per_number, fingerprint, notes, created_at, updated_at"

func (s *SQL) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	return scanOrder(s.conn.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
}

func (s *SQL) OpenOrderByFingerprint(ctx context.Context, userID, fingerprint string) (*models.Order, error) {
	return scanOrder(s.conn.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = ? AND fingerprint = ?
		   AND status IN ('pending', 'awaiting_proof', 'under_review')`,
		userID, fingerprint))
}

func (s *SQL) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(status), id)
	if err != nil {
		return errors.Wrap(err, "actualizando estado de orden")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) UpdateOrderNotes(ctx context.Context, id, notes string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE orders SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", notes, id)
	if err != nil {
		return errors.Wrap(err, "actualizando nota de orden")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) CountOpenOrders(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = ?
		   AND status IN ('pending', 'awaiting_proof', 'under_review')`, userID).Scan(&n)
	return n, errors.Wrap(err, "contando órdenes abiertas")
}

func (s *SQL) scanOrders(rows *sql.Rows) ([]models.Order, error) {
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.PricePerNumber,
			&o.Fingerprint, &o.Notes, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "escaneando orden")
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *SQL) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, errors.Wrap(err, "listando órdenes recientes")
	}
	return s.scanOrders(rows)
}

func (s *SQL) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, errors.Wrap(err, "listando órdenes del usuario")
	}
	return s.scanOrders(rows)
}

// FinalizePaid flips the order to paid and its tickets to sold in one
// transaction.
func (s *SQL) FinalizePaid(ctx context.Context, orderID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "abriendo transacción")
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = 'paid', updated_at = CURRENT_TIMESTAMP WHERE id = ?", orderID)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "marcando orden pagada")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE raffle_numbers
		SET status = 'sold', held_by = NULL, hold_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?`, orderID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "marcando números vendidos")
	}

	return errors.Wrap(tx.Commit(), "confirmando transacción")
}

// FinalizeCanceled reverts the order's tickets to free and flips the
// order to canceled in one transaction.
func (s *SQL) FinalizeCanceled(ctx context.Context, orderID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "abriendo transacción")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE raffle_numbers
		SET status = 'free', held_by = NULL, hold_expires_at = NULL, order_id = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?`, orderID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "liberando números de la orden")
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = 'canceled', updated_at = CURRENT_TIMESTAMP WHERE id = ?", orderID)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "cancelando orden")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	return errors.Wrap(tx.Commit(), "confirmando transacción")
}

func (s *SQL) UpsertProof(ctx context.Context, p *models.PaymentProof) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO payment_proofs
		(order_id, user_id, file_url, file_path, file_type, size_bytes, notes, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, '', CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			user_id = excluded.user_id,
			file_url = excluded.file_url,
			file_path = excluded.file_path,
			file_type = excluded.file_type,
			size_bytes = excluded.size_bytes,
			notes = '',
			uploaded_at = CURRENT_TIMESTAMP`,
		p.OrderID, p.UserID, p.FileURL, p.FilePath, p.FileType, p.SizeBytes)
	return errors.Wrap(err, "guardando comprobante")
}

func (s *SQL) ProofByOrder(ctx context.Context, orderID string) (*models.PaymentProof, error) {
	var p models.PaymentProof
	err := s.conn.QueryRowContext(ctx, `SELECT order_id, user_id, file_url, file_path, file_type, size_bytes, notes, uploaded_at
		FROM payment_proofs WHERE order_id = ?`, orderID).Scan(
		&p.OrderID, &p.UserID, &p.FileURL, &p.FilePath, &p.FileType, &p.SizeBytes, &p.Notes, &p.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "buscando comprobante")
	}
	return &p, nil
}

func (s *SQL) DeleteProof(ctx context.Context, orderID string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM payment_proofs WHERE order_id = ?", orderID)
	return errors.Wrap(err, "borrando comprobante")
}

func (s *SQL) SetProofNotes(ctx context.Context, orderID, notes string) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE payment_proofs SET notes = ? WHERE order_id = ?", notes, orderID)
	return errors.Wrap(err, "guardando observación del comprobante")
}

func (s *SQL) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var isAdmin int
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, email, is_admin, role, active_purchases_count FROM app_users WHERE id = ?", id).Scan(
		&u.ID, &u.Email, &isAdmin, &u.Role, &u.ActivePurchases)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "buscando usuario")
	}
	u.IsAdmin = isAdmin != 0
	return &u, nil
}

func (s *SQL) UpsertUser(ctx context.Context, u *models.User) error {
	isAdmin := 0
	if u.IsAdmin {
		isAdmin = 1
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO app_users (id, email, is_admin, role, active_purchases_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			is_admin = excluded.is_admin,
			role = excluded.role`,
		u.ID, u.Email, isAdmin, string(u.Role), u.ActivePurchases)
	return errors.Wrap(err, "guardando usuario")
}

func (s *SQL) SetActivePurchases(ctx context.Context, userID string, n int) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE app_users SET active_purchases_count = ? WHERE id = ?", n, userID)
	return errors.Wrap(err, "actualizando contador de compras")
}

func (s *SQL) AppendAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO audit_log
		(admin_id, action, order_id, numbers_count, order_total, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.AdminID, e.Action, e.OrderID, e.NumbersCount, e.OrderTotal, e.Metadata)
	return errors.Wrap(err, "registrando auditoría")
}
