package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/pkg/db"
	"gorm.io/gorm"
)

const numberColumns = `id, full_number, is_golden, status, subscriber_name, company_name, gateway,
	gateway_username, assignment_date, unassignment_date, previous_company, previous_subscriber,
	is_published, published_date, published_by, created_at, updated_at`

type repo struct{}

func Provide() phonenumberdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, n *phonenumberdomain.PhoneNumber) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO phone_numbers (`+numberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.FullNumber,
		n.IsGolden,
		n.Status,
		n.SubscriberName,
		n.CompanyName,
		n.Gateway,
		n.GatewayUsername,
		n.AssignmentDate,
		n.UnassignmentDate,
		n.PreviousCompany,
		n.PreviousSubscriber,
		n.IsPublished,
		n.PublishedDate,
		n.PublishedBy,
		n.CreatedAt,
		n.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*phonenumberdomain.PhoneNumber, error) {
	return r.findOne(ctx, conn, `SELECT `+numberColumns+` FROM phone_numbers WHERE id = ?`, id)
}

func (r *repo) FindByNumber(ctx context.Context, conn *gorm.DB, fullNumber string) (*phonenumberdomain.PhoneNumber, error) {
	return r.findOne(ctx, conn, `SELECT `+numberColumns+` FROM phone_numbers WHERE full_number = ?`, fullNumber)
}

// FindByIDForUpdate locks the row for the rest of the transaction. SQLite has
// no row locks; its single writer serializes the transaction instead.
func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*phonenumberdomain.PhoneNumber, error) {
	query := `SELECT ` + numberColumns + ` FROM phone_numbers WHERE id = ?`
	if db.DialectName(conn) != db.DialectSQLite {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, conn, query, id)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*phonenumberdomain.PhoneNumber, error) {
	var number phonenumberdomain.PhoneNumber
	err := conn.WithContext(ctx).Raw(query, args...).Scan(&number).Error
	if err != nil {
		return nil, err
	}
	if number.ID == 0 {
		return nil, nil
	}
	return &number, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter phonenumberdomain.ListFilter, offset, limit int) ([]phonenumberdomain.PhoneNumber, error) {
	where, args := buildWhere(db.DialectName(conn), filter)
	args = append(args, limit, offset)

	var numbers []phonenumberdomain.PhoneNumber
	err := conn.WithContext(ctx).Raw(
		`SELECT `+numberColumns+` FROM phone_numbers`+where+`
		 ORDER BY full_number ASC, id ASC
		 LIMIT ? OFFSET ?`,
		args...,
	).Scan(&numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func (r *repo) Count(ctx context.Context, conn *gorm.DB, filter phonenumberdomain.ListFilter) (int64, error) {
	where, args := buildWhere(db.DialectName(conn), filter)

	var total int64
	err := conn.WithContext(ctx).Raw(`SELECT COUNT(*) FROM phone_numbers`+where, args...).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Update merges fields into an existing row. It never inserts.
func (r *repo) Update(ctx context.Context, conn *gorm.DB, id snowflake.ID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := conn.WithContext(ctx).
		Model(&phonenumberdomain.PhoneNumber{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return phonenumberdomain.ErrNotFound
	}
	return nil
}

// CompareAndSwapStatus applies fields only while the row still has status from.
func (r *repo) CompareAndSwapStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, from phonenumberdomain.Status, fields map[string]any) (bool, error) {
	result := conn.WithContext(ctx).
		Model(&phonenumberdomain.PhoneNumber{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListCooloffExpired(ctx context.Context, conn *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]phonenumberdomain.PhoneNumber, error) {
	var numbers []phonenumberdomain.PhoneNumber
	err := conn.WithContext(ctx).Raw(
		`SELECT `+numberColumns+` FROM phone_numbers
		 WHERE status = ? AND unassignment_date < ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		phonenumberdomain.StatusCooloff,
		cutoff,
		afterID,
		limit,
	).Scan(&numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func buildWhere(dialect string, filter phonenumberdomain.ListFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.IsGolden != nil {
		clauses = append(clauses, "is_golden = ?")
		args = append(args, *filter.IsGolden)
	}
	if filter.IsPublished != nil {
		clauses = append(clauses, "is_published = ?")
		args = append(args, *filter.IsPublished)
	}
	if gateway := strings.TrimSpace(filter.Gateway); gateway != "" {
		clauses = append(clauses, "gateway = ?")
		args = append(args, gateway)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		clauses = append(clauses, "(full_number LIKE ? ESCAPE '!' OR LOWER(company_name) LIKE ? ESCAPE '!' OR LOWER(subscriber_name) LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern, pattern)
	}
	if filter.SuffixDigits > 0 && (filter.SuffixFrom != nil || filter.SuffixTo != nil) {
		expr := suffixExpr(dialect, filter.SuffixDigits)
		if filter.SuffixFrom != nil {
			clauses = append(clauses, expr+" >= ?")
			args = append(args, *filter.SuffixFrom)
		}
		if filter.SuffixTo != nil {
			clauses = append(clauses, expr+" <= ?")
			args = append(args, *filter.SuffixTo)
		}
	}
	if filter.Available {
		clauses = append(clauses, "(status = ? OR (status = ? AND unassignment_date < ?))")
		args = append(args, phonenumberdomain.StatusUnassigned, phonenumberdomain.StatusCooloff, filter.EligibleBefore)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// suffixExpr returns the numeric value of the last n digits of full_number.
// n is validated to be small and is inlined as a literal.
func suffixExpr(dialect string, n int) string {
	switch dialect {
	case db.DialectSQLite:
		return fmt.Sprintf("CAST(substr(full_number, -%d) AS INTEGER)", n)
	case db.DialectMySQL:
		return fmt.Sprintf("CAST(RIGHT(full_number, %d) AS UNSIGNED)", n)
	default:
		return fmt.Sprintf("CAST(RIGHT(full_number, %d) AS BIGINT)", n)
	}
}

// likeEscaper makes user text match literally inside a LIKE ... ESCAPE '!'
// pattern. '!' is used because a backslash literal is dialect dependent.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
