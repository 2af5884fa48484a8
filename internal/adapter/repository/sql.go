package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
)

const productColumns = "id, name, description, categories, price_cents, images, created_at, updated_at"

// SQLStore implements the product repository on database/sql.
type SQLStore struct {
	db *sql.DB
	d  dialect
	// now is replaced in tests.
	now func() time.Time
}

// Open connects to the database and prepares the schema.
func Open(driverName, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	db, err := initDB(d, dsn)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db, d: d, now: time.Now}, nil
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// args renders n placeholders starting at bind parameter start.
func (s *SQLStore) args(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.d.placeholder(start + i)
	}
	return out
}

func (s *SQLStore) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	p = p.Normalize()
	now := s.now().UTC()

	ph := s.args(1, 7)
	query := fmt.Sprintf(
		`INSERT INTO products (name, description, categories, price_cents, images, created_at, updated_at)
		 VALUES (%s) RETURNING id`,
		strings.Join(ph, ", "),
	)

	err := s.db.QueryRowContext(ctx, query,
		p.Name, p.Description, s.d.list(p.Categories), int64(p.Price), s.d.list(p.Images), now, now,
	).Scan(&p.ID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE id = %s", productColumns, s.d.placeholder(1))
	p, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (s *SQLStore) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	p = p.Normalize()

	ph := s.args(1, 7)
	query := fmt.Sprintf(
		`UPDATE products SET name = %s, description = %s, categories = %s, price_cents = %s, images = %s, updated_at = %s
		 WHERE id = %s`,
		ph[0], ph[1], ph[2], ph[3], ph[4], ph[5], ph[6],
	)

	res, err := s.db.ExecContext(ctx, query,
		p.Name, p.Description, s.d.list(p.Categories), int64(p.Price), s.d.list(p.Images), s.now().UTC(), p.ID,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %d: %w", p.ID, err)
	}
	if n == 0 {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, p.ID)
	}

	return s.Get(ctx, p.ID)
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM products WHERE id = %s", s.d.placeholder(1))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products ORDER BY id", productColumns)
	var args []interface{}
	if limit > 0 {
		query += " LIMIT " + s.d.placeholder(1)
		args = append(args, limit)
	}
	return s.query(ctx, "list products", query, args...)
}

func (s *SQLStore) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf("SELECT %s FROM products WHERE id IN (%s) ORDER BY id",
		productColumns, strings.Join(s.args(1, len(ids)), ", "))

	return s.query(ctx, "find products by id", query, args...)
}

// FindByTokens narrows candidates in SQL with one LIKE group per token, then
// re-checks each row with the domain matcher so both stores agree exactly.
// Tokens LIKE cannot match reliably are left to the re-check.
func (s *SQLStore) FindByTokens(ctx context.Context, tokens []string) ([]domain.Product, error) {
	if len(tokens) == 0 {
		return []domain.Product{}, nil
	}

	fields := []string{"name", "COALESCE(description, '')", s.d.categoryText}
	clauses := make([]string, 0, len(tokens))
	args := make([]interface{}, 0, len(fields)*len(tokens))
	n := 1
	for _, token := range tokens {
		if !likeSafe(token) {
			continue
		}
		pattern := "%" + escapeLike(strings.ToLower(token)) + "%"
		ph := s.args(n, len(fields))
		n += len(fields)

		preds := make([]string, 0, 2*len(fields))
		for i, f := range fields {
			preds = append(preds, fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, f, ph[i]))
			if s.d.unfolded != nil {
				preds = append(preds, s.d.unfolded(f))
			}
			args = append(args, pattern)
		}
		clauses = append(clauses, "("+strings.Join(preds, " OR ")+")")
	}

	where := "1=1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf("SELECT %s FROM products WHERE %s ORDER BY id", productColumns, where)

	rows, err := s.query(ctx, "find products by keyword", query, args...)
	if err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, p := range rows {
		if p.MatchesTokens(tokens) {
			out = append(out, p)
		}
	}
	return out, nil
}

// likeSafe reports whether a token can be matched by LOWER ... LIKE. Only
// ASCII folds the same in SQL and Go, and characters JSON may escape in
// stored category text are excluded.
func likeSafe(token string) bool {
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c < 0x20 || c >= 0x7f {
			return false
		}
		switch c {
		case '"', '\\', '&', '<', '>':
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLStore) query(ctx context.Context, op, query string, args ...interface{}) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scan(row scanner) (domain.Product, error) {
	var (
		p     domain.Product
		desc  sql.NullString
		price int64
	)
	err := row.Scan(
		&p.ID, &p.Name, &desc,
		s.d.scanList(&p.Categories), &price, s.d.scanList(&p.Images),
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.Description = desc.String
	p.Price = domain.Price(price)
	return p.Normalize(), nil
}
