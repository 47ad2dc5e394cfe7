package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvales/nftmarketd/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingSelectCols = `id, token_contract, token_id, price::TEXT, seller, sold, created_at, sold_at`

func scanListingFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Listing, error) {
	var l domain.Listing
	var contract, priceStr, seller string
	var tokenID int64
	var id int64

	err := scanner.Scan(
		&id, &contract, &tokenID, &priceStr, &seller,
		&l.Sold, &l.CreatedAt, &l.SoldAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return domain.Listing{}, fmt.Errorf("postgres: malformed price %q", priceStr)
	}

	l.ID = uint64(id)
	l.TokenContract = common.HexToAddress(contract)
	l.TokenID = uint64(tokenID)
	l.Price = price
	l.Seller = common.HexToAddress(seller)
	return l, nil
}

// Create implements domain.ListingStore.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (id, token_contract, token_id, price, seller, sold, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		int64(l.ID), l.TokenContract.Hex(), int64(l.TokenID),
		l.Price.String(), l.Seller.Hex(), l.Sold, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create listing %d: %w", l.ID, err)
	}
	return nil
}

// Get implements domain.ListingStore.
func (s *ListingStore) Get(ctx context.Context, id uint64) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, int64(id))

	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %d: %w", id, err)
	}
	return l, nil
}

// MarkSold implements domain.ListingStore.
func (s *ListingStore) MarkSold(ctx context.Context, id uint64, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET sold = TRUE, sold_at = $2 WHERE id = $1`,
		int64(id), at,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark listing %d sold: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

// List implements domain.ListingStore, ordered by id descending.
func (s *ListingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings`
	var conds []string
	var args []any
	argIdx := 1

	if opts.SoldOnly {
		conds = append(conds, "sold")
	}
	if opts.Since != nil {
		col := "created_at"
		if opts.SoldOnly {
			col = "sold_at"
		}
		conds = append(conds, fmt.Sprintf("%s >= $%d", col, argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// NextID implements domain.ListingStore. Ids are dense from one; the
// ledger serializes allocation, so max+1 is race-free here.
func (s *ListingStore) NextID(ctx context.Context) (uint64, error) {
	var maxID int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM listings`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("postgres: next listing id: %w", err)
	}
	return uint64(maxID) + 1, nil
}

// ActiveByToken implements domain.ListingStore.
func (s *ListingStore) ActiveByToken(ctx context.Context, tokenContract common.Address, tokenID uint64) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE token_contract = $1 AND token_id = $2 AND NOT sold`,
		tokenContract.Hex(), int64(tokenID),
	)

	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: active listing for token %d: %w", tokenID, err)
	}
	return l, nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
