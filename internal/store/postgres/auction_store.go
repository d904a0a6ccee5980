package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL. Amounts are
// stored as decimal strings to preserve uint256 precision; the id comes from
// a BIGSERIAL so auction ids are monotonic and never reused.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates an AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Create inserts a new auction and returns its assigned id.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) (uint64, error) {
	const query = `
		INSERT INTO auctions (
			token_id, seller, buyer, price, step, penalty, fee,
			start_time, end_time, completed, participants, shares
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12
		)
		RETURNING id`

	var id uint64
	err := s.pool.QueryRow(ctx, query,
		bigStr(a.TokenID), a.Seller.Hex(), addrPtr(a.Buyer),
		bigStr(a.Price), bigStr(a.Step), bigStr(a.Penalty), bigStr(a.Fee),
		a.StartTime, a.EndTime, a.Completed,
		addrStrings(a.Participants), bigStrings(a.Shares),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create auction: %w", err)
	}
	return id, nil
}

// Get retrieves a single auction by id.
func (s *AuctionStore) Get(ctx context.Context, id uint64) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Auction{}, fmt.Errorf("auction %d: %w", id, domain.ErrNotFound)
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %d: %w", id, err)
	}
	return a, nil
}

// Update rewrites the mutable fields of an existing auction.
func (s *AuctionStore) Update(ctx context.Context, a domain.Auction) error {
	const query = `
		UPDATE auctions
		SET buyer = $1, price = $2, fee = $3, completed = $4, updated_at = NOW()
		WHERE id = $5`

	tag, err := s.pool.Exec(ctx, query,
		addrPtr(a.Buyer), bigStr(a.Price), bigStr(a.Fee), a.Completed, a.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("auction %d: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// List returns auctions ordered by id with pagination.
func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions ORDER BY id`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return auctions, nil
}

const auctionSelectCols = `id, token_id, seller, buyer, price, step, penalty, fee,
	start_time, end_time, completed, participants, shares`

func scanAuctionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Auction, error) {
	var a domain.Auction
	var tokenID, price, step, penalty, fee string
	var seller string
	var buyer *string
	var participants, shares []string

	err := scanner.Scan(
		&a.ID, &tokenID, &seller, &buyer,
		&price, &step, &penalty, &fee,
		&a.StartTime, &a.EndTime, &a.Completed,
		&participants, &shares,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	a.Seller = common.HexToAddress(seller)
	if buyer != nil {
		addr := common.HexToAddress(*buyer)
		a.Buyer = &addr
	}

	if a.TokenID, err = parseBig(tokenID); err != nil {
		return domain.Auction{}, err
	}
	if a.Price, err = parseBig(price); err != nil {
		return domain.Auction{}, err
	}
	if a.Step, err = parseBig(step); err != nil {
		return domain.Auction{}, err
	}
	if a.Penalty, err = parseBig(penalty); err != nil {
		return domain.Auction{}, err
	}
	if a.Fee, err = parseBig(fee); err != nil {
		return domain.Auction{}, err
	}

	a.Participants = make([]common.Address, len(participants))
	for i, p := range participants {
		a.Participants[i] = common.HexToAddress(p)
	}
	a.Shares = make([]*big.Int, len(shares))
	for i, sh := range shares {
		if a.Shares[i], err = parseBig(sh); err != nil {
			return domain.Auction{}, err
		}
	}

	return a, nil
}

func bigStr(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func bigStrings(ns []*big.Int) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = bigStr(n)
	}
	return out
}

func addrStrings(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func addrPtr(a *common.Address) *string {
	if a == nil {
		return nil
	}
	s := a.Hex()
	return &s
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed amount %q", s)
	}
	return n, nil
}
