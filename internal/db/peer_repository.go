package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/dmail/internal/dmail"
)

// Peer repository errors.
var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerAlreadyExists = errors.New("peer with this id already exists")
	ErrInvalidPeer       = errors.New("peer full name is required")
)

// PeerRepository handles peer persistence.
type PeerRepository struct {
	db *DB
}

// NewPeerRepository creates a new PeerRepository.
func NewPeerRepository(db *DB) *PeerRepository {
	return &PeerRepository{db: db}
}

// Create adds a peer, assigning a uuid when ID is empty.
func (r *PeerRepository) Create(ctx context.Context, peer *dmail.Peer) error {
	peer.FullName = strings.TrimSpace(peer.FullName)
	if peer.FullName == "" {
		return ErrInvalidPeer
	}
	if strings.TrimSpace(peer.ID) == "" {
		peer.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO peers (id, full_name, profile_pic, created_at)
		VALUES (?, ?, ?, ?)
	`,
		peer.ID,
		peer.FullName,
		peer.ProfilePic,
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPeerAlreadyExists
		}
		return fmt.Errorf("failed to insert peer: %w", err)
	}
	return nil
}

// Get retrieves a peer by ID.
func (r *PeerRepository) Get(ctx context.Context, id string) (*dmail.Peer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, full_name, profile_pic FROM peers WHERE id = ?
	`, id)

	var peer dmail.Peer
	if err := row.Scan(&peer.ID, &peer.FullName, &peer.ProfilePic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPeerNotFound
		}
		return nil, fmt.Errorf("failed to scan peer: %w", err)
	}
	return &peer, nil
}

// List returns every peer except excludeID, ordered by name.
func (r *PeerRepository) List(ctx context.Context, excludeID string) ([]dmail.Peer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, profile_pic
		FROM peers
		WHERE id != ?
		ORDER BY full_name, id
	`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	peers := []dmail.Peer{}
	for rows.Next() {
		var peer dmail.Peer
		if err := rows.Scan(&peer.ID, &peer.FullName, &peer.ProfilePic); err != nil {
			return nil, fmt.Errorf("failed to scan peer: %w", err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating peers: %w", err)
	}
	return peers, nil
}
