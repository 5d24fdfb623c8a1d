package contacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"smsgate/internal/domain"
	"smsgate/internal/phone"
)

// maxAvatarBytes caps avatar files attached to notifications.
const maxAvatarBytes = 5 << 20

// Identity is what the user sees for a sender.
type Identity struct {
	DisplayName string
	PhotoRef    string
}

// Resolver maps addresses to identities and block verdicts.
type Resolver struct {
	blocklist domain.BlockList
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil blocklist blocks nobody.
func NewResolver(blocklist domain.BlockList, logger *slog.Logger) *Resolver {
	return &Resolver{blocklist: blocklist, logger: logger}
}

// Resolve returns the directory identity of address, or the raw address
// with no photo when there is no entry.
func (r *Resolver) Resolve(address string, snap *Snapshot) Identity {
	c, ok := snap.Lookup(address)
	if !ok || c.Name == "" {
		id := Identity{DisplayName: address}
		if ok {
			id.PhotoRef = c.PhotoRef
		}
		return id
	}
	return Identity{DisplayName: c.Name, PhotoRef: c.PhotoRef}
}

// Known reports whether address has a directory entry. The empty address is
// never known.
func (r *Resolver) Known(address string, snap *Snapshot) bool {
	_, ok := snap.Lookup(address)
	return ok
}

// IsBlocked consults the block-list under the same key as directory lookups.
// The empty address is never blocked. A block-list failure is logged and the
// sender is treated as not blocked.
func (r *Resolver) IsBlocked(ctx context.Context, address string) bool {
	key := phone.Comparable(address)
	if key == "" || r.blocklist == nil {
		return false
	}
	blocked, err := r.blocklist.Contains(ctx, key)
	if err != nil {
		r.logger.Error("block-list lookup failed, treating sender as not blocked", "err", err)
		return false
	}
	return blocked
}

// LoadAvatar reads the image referenced by photoRef. An empty reference
// returns nil without error.
func LoadAvatar(photoRef string) ([]byte, error) {
	if photoRef == "" {
		return nil, nil
	}
	f, err := os.Open(photoRef)
	if err != nil {
		return nil, fmt.Errorf("open avatar: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAvatarBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > maxAvatarBytes {
		return nil, fmt.Errorf("avatar %s exceeds %d bytes", photoRef, maxAvatarBytes)
	}
	return data, nil
}
