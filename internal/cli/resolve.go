package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tOgg1/dmail/internal/dmail"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// findPeer resolves query against peers: exact ID, then case-insensitive full
// name, then a unique ID or name prefix.
func findPeer(peers []dmail.Peer, query string) (dmail.Peer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return dmail.Peer{}, errors.New("peer name or ID required")
	}

	for _, p := range peers {
		if p.ID == query {
			return p, nil
		}
	}
	for _, p := range peers {
		if strings.EqualFold(p.FullName, query) {
			return p, nil
		}
	}

	matches := matchPeers(peers, query)
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return dmail.Peer{}, fmt.Errorf("peer %q not found", query)
	default:
		return dmail.Peer{}, fmt.Errorf("peer %q is ambiguous; matches: %s", query, formatPeerMatches(matches))
	}
}

func matchPeers(peers []dmail.Peer, query string) []dmail.Peer {
	needle := strings.ToLower(query)
	var matches []dmail.Peer
	for _, p := range peers {
		if strings.HasPrefix(strings.ToLower(p.ID), needle) || strings.HasPrefix(strings.ToLower(p.FullName), needle) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].FullName < matches[j].FullName
	})
	return matches
}

func formatPeerMatches(peers []dmail.Peer) string {
	return formatMatchList(len(peers), func(i int) string {
		return fmt.Sprintf("%s (%s)", peers[i].FullName, shortID(peers[i].ID))
	})
}

func formatMatchList(count int, format func(int) string) string {
	if count == 0 {
		return "none"
	}

	limit := count
	if limit > maxSuggestions {
		limit = maxSuggestions
	}

	parts := make([]string, 0, limit+1)
	for i := 0; i < limit; i++ {
		parts = append(parts, format(i))
	}
	if count > maxSuggestions {
		parts = append(parts, fmt.Sprintf("... and %d more", count-maxSuggestions))
	}

	return strings.Join(parts, ", ")
}
