package dmail

// directory caches the peer list and the current selection.
type directory struct {
	peers    []Peer
	byID     map[string]int
	selected *Peer
}

func newDirectory() *directory {
	return &directory{byID: make(map[string]int)}
}

func (d *directory) replace(peers []Peer) {
	d.peers = clonePeers(peers)
	d.byID = make(map[string]int, len(peers))
	for i, p := range d.peers {
		d.byID[normalizeID(p.ID)] = i
	}
}

func (d *directory) lookup(id string) (Peer, bool) {
	idx, ok := d.byID[normalizeID(id)]
	if !ok {
		return Peer{}, false
	}
	return d.peers[idx], true
}

func (d *directory) ids() map[string]struct{} {
	out := make(map[string]struct{}, len(d.peers))
	for _, p := range d.peers {
		out[normalizeID(p.ID)] = struct{}{}
	}
	return out
}

func (d *directory) selectedID() string {
	if d.selected == nil {
		return ""
	}
	return normalizeID(d.selected.ID)
}

func (d *directory) isSelected(id string) bool {
	id = normalizeID(id)
	return id != "" && d.selectedID() == id
}
