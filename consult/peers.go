package consult

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/specialists/specialist"
)

// Peer is a specialist known through an advertisement, possibly held by
// another node. Serving reports whether Node answers consultation requests.
type Peer struct {
	ID             string
	Pillar         specialist.Pillar
	Domain         string
	Specialization string
	Keywords       []string
	Expertise      float64
	Temperature    float64
	Node           string
	Serving        bool
	Seen           time.Time
}

// Specialist returns the record used to rank and address the peer.
func (p Peer) Specialist() *specialist.Specialist {
	return &specialist.Specialist{
		ID:             p.ID,
		Label:          p.Specialization,
		Pillar:         p.Pillar,
		Domain:         p.Domain,
		Specialization: p.Specialization,
		Keywords:       slices.Clone(p.Keywords),
		Temperature:    p.Temperature,
		ExpertiseLevel: p.Expertise,
		Active:         true,
	}
}

// Directory tracks advertised peers by id.
type Directory struct {
	mu    sync.RWMutex
	peers map[string]Peer
	nodes map[string]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		peers: make(map[string]Peer),
		nodes: make(map[string]struct{}),
	}
}

// Put records or refreshes p. It reports whether p is the first peer seen
// from its node.
func (d *Directory) Put(p Peer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p.ID] = p
	if _, ok := d.nodes[p.Node]; ok {
		return false
	}
	d.nodes[p.Node] = struct{}{}
	return true
}

func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

func (d *Directory) Get(id string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	return p, ok
}

// List returns every peer ordered by id.
func (d *Directory) List() []Peer {
	d.mu.RLock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	d.mu.RUnlock()
	slices.SortFunc(out, func(a, b Peer) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
