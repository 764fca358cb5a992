package cart

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"brewbar/internal/domain"
)

// Line is one catalog item in the cart. Item.Price is the price captured
// when the item was first added.
type Line struct {
	Item           domain.CatalogItem `json:"item"`
	Quantity       int                `json:"quantity"`
	Customizations []string           `json:"customizations,omitempty"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.Item.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is a detached copy of the cart.
type Snapshot struct {
	Lines     []Line          `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
	// Version is the engine revision the snapshot was taken at.
	Version uint64 `json:"-"`
}

func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

// Engine owns the state of a single cart. ItemCount and Total are derived
// from the lines after every mutation and never patched incrementally.
type Engine struct {
	mu        sync.Mutex
	id        string
	lines     []Line
	itemCount int
	total     decimal.Decimal
	rev       uint64
}

func New() *Engine {
	return NewWithID(uuid.NewString())
}

// NewWithID builds an empty engine with a caller-chosen id, so the same cart
// keeps its identity across processes.
func NewWithID(id string) *Engine {
	return &Engine{id: id, total: decimal.Zero}
}

func (e *Engine) ID() string { return e.id }

// AddItem merges qty into the line for item.ID or appends a new line.
// Unavailable items and non-positive quantities leave the cart untouched.
func (e *Engine) AddItem(item domain.CatalogItem, qty int, customizations ...string) error {
	if !item.Available {
		return domain.ErrItemUnavailable
	}
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if i := e.indexOf(item.ID); i >= 0 {
		e.lines[i].Quantity += qty
		e.lines[i].Customizations = union(e.lines[i].Customizations, customizations)
	} else {
		e.lines = append(e.lines, Line{
			Item:           item,
			Quantity:       qty,
			Customizations: union(nil, customizations),
		})
	}
	e.recompute()
	return nil
}

// UpdateQuantity sets the quantity of an existing line; n <= 0 removes it.
// Unknown ids are ignored.
func (e *Engine) UpdateQuantity(itemID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(itemID)
	if i < 0 {
		return
	}
	if n <= 0 {
		e.removeAt(i)
	} else {
		e.lines[i].Quantity = n
	}
	e.recompute()
}

func (e *Engine) RemoveItem(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i := e.indexOf(itemID); i >= 0 {
		e.removeAt(i)
		e.recompute()
	}
}

func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	e.recompute()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Snapshot{ItemCount: e.itemCount, Total: e.total, Version: e.rev, Lines: make([]Line, len(e.lines))}
	for i, l := range e.lines {
		l.Customizations = append([]string(nil), l.Customizations...)
		out.Lines[i] = l
	}
	return out
}

// Subtract takes the quantities in s out of the cart, dropping lines that
// reach zero. Lines and quantities added after s was taken stay.
func (e *Engine) Subtract(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ordered := range s.Lines {
		i := e.indexOf(ordered.Item.ID)
		if i < 0 {
			continue
		}
		if e.lines[i].Quantity <= ordered.Quantity {
			e.removeAt(i)
			continue
		}
		e.lines[i].Quantity -= ordered.Quantity
	}
	e.recompute()
}

// Version counts mutations applied to the engine.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rev
}

// Restore replaces the cart contents with previously persisted lines.
// Non-positive quantities are dropped and repeated ids are merged.
func (e *Engine) Restore(lines []Line) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replace(lines)
}

// restoreAt restores lines only if the engine is still at version ver and
// returns the new version.
func (e *Engine) restoreAt(lines []Line, ver uint64) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rev != ver {
		return e.rev, false
	}
	e.replace(lines)
	return e.rev, true
}

func (e *Engine) replace(lines []Line) {
	e.lines = nil
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := e.indexOf(l.Item.ID); i >= 0 {
			e.lines[i].Quantity += l.Quantity
			e.lines[i].Customizations = union(e.lines[i].Customizations, l.Customizations)
			continue
		}
		l.Customizations = union(nil, l.Customizations)
		e.lines = append(e.lines, l)
	}
	e.recompute()
}

func (e *Engine) indexOf(itemID string) int {
	for i := range e.lines {
		if e.lines[i].Item.ID == itemID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeAt(i int) {
	e.lines = append(e.lines[:i:i], e.lines[i+1:]...)
}

func (e *Engine) recompute() {
	count := 0
	total := decimal.Zero
	for _, l := range e.lines {
		count += l.Quantity
		total = total.Add(l.Subtotal())
	}
	e.itemCount = count
	e.total = total
	e.rev++
}

// union appends the values of add missing from base, keeping first-seen order.
func union(base, add []string) []string {
	out := append([]string(nil), base...)
	for _, a := range add {
		if a == "" {
			continue
		}
		seen := false
		for _, b := range out {
			if a == b {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
