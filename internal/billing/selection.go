package billing

import "github.com/shopspring/decimal"

// Selection is the ordered set of items the user has chosen to pay for in one
// checkout. Items are unique by Key.
type Selection struct {
	items []Item
	index map[Key]int
	total decimal.Decimal
}

// NewSelection returns a selection holding items, skipping duplicate keys.
func NewSelection(items ...Item) *Selection {
	s := &Selection{index: make(map[Key]int, len(items))}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add appends it unless an item with the same key is present. It reports
// whether the selection changed.
func (s *Selection) Add(it Item) bool {
	if s.index == nil {
		s.index = map[Key]int{}
	}
	if _, ok := s.index[it.Key()]; ok {
		return false
	}
	s.index[it.Key()] = len(s.items)
	s.items = append(s.items, it)
	s.recompute()
	return true
}

// Remove drops the item with key k and reports whether it was present.
func (s *Selection) Remove(k Key) bool {
	pos, ok := s.index[k]
	if !ok {
		return false
	}
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	delete(s.index, k)
	for i := pos; i < len(s.items); i++ {
		s.index[s.items[i].Key()] = i
	}
	s.recompute()
	return true
}

// Toggle adds it when absent and removes it when present, mirroring a
// checkbox in the invoice list. It reports whether the item is now selected.
func (s *Selection) Toggle(it Item) bool {
	if s.Remove(it.Key()) {
		return false
	}
	return s.Add(it)
}

// Contains reports whether an item with key k is selected.
func (s *Selection) Contains(k Key) bool {
	_, ok := s.index[k]
	return ok
}

// Items returns a copy of the selected items in insertion order.
func (s *Selection) Items() []Item {
	return append([]Item(nil), s.items...)
}

// Len returns the number of selected items.
func (s *Selection) Len() int { return len(s.items) }

// Total is the exact sum of unit amounts rounded to cents.
func (s *Selection) Total() decimal.Decimal { return s.total }

// recompute sums from scratch so add/remove never accumulates drift.
func (s *Selection) recompute() {
	sum := decimal.Zero
	for _, it := range s.items {
		sum = sum.Add(it.unitAmount)
	}
	s.total = sum.Round(2)
}
