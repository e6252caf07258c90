package document

// Set is the delivered-identifier lookup built from State.Sent.
type Set map[string]struct{}

func NewSet(ids []string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Diff returns the items of listing whose URL is not in delivered, keeping
// listing order.
func Diff(listing []Item, delivered Set) []Item {
	out := make([]Item, 0, len(listing))
	for _, it := range listing {
		if delivered.Has(it.URL) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Reverse returns a reversed copy of items. Pages list newest first, so the
// reversed diff delivers the oldest new document first.
func Reverse(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}
