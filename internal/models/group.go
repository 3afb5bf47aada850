package models

// Member is a participant in a group.
type Member struct {
	// ID identifies the member within its group (UUID unless supplied by the caller).
	ID string

	// Name is the display name (e.g., "Alice").
	Name string
}

// Group owns one ledger and one transaction log.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string

	// Currency is the ISO 4217 code every amount in this group is expressed in.
	Currency string

	// Members in insertion order. Order is for display only.
	Members []Member

	// CreatedAt is the Unix timestamp in milliseconds when the group was created.
	CreatedAt int64
}

// HasMember reports whether id is a current member of the group.
func (g *Group) HasMember(id string) bool {
	return g.MemberIndex(id) >= 0
}

// MemberIndex returns the position of id in Members, or -1.
func (g *Group) MemberIndex(id string) int {
	for i, m := range g.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// MemberIDs returns the member IDs in display order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = append([]Member(nil), g.Members...)
	return &c
}
