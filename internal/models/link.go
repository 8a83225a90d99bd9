package models

import "time"

// Link relation types.
const (
	LinkRelated   = "related"
	LinkFollowup  = "followup"
	LinkReference = "reference"
)

// ValidLinkType reports whether t is a known link relation.
func ValidLinkType(t string) bool {
	return t == LinkRelated || t == LinkFollowup || t == LinkReference
}

// EntryLink is a directed, typed edge between two entries. Links are never
// created automatically; they only come in through the HTTP facade.
type EntryLink struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	SourceID  string    `gorm:"not null;index;uniqueIndex:idx_link_edge" json:"sourceId"`
	TargetID  string    `gorm:"not null;index;uniqueIndex:idx_link_edge" json:"targetId"`
	Type      string    `gorm:"not null;uniqueIndex:idx_link_edge" json:"type"`
}
