package models

import (
	"strconv"
	"time"
)

// EnumValue is one entry of a server enumeration such as BirthOutcome.
type EnumValue struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LookupItem is one entry of a dynamic lookup list (districts, facilities).
type LookupItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// CachedLookup is a lookup list as stored locally.
type CachedLookup struct {
	Name      string
	Items     []LookupItem
	FetchedAt time.Time
}

// EnumLookupName is the cache key under which an enumeration is stored.
func EnumLookupName(enum string) string {
	return "enum:" + enum
}

// EnumItems converts enumeration values into lookup items.
func EnumItems(values []EnumValue) []LookupItem {
	items := make([]LookupItem, 0, len(values))
	for _, v := range values {
		items = append(items, LookupItem{ID: strconv.Itoa(v.ID), Name: v.Name})
	}
	return items
}
