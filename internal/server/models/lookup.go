package models

// EnumValue is one entry of a server enumeration.
type EnumValue struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LookupItem is one entry of a named lookup list.
type LookupItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}
