package audit

import "time"

// TimelineFilters narrows the audit timeline. From and To are inclusive days.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Module   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit record joined with the actor's username.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id"`
	Actor    string         `json:"actor,omitempty"`
	Module   string         `json:"module"`
	Action   string         `json:"action"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes a keyless page window.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
