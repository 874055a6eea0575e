package entity

type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Stats summarises the matches a user took part in.
type Stats struct {
	Total int64 `json:"total"`
	Wins  int64 `json:"wins"`
	Draws int64 `json:"draws"`
}

// MatchFilter narrows a count over the matches of UserID. Won and Draw are exclusive.
type MatchFilter struct {
	UserID string
	Won    bool
	Draw   bool
}
