package domain

// SuggestionRecord is one persisted outcome of a reporting cycle.
// Corresponds to the suggestions table in PostgreSQL.
type SuggestionRecord struct {
	CycleTime  int64  // chain time the cycle evaluated, unix seconds
	QueryID    string // hex, empty when nothing was eligible
	QueryData  []byte
	TipAmount  string // decimal string of base units
	FeedCount  int    // feeds contributing to the tip
	Candidates int    // funded candidates considered
	CreatedAt  int64  // record creation timestamp (ms)
}

// Empty reports whether the cycle had no eligible candidate.
func (r *SuggestionRecord) Empty() bool {
	return r.QueryID == ""
}

// TipSnapshot is the reward available for one query at one cycle.
// Corresponds to the tip_snapshots table in ClickHouse.
type TipSnapshot struct {
	QueryID    string // hex
	QueryType  string
	CycleTime  int64 // unix seconds
	FeedTip    string
	OneTimeTip string
	Total      string
	FeedCount  int
}
