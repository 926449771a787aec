package entity

// Metadata describes the page returned by a list call.
type Metadata struct {
	TotalCount int64 `json:"totalCount"`
	PageOffset int   `json:"pageOffset"`
	PageSize   int   `json:"pageSize"`
}

// Response is the envelope of a list call.
type Response[E any] struct {
	Records  []*E     `json:"records"`
	Metadata Metadata `json:"metadata"`
}
