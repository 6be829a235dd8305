package ingest

import "time"

// RawItem is a single result pushed by a scraping session. Only the fields the
// pipeline cares about are modelled; everything else stays with the scraper.
type RawItem struct {
	// Source is the identifier of the session that produced the item.
	Source string
	// ID is the source-assigned identifier of the item.
	ID string
	// DateTime is the local wall-clock time the item was published at,
	// formatted as DateTimeLayout.
	DateTime string
	// Timezone qualifies DateTime: an IANA name, "UTC", or a numeric offset.
	Timezone   string
	Text       string
	AuthorID   string
	AuthorName string
}

// DateTimeLayout is the wall-clock layout scrapers use for RawItem.DateTime.
const DateTimeLayout = "2006-01-02 15:04:05"

// WireRecord is the normalized record sent to the storage service.
type WireRecord struct {
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	RecordID  string    `json:"record_id"`
	// Lang is reserved for language enrichment and is always empty for now.
	Lang string `json:"lang"`
}

// StoreRequest is one message of the client-streaming store call.
type StoreRequest struct {
	Record WireRecord `json:"record"`
}

// StoreResponse is the single reply to a store stream.
type StoreResponse struct {
	RecordsReceived int64 `json:"records_received"`
	RecordsStored   int64 `json:"records_stored"`
}

// SessionConfig configures one scraping session.
type SessionConfig struct {
	Source string
	// Limit caps the number of items the session should produce; 0 means no cap.
	// Scrapers may round it, so callers must not rely on an exact count.
	Limit int
	Debug bool
}

// Entry is an adapted record together with the session that produced it.
type Entry struct {
	Source string
	Record WireRecord
}
