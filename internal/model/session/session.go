package session

// Record links a user identity to their currently active document index.
// IndexPath stays empty until the user's first successful ingestion; a
// populated path that no longer loads is treated the same as no session.
type Record struct {
	UserID       string `json:"userId"`
	IndexPath    string `json:"indexPath"`
	DocumentName string `json:"documentName"`
}

// Collection is the full mapping of known sessions keyed by user identity.
// It is persisted as a whole; individual records are never written alone.
type Collection map[string]Record
