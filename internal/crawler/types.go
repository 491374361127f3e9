// Package crawler defines core types shared across subsystems.
package crawler

// URLKind identifies which frontier a URL record belongs to.
type URLKind string

// Frontier kinds.
const (
	KindContent URLKind = "content"
	KindPicture URLKind = "picture"
)

// URLRecord is the visitation state of a single content or picture URL.
type URLRecord struct {
	Location string `json:"location"`
	Visited  bool   `json:"visited"`
	// Error is empty on success and holds a failure tag otherwise.
	Error string `json:"error,omitempty"`
}

// StoredPicture records a harvested image keyed by the hash of its raw bytes.
type StoredPicture struct {
	ContentHash  string `json:"content_hash"`
	SourceURL    string `json:"source_url"`
	RelativePath string `json:"relative_path"`
}

// Page is the result of navigating to a content URL.
type Page struct {
	// URL is the location the browser ended up on after redirects.
	URL  string
	HTML string
}

// EncodedImage is a re-encoded picture ready for the blob store.
type EncodedImage struct {
	Data        []byte
	ContentType string
	// Extension is the file extension to store the bytes under, without a dot.
	Extension string
}
