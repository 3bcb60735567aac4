package services

import "errors"

// Fehler-Taxonomie des Kerns. Aufrufer unterscheiden die Fälle über
// errors.Is; Handler mappen sie auf HTTP-Status und entscheiden, ob
// Details nach außen sichtbar sein dürfen (Moderator ja, Public nein).
var (
	// ErrNotFound: Artikel/Redirect/Edit nicht vorhanden. Wird dem
	// Aufrufer gemeldet, aber nicht als Fehler geloggt.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited: Submission oder Suche gedrosselt. Wird mit einer
	// Nutzer-Meldung beantwortet, nie automatisch wiederholt.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamUnreachable: Listing-/Fatal-Fehler beim Sync; der Lauf
	// bricht ab, der Checkpoint bleibt stehen.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrStorage: Blob-Schreibfehler innerhalb einer transaktionalen
	// Mutation; führt zum Rollback.
	ErrStorage = errors.New("storage error")

	// ErrSyncRunning: pro Quelle läuft höchstens ein Sync gleichzeitig.
	ErrSyncRunning = errors.New("sync already running for source")

	// ErrAlreadyReviewed: Review eines nicht mehr offenen Edits.
	ErrAlreadyReviewed = errors.New("pending edit already reviewed")
)
