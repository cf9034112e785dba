package store

import "errors"

// Fehler-Taxonomie des PaperStore.
var (
	// ErrNotFound: id unbekannt oder bereits endgültig gelöscht.
	ErrNotFound = errors.New("store: paper not found")
	// ErrRelocationFailed: die Datei konnte nicht auf den neuen Pfad
	// verschoben werden; der Datensatz bleibt unverändert.
	ErrRelocationFailed = errors.New("store: file relocation failed")
	// ErrConflict: eine konkurrierende Mutation auf derselben id hält die
	// Sperre zu lange; der Aufrufer soll erneut versuchen.
	ErrConflict = errors.New("store: concurrent mutation in flight, retry")
	// ErrStorageUnavailable: Persistenz oder Objektspeicher nicht
	// erreichbar.
	ErrStorageUnavailable = errors.New("store: storage unavailable")
	// ErrLibraryImmutable: Approval-Übergänge sind auf Bibliotheks-Scans
	// nicht erlaubt, die sind dauerhaft approved.
	ErrLibraryImmutable = errors.New("store: library papers are always approved")
)
