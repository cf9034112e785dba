// Package storage abstrahiert die Ablage der Paper-Dateien. Der Store
// behandelt sie als einfachen Put/Move/Delete-Objektspeicher ohne
// Versionierung; adressiert wird ausschließlich über Resolver-Pfade.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable signalisiert, dass das Backend nicht erreichbar ist oder
// eine Operation abgelehnt hat.
var ErrUnavailable = errors.New("object storage unavailable")

// ObjectStore ist die vom PaperStore benutzte Schnittstelle.
type ObjectStore interface {
	// Put legt ein Objekt unter dem Schlüssel ab und überschreibt
	// Vorhandenes.
	Put(ctx context.Context, key string, data []byte) error
	// Move verschiebt ein Objekt atomar auf einen neuen Schlüssel.
	Move(ctx context.Context, oldKey, newKey string) error
	// Delete entfernt ein Objekt. Ein fehlendes Objekt ist kein Fehler.
	Delete(ctx context.Context, key string) error
}
