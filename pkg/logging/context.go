package logging

import (
	"log/slog"
)

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("snapshot")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithDatabase creates a logger scoped to one database of the catalog.
//
// Example:
//
//	log := logging.WithDatabase(db.ID(), db.Name())
//	log.Info("database opened", "open_count", n)
func WithDatabase(databaseID uint32, name string) *slog.Logger {
	return GetLogger().With("database_id", databaseID, "database", name)
}

// WithObject creates a logger carrying the identity of a schema object.
//
// Example:
//
//	log := logging.WithObject("area", area.ID(), area.Name())
//	log.Info("area dropped")
func WithObject(category string, objectID uint32, name string) *slog.Logger {
	return GetLogger().With("category", category, "object_id", objectID, "name", name)
}

// WithSession creates a logger with session context.
func WithSession(sessionID uint32) *slog.Logger {
	return GetLogger().With("session_id", sessionID)
}

// WithSnapshot creates a logger with object snapshot context.
func WithSnapshot(snapshotID uint64) *slog.Logger {
	return GetLogger().With("snapshot_id", snapshotID)
}

// WithTx creates a logger with transaction context.
func WithTx(txID uint64) *slog.Logger {
	return GetLogger().With("tx_id", txID)
}

// WithRecovery creates a logger tagged with the id of one recovery pass, so
// that every undo and redo line of the pass can be correlated.
func WithRecovery(passID string) *slog.Logger {
	return GetLogger().With("component", "recovery", "pass", passID)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("operation failed", "operation", "move area")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
