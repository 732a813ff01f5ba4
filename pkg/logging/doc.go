// Package logging holds the slog logger shared by the catalog packages.
//
// Init configures it once at startup; commands that never call Init get
// an INFO-level text logger on stderr the first time GetLogger runs.
//
//	if err := logging.Init(logging.Config{Level: logging.LevelWarn, Format: "json"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
// Code that logs about one catalog object takes a child logger carrying
// its identity instead of repeating the fields at every call:
//
//	log := logging.WithDatabase(id, name)
//	log.Warn("database quarantined", "error", err)
//
// WithObject adds category, object_id and name; WithRecovery tags the
// records of one recovery pass.
package logging
