// Package logging provides structured logging helpers for inboxsorter.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes sure user emails and OAuth tokens never reach the
// logs in clear text.
//
//	logger := logging.WithOperation(slog.Default(), "classify.execute")
//	logger.Info("message moved",
//	    logging.MessageID(id),
//	    logging.Rule(rule),
//	    logging.UserHash(session.Email))
package logging
