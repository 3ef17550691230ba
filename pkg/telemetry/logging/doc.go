// Package logging builds the process-wide slog logger and carries common
// log fields (policy, operation, actor, tick) through context.Context.
//
// Components never hold a logger of their own making; they derive one with
// slog.Default().With("component", "<package>.<sub>") after Setup has
// installed the configured handler.
package logging
