// Package retention deletes audit events older than the configured retention
// period, either on demand or on a cron schedule.
package retention
