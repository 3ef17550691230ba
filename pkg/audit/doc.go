// Package audit defines the audit trail of policy triggers.
//
// Every call to a policy's Trigger or TriggerAttempt produces exactly one
// Event, delivered in call order to a Sink. The recorder subpackage provides
// an asynchronous Sink that preserves order, the storage subpackage persists
// events, and the retention subpackage prunes old events on a schedule.
//
// Events may carry a message template using ${name} placeholders. Prepare
// renders the template from the event's variables:
//
//	ev := &audit.Event{
//		PolicyID: "block_unlock",
//		Kind:     audit.KindAttempt,
//		Template: "${actor} tried to unlock the ${item}",
//		Vars:     map[string]string{"actor": "alice", "item": "collar"},
//	}
//	audit.Prepare(ev) // ev.Message == "alice tried to unlock the collar"
package audit
