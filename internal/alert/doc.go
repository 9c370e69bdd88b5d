// Package alert defines the records tracked for fired calendar alerts.
//
// A Record is one alert instance for one calendar event occurrence. Its
// identity is the pair (EventID, InstanceStartTime), exposed as Key:
//   - Non-repeating events have at most one stored instance per EventID.
//   - Repeating events may store several instances that share an EventID.
//
// Display state moves Hidden → DisplayedCollapsed → DisplayedNormal, with
// SnoozedUntil acting as an independent axis. A record is "new" only while it
// is Hidden, not snoozed and not muted.
//
// DismissedRecord is the archived snapshot written when a record is dismissed
// with a DismissType whose ShouldKeep is true.
package alert
