package notify

// QuietInput describes one alert in one notification pass.
type QuietInput struct {
	// Force marks a repost of notifications the user already has.
	Force bool
	// AlreadyDisplayed marks an alert that is on screen from a previous pass.
	AlreadyDisplayed bool
	QuietPeriodActive bool
	// IsPrimary marks the alert that triggered this pass.
	IsPrimary bool
	// MutePrimary is the policy of silencing the triggering alert during
	// quiet hours even when it is an alarm.
	MutePrimary bool
	IsAlarm     bool
	IsMuted     bool
}

// ShouldBeQuiet decides whether the notification for one alert is posted
// without sound.
func ShouldBeQuiet(in QuietInput) bool {
	var quiet bool
	switch {
	case in.Force:
		quiet = true
	case in.AlreadyDisplayed:
		quiet = true
	case in.QuietPeriodActive && in.IsPrimary:
		quiet = in.MutePrimary || !in.IsAlarm
	case in.QuietPeriodActive:
		quiet = true
	}
	return quiet || in.IsMuted
}

// ReminderOverride applies the reminder-pass rule: when a periodic
// reminder fires and alarms are present, a quiet conclusion becomes audible.
// Muted alerts stay quiet.
func ReminderOverride(quiet, reminderPass, hasAlarms, isMuted bool) bool {
	if quiet && reminderPass && hasAlarms && !isMuted {
		return false
	}
	return quiet
}
