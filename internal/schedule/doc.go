// Package schedule stores weekly heating schedules and tracks their
// delivery to devices.
//
// A schedule is exactly Length hourly set-points starting Monday 00:00.
// Each value is Unset or between MinSetpoint and MaxSetpoint. Re-sending a
// schedule is safe; the reconciliation loop re-sends any schedule whose
// last confirmed broadcast is older than its interval.
package schedule
