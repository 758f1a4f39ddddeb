// Package milestone implements activation follow-up messages: a time-based
// trigger that, on session establishment, checks whether a user's
// account-activation anniversary hits a milestone day and sends at most one
// congratulatory chat message per calendar day.
package milestone

import "time"

// sendDays are the day-counts after activation on which a follow-up goes
// out. The message catalog below is deliberately kept as a superset: product
// has not decided whether days 1, 3, and 30 should trigger, so their copy
// stays ready while the gate remains sparse.
var sendDays = map[int]bool{
	7:  true,
	14: true,
}

// catalog maps exact day-counts to follow-up copy.
var catalog = map[int]string{
	1:  "Welcome to Project Sage! 🎉 We're excited to have you on board. How are you finding the app so far?",
	3:  "Hi there! It's been 3 days since you joined us. Do you have any questions about using the app? We're here to help! 😊",
	7:  "A week has passed since you joined Project Sage! We hope you're enjoying the experience. Is there anything specific you'd like to know more about?",
	14: "Two weeks with Project Sage! 🌟 We'd love to hear your feedback. How has your experience been? Any suggestions for improvement?",
	30: "It's been a month since you joined us! 🎊 Thank you for being part of the Project Sage community. We value your participation and would love to hear about your journey so far.",
}

// fallbackMessage covers day-counts outside the catalog.
const fallbackMessage = "Thank you for being part of Project Sage! We're here if you need any assistance. 💙"

// DaysSince returns the number of whole days elapsed from activation to now.
func DaysSince(activation, now time.Time) int {
	return int(now.Sub(activation) / (24 * time.Hour))
}

// ShouldSend reports whether a follow-up is due: the activation date must be
// known and the whole-day distance to now must be a milestone day.
func ShouldSend(activation *time.Time, now time.Time) bool {
	if activation == nil {
		return false
	}
	return sendDays[DaysSince(*activation, now)]
}

// MessageFor selects the follow-up copy for the user's current day-count,
// falling back to a generic thank-you outside the catalog.
func MessageFor(activation, now time.Time) string {
	if msg, ok := catalog[DaysSince(activation, now)]; ok {
		return msg
	}
	return fallbackMessage
}
