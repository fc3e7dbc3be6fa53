// Package events defines the domain events carried on the event bus.
//
// Available event types:
//   - UsageStartedEvent: a usage session began
//   - UsageEndedEvent: a usage session finished
//   - UsageTakenOverEvent: a session moved directly from one user to another
//   - DeliveryEvent: outcome of one outbound notification attempt
package events
