// Package electionengine implements the course election and ballot engine
// inside the enrollment context.
//
// The module owns the election record state machine (enroll, willingpoint
// edit, withdraw, drop), the willingpoint/credit budget and time-conflict
// validators that gate every mutation, the per-student lock discipline that
// keeps validation and mutation atomic, and the scheduled fair-ballot batch
// that resolves oversubscribed courses and notifies students. It keeps
// business rules in application/domain layers and isolates infrastructure
// concerns behind ports and adapters.
package electionengine
