// Package model holds the data types shared by the store, the dispatcher,
// the conversation orchestrator and the reminder scheduler.
package model
