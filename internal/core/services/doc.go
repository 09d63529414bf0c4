// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - SessionStore: per-session index lifecycle under a keyed lock
//   - IngestService: stage, extract, chunk and merge a document
//   - AnswerService: retrieve passages and generate an answer
//   - SessionService: reset, bulk deletion, expiry and status
//   - Sweeper: scheduled expiry of idle sessions
//
// Services import no adapters; every dependency arrives through a port.
package services
