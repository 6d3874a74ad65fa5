// Package digest decides which users are owed a notification digest this
// cycle and advances their delivery watermark exactly once per confirmed send.
//
// A cycle runs TierIndex -> AnnouncementFanout -> PendingAggregator, then walks
// the pending set through the EligibilityEvaluator one user at a time. Content
// composition, transport and archival are collaborators supplied to the
// Orchestrator.
package digest
