package events

// Event names form a closed catalog; emitting an unknown name or an
// unknown payload key is a programming error and is logged and dropped.
const (
	EventSearchStarted     = "search_started"
	EventSearchCompleted   = "search_completed"
	EventDownloadComplete  = "download_complete"
	EventUpgradeComplete   = "upgrade_complete"
	EventTranslateStarted  = "translate_started"
	EventTranslateComplete = "translate_complete"
	EventPipelineSkipped   = "pipeline_skipped"
	EventPipelineFailed    = "pipeline_failed"
	EventWantedScanDone    = "wanted_scan_done"
	EventQueueJobQueued    = "queue_job_queued"
	EventQueueJobDone      = "queue_job_done"
	EventWhisperProgress   = "whisper_progress"
	EventConfigUpdated     = "config_updated"
	EventHookExecuted      = "hook_executed"
)

// Catalog maps each event name to the payload keys it may carry.
var Catalog = map[string][]string{
	EventSearchStarted:     {"path", "language", "item_type"},
	EventSearchCompleted:   {"path", "language", "results", "elapsed_ms"},
	EventDownloadComplete:  {"path", "language", "provider", "subtitle_id", "score", "format"},
	EventUpgradeComplete:   {"path", "language", "provider", "old_score", "new_score"},
	EventTranslateStarted:  {"path", "source", "target", "backend"},
	EventTranslateComplete: {"path", "source", "target", "backend", "lines", "elapsed_ms"},
	EventPipelineSkipped:   {"path", "reason"},
	EventPipelineFailed:    {"path", "reason", "error"},
	EventWantedScanDone:    {"inserted", "updated", "total"},
	EventQueueJobQueued:    {"job_id", "path"},
	EventQueueJobDone:      {"job_id", "path", "status", "error"},
	EventWhisperProgress:   {"job_id", "path", "phase", "progress"},
	EventConfigUpdated:     {"key"},
	EventHookExecuted:      {"hook", "event", "exit_code", "duration_ms"},
}

// HookTriggers lists the events that may dispatch script hooks and
// webhooks. hook_executed is deliberately absent so hook execution can
// never trigger further hooks.
var HookTriggers = map[string]bool{
	EventSearchStarted:     true,
	EventSearchCompleted:   true,
	EventDownloadComplete:  true,
	EventUpgradeComplete:   true,
	EventTranslateStarted:  true,
	EventTranslateComplete: true,
	EventPipelineSkipped:   true,
	EventPipelineFailed:    true,
	EventWantedScanDone:    true,
	EventQueueJobQueued:    true,
	EventQueueJobDone:      true,
	EventWhisperProgress:   true,
	EventConfigUpdated:     true,
}
