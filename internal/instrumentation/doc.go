// Package instrumentation wires OpenTelemetry metrics and tracing for
// meetmate.
//
// Metrics (exported through Prometheus by default):
//   - conversation_turns_total, conversation_turn_duration_seconds
//   - agent_requests_total, agent_request_duration_seconds
//   - tool_invocations_total, tool_duration_seconds
//   - google_api_operations_total, google_api_operation_duration_seconds
//   - oauth_token_refresh_total
//   - reminders_sent_total{tier,result}, reminder_sweep_duration_seconds,
//     reminder_sweeps_skipped_total
//   - inbound_messages_total{result}
//   - http_requests_total, http_request_duration_seconds
//
// Spans: conversation.turn, agent.complete, tool.<name>,
// google.<service>.<operation>, credentials.acquire and reminder.sweep.
//
// Configuration comes from the environment (see DefaultConfig):
// INSTRUMENTATION_ENABLED, METRICS_EXPORTER, TRACING_EXPORTER,
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME.
//
// A zero or nil *Metrics is a valid no-op recorder, so components can take
// one unconditionally.
package instrumentation
