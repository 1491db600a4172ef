// Package cmd defines and implements the CLI for the idprobe executable.
//
// Architecture overview:
//   - Template: the first argument is parsed into a probe.Template holding one inner and one outer placeholder
//     (configurable tokens, default {uid} and {qnum}). Candidates are formed by plain substitution.
//   - Driver & scheduler: probe.Driver walks outer keys START..probe.outer_end one at a time. For each key the
//     probe.Scheduler admits inner ids in increasing order under a sliding window of probe.concurrency tasks and
//     short-circuits on the first live URL. Admitted tasks are always awaited before the next key starts.
//   - Probing: probe.Prober applies courtesy jitter and a random User-Agent, paces per host through the
//     x/time/rate limiter, issues one GET through the Colly transport (redirects are never followed) and retries
//     429 responses with a linear backoff (15s, 30s, 45s by default).
//   - Discoveries: the first live URL per outer key passes a one-shot gate and is appended to the discovery log
//     (truncated at startup). When pubsub.project_id and pubsub.topic_name are set the same discovery is also
//     published to Pub/Sub; publish failures are logged and never stop the scan.
//   - Configuration & plumbing: Viper layers defaults, an optional config file, IDPROBE_* env vars and flags; zap
//     provides structured logging; progress events are batched by the progress Hub into Prometheus collectors, a
//     debug log and the status snapshot served on /v1/status.
//
// Operational notes:
//   - Cancellation: the first SIGINT/SIGTERM stops admission and lets in-flight probes finish; their results are
//     discarded. A second signal exits immediately with status 130.
//   - Observability: set --metrics-addr to expose /metrics, /healthz, /readyz and /v1/status for the lifetime of
//     the scan.
//
// Quick checklist:
//   - Run locally: go run . 'https://example.com/q/{qnum}/user/{uid}' 1 --concurrency 5
//   - Tune ranges with --inner-start, --inner-end and --outer-end, or IDPROBE_PROBE_* env vars.
package cmd
