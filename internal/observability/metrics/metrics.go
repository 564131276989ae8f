package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for the daemon's
// HTTP surface, the recorder loop, the upload queue, the workflow engine,
// and the reconciliation/recovery background passes. It coordinates
// concurrent writers via a RWMutex while exposing thread-safe gauges for
// active recordings and transcoder jobs.
type Recorder struct {
	mu                sync.RWMutex
	requestCount      map[requestLabel]uint64
	requestDuration   map[requestLabel]time.Duration
	recordingEvents   map[string]uint64
	componentValue    map[string]float64
	componentState    map[string]string
	activeRecordings  atomic.Int64
	workflowEvents    map[workflowLabel]uint64
	queueAttempts     map[string]uint64
	queueFailures     map[string]uint64
	transcoderEvents  map[TranscoderJobLabel]uint64
	activeTranscoder  atomic.Int64
	reconcileRuns     uint64
	reconcileFailures uint64
}

// TranscoderJobLabel identifies a transcoder job by kind (remux, concat,
// segment) and terminal status.
type TranscoderJobLabel struct {
	Kind   string
	Status string
}

type workflowLabel struct {
	step    string
	outcome string
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		recordingEvents:  make(map[string]uint64),
		componentValue:   make(map[string]float64),
		componentState:   make(map[string]string),
		workflowEvents:   make(map[workflowLabel]uint64),
		queueAttempts:    make(map[string]uint64),
		queueFailures:    make(map[string]uint64),
		transcoderEvents: make(map[TranscoderJobLabel]uint64),
	}
}

// Default returns the singleton Recorder instance shared across the daemon
// when a request-scoped recorder isn't wired in explicitly.
func Default() *Recorder {
	return defaultRecorder
}

// Registry holds the Recorder that NewRegistry installed as the default.
type Registry struct {
	Recorder *Recorder
}

// NewRegistry constructs a fresh Recorder, installs it as the default used
// by the package-level helpers, and returns it wrapped in a Registry.
func NewRegistry() *Registry {
	reg := &Registry{Recorder: New()}
	SetDefault(reg.Recorder)
	return reg
}

// SetDefault replaces the Recorder returned by Default; nil is ignored.
func SetDefault(r *Recorder) {
	if r != nil {
		defaultRecorder = r
	}
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// RecordingStarted records a recorder-loop start event and increments the
// active recording gauge.
func (r *Recorder) RecordingStarted() {
	r.incrementRecordingEvent("start")
	r.activeRecordings.Add(1)
}

// RecordingStopped records a recorder-loop stop event and decrements the
// active recording gauge, guarding against negative counts when concurrent
// updates race.
func (r *Recorder) RecordingStopped() {
	r.incrementRecordingEvent("stop")
	r.decrementGauge(&r.activeRecordings)
}

func (r *Recorder) incrementRecordingEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.recordingEvents[normalized]++
	r.mu.Unlock()
}

// ObserveWorkflowStep records one workflow phase's terminal outcome (e.g.
// step "CLIP", outcome "completed"/"failed").
func (r *Recorder) ObserveWorkflowStep(step, outcome string) {
	label := workflowLabel{step: normalizeName(step), outcome: normalizeName(outcome)}
	r.mu.Lock()
	r.workflowEvents[label]++
	r.mu.Unlock()
}

// ObserveQueueAttempt records an upload queue task pickup keyed by task
// outcome bucket (e.g. "submitted").
func (r *Recorder) ObserveQueueAttempt(bucket string) {
	b := normalizeName(bucket)
	r.mu.Lock()
	r.queueAttempts[b]++
	r.mu.Unlock()
}

// ObserveQueueFailure records a failed upload queue task, keyed the same way
// as ObserveQueueAttempt.
func (r *Recorder) ObserveQueueFailure(bucket string) {
	b := normalizeName(bucket)
	r.mu.Lock()
	r.queueFailures[b]++
	r.mu.Unlock()
}

// ObserveReconcileRun records one pass of the Remote Reconciliation Loop.
func (r *Recorder) ObserveReconcileRun(err error) {
	r.mu.Lock()
	r.reconcileRuns++
	if err != nil {
		r.reconcileFailures++
	}
	r.mu.Unlock()
}

// TranscoderJobStarted records the beginning of a transcoder job of the
// provided kind (e.g., "remux", "concat", "segment") and increments the
// active job gauge.
func (r *Recorder) TranscoderJobStarted(kind string) {
	r.recordTranscoderEvent(kind, "start")
	r.activeTranscoder.Add(1)
}

// TranscoderJobCompleted records the completion of a transcoder job and
// decrements the active job gauge.
func (r *Recorder) TranscoderJobCompleted(kind string) {
	r.recordTranscoderEvent(kind, "complete")
	r.decrementGauge(&r.activeTranscoder)
}

// TranscoderJobFailed records a failed transcoder job and decrements the
// active job gauge (without allowing it to go negative if the job never
// started).
func (r *Recorder) TranscoderJobFailed(kind string) {
	r.recordTranscoderEvent(kind, "fail")
	r.decrementGauge(&r.activeTranscoder)
}

func (r *Recorder) recordTranscoderEvent(kind, status string) {
	label := TranscoderJobLabel{Kind: normalizeName(kind), Status: normalizeName(status)}
	r.mu.Lock()
	r.transcoderEvents[label]++
	r.mu.Unlock()
}

// ActiveRecordings exposes the current gauge of concurrently running
// recorder loops.
func (r *Recorder) ActiveRecordings() int64 {
	return r.activeRecordings.Load()
}

// ActiveTranscoderJobs exposes the current number of active transcoder jobs
// tracked by the recorder.
func (r *Recorder) ActiveTranscoderJobs() int64 {
	return r.activeTranscoder.Load()
}

// SetComponentHealth normalizes a component name and maps a status string to
// a numeric health value for export (used for the store, credential
// provider, and remote API reachability).
func (r *Recorder) SetComponentHealth(component, status string) {
	normalizedComponent := normalizeName(component)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.componentValue[normalizedComponent] = value
	r.componentState[normalizedComponent] = normalizedStatus
	r.mu.Unlock()
}

// QueueCounts returns copies of upload queue attempt and failure counters for
// testing and reporting purposes.
func (r *Recorder) QueueCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.queueAttempts))
	for k, v := range r.queueAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.queueFailures))
	for k, v := range r.queueFailures {
		failures[k] = v
	}
	return attempts, failures
}

// TranscoderJobCounts returns copies of transcoder job event counters and the
// current active job gauge value.
func (r *Recorder) TranscoderJobCounts() (events map[TranscoderJobLabel]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[TranscoderJobLabel]uint64, len(r.transcoderEvents))
	for k, v := range r.transcoderEvents {
		events[k] = v
	}
	return events, r.activeTranscoder.Load()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.recordingEvents = make(map[string]uint64)
	r.componentValue = make(map[string]float64)
	r.componentState = make(map[string]string)
	r.workflowEvents = make(map[workflowLabel]uint64)
	r.queueAttempts = make(map[string]uint64)
	r.queueFailures = make(map[string]uint64)
	r.transcoderEvents = make(map[TranscoderJobLabel]uint64)
	r.activeRecordings.Store(0)
	r.activeTranscoder.Store(0)
	r.reconcileRuns = 0
	r.reconcileFailures = 0
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	recordingEvents := r.sortedKeys(r.recordingEvents)
	components := r.sortedKeys(r.componentValue)
	workflowLabels := r.sortedWorkflowLabels()
	queueBuckets := r.sortedQueueBuckets()
	transcoderEvents := r.sortedTranscoderJobLabels()

	fmt.Fprintln(w, "# HELP reactiond_http_requests_total Total number of HTTP requests processed by the daemon")
	fmt.Fprintln(w, "# TYPE reactiond_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "reactiond_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP reactiond_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE reactiond_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "reactiond_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP reactiond_recording_events_total Recorder loop lifecycle events by type")
	fmt.Fprintln(w, "# TYPE reactiond_recording_events_total counter")
	for _, event := range recordingEvents {
		fmt.Fprintf(w, "reactiond_recording_events_total{event=\"%s\"} %d\n", event, r.recordingEvents[event])
	}

	fmt.Fprintln(w, "# HELP reactiond_active_recordings Current number of running recorder loops")
	fmt.Fprintln(w, "# TYPE reactiond_active_recordings gauge")
	fmt.Fprintf(w, "reactiond_active_recordings %d\n", r.activeRecordings.Load())

	fmt.Fprintln(w, "# HELP reactiond_component_health Health status reported by daemon dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE reactiond_component_health gauge")
	for _, component := range components {
		fmt.Fprintf(w, "reactiond_component_health{component=\"%s\",status=\"%s\"} %f\n", component, r.componentState[component], r.componentValue[component])
	}

	fmt.Fprintln(w, "# HELP reactiond_workflow_steps_total Workflow phase completions by step and outcome")
	fmt.Fprintln(w, "# TYPE reactiond_workflow_steps_total counter")
	for _, label := range workflowLabels {
		fmt.Fprintf(w, "reactiond_workflow_steps_total{step=\"%s\",outcome=\"%s\"} %d\n", label.step, label.outcome, r.workflowEvents[label])
	}

	fmt.Fprintln(w, "# HELP reactiond_upload_queue_attempts_total Upload queue tasks picked up by outcome bucket")
	fmt.Fprintln(w, "# TYPE reactiond_upload_queue_attempts_total counter")
	for _, bucket := range queueBuckets {
		fmt.Fprintf(w, "reactiond_upload_queue_attempts_total{bucket=\"%s\"} %d\n", bucket, r.queueAttempts[bucket])
	}

	fmt.Fprintln(w, "# HELP reactiond_upload_queue_failures_total Upload queue task failures by outcome bucket")
	fmt.Fprintln(w, "# TYPE reactiond_upload_queue_failures_total counter")
	for _, bucket := range queueBuckets {
		fmt.Fprintf(w, "reactiond_upload_queue_failures_total{bucket=\"%s\"} %d\n", bucket, r.queueFailures[bucket])
	}

	fmt.Fprintln(w, "# HELP reactiond_transcoder_jobs_total Transcoder job events by kind and status")
	fmt.Fprintln(w, "# TYPE reactiond_transcoder_jobs_total counter")
	for _, label := range transcoderEvents {
		fmt.Fprintf(w, "reactiond_transcoder_jobs_total{kind=\"%s\",status=\"%s\"} %d\n", label.Kind, label.Status, r.transcoderEvents[label])
	}

	fmt.Fprintln(w, "# HELP reactiond_transcoder_active_jobs Current number of active transcoder jobs")
	fmt.Fprintln(w, "# TYPE reactiond_transcoder_active_jobs gauge")
	fmt.Fprintf(w, "reactiond_transcoder_active_jobs %d\n", r.activeTranscoder.Load())

	fmt.Fprintln(w, "# HELP reactiond_reconcile_runs_total Reconciliation loop passes executed")
	fmt.Fprintln(w, "# TYPE reactiond_reconcile_runs_total counter")
	fmt.Fprintf(w, "reactiond_reconcile_runs_total %d\n", r.reconcileRuns)

	fmt.Fprintln(w, "# HELP reactiond_reconcile_failures_total Reconciliation loop passes that returned an error")
	fmt.Fprintln(w, "# TYPE reactiond_reconcile_failures_total counter")
	fmt.Fprintf(w, "reactiond_reconcile_failures_total %d\n", r.reconcileFailures)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedKeys(m interface{}) []string {
	var keys []string
	switch typed := m.(type) {
	case map[string]uint64:
		keys = make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
	case map[string]float64:
		keys = make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedWorkflowLabels() []workflowLabel {
	labels := make([]workflowLabel, 0, len(r.workflowEvents))
	for label := range r.workflowEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].step != labels[j].step {
			return labels[i].step < labels[j].step
		}
		return labels[i].outcome < labels[j].outcome
	})
	return labels
}

func (r *Recorder) sortedQueueBuckets() []string {
	seen := make(map[string]struct{}, len(r.queueAttempts)+len(r.queueFailures))
	for b := range r.queueAttempts {
		seen[b] = struct{}{}
	}
	for b := range r.queueFailures {
		seen[b] = struct{}{}
	}
	buckets := make([]string, 0, len(seen))
	for b := range seen {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	return buckets
}

func (r *Recorder) sortedTranscoderJobLabels() []TranscoderJobLabel {
	labels := make([]TranscoderJobLabel, 0, len(r.transcoderEvents))
	for label := range r.transcoderEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// RecordingStarted increments counters on the default recorder.
func RecordingStarted() {
	defaultRecorder.RecordingStarted()
}

// RecordingStopped decrements active recordings on the default recorder.
func RecordingStopped() {
	defaultRecorder.RecordingStopped()
}

// SetComponentHealth updates component health on the default recorder.
func SetComponentHealth(component, status string) {
	defaultRecorder.SetComponentHealth(component, status)
}

// ObserveWorkflowStep records a workflow step outcome on the default recorder.
func ObserveWorkflowStep(step, outcome string) {
	defaultRecorder.ObserveWorkflowStep(step, outcome)
}

// ObserveQueueAttempt records an upload queue attempt on the default recorder.
func ObserveQueueAttempt(bucket string) {
	defaultRecorder.ObserveQueueAttempt(bucket)
}

// ObserveQueueFailure records an upload queue failure on the default recorder.
func ObserveQueueFailure(bucket string) {
	defaultRecorder.ObserveQueueFailure(bucket)
}

// ObserveReconcileRun records a reconciliation pass on the default recorder.
func ObserveReconcileRun(err error) {
	defaultRecorder.ObserveReconcileRun(err)
}

// TranscoderJobStarted records the start of a transcoder job on the default recorder.
func TranscoderJobStarted(kind string) {
	defaultRecorder.TranscoderJobStarted(kind)
}

// TranscoderJobCompleted records the completion of a transcoder job on the default recorder.
func TranscoderJobCompleted(kind string) {
	defaultRecorder.TranscoderJobCompleted(kind)
}

// TranscoderJobFailed records a failed transcoder job on the default recorder.
func TranscoderJobFailed(kind string) {
	defaultRecorder.TranscoderJobFailed(kind)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
