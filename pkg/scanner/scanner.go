// Package scanner drives SQL injection scans against OpenAPI-described
// services: it normalizes the description into endpoint templates, fans
// probe tasks out over a worker pool, and aggregates detector verdicts into
// findings.
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PentesterFlow/OpenSQLi/internal/dedup"
	"github.com/PentesterFlow/OpenSQLi/internal/detect"
	scanerrors "github.com/PentesterFlow/OpenSQLi/internal/errors"
	"github.com/PentesterFlow/OpenSQLi/internal/executor"
	"github.com/PentesterFlow/OpenSQLi/internal/history"
	"github.com/PentesterFlow/OpenSQLi/internal/logger"
	"github.com/PentesterFlow/OpenSQLi/internal/mutation"
	"github.com/PentesterFlow/OpenSQLi/internal/openapi"
	"github.com/PentesterFlow/OpenSQLi/internal/output"
	"github.com/PentesterFlow/OpenSQLi/internal/payloads"
	"github.com/PentesterFlow/OpenSQLi/internal/progress"
	"github.com/PentesterFlow/OpenSQLi/internal/ratelimit"
)

// Scanner is the scan orchestrator.
type Scanner struct {
	config *Config
	log    *logger.Logger

	loader     *openapi.Loader
	normalizer *openapi.Normalizer
	catalog    *payloads.Catalog
	engine     *mutation.Engine
	exec       *executor.Executor
	detector   *detect.Detector
	limiter    executor.RateLimiter
	seen       *dedup.Deduplicator

	writer       output.Writer
	outputWriter io.Writer
	onFinding    func(output.Finding)

	progress     *progress.Display
	showProgress bool

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Counters read by the progress reporter.
	probesTotal     atomic.Int64
	probesSent      atomic.Int64
	transportErrors atomic.Int64
	findingsCount   atomic.Int64

	// Per-template control requests, executed lazily exactly once.
	controlMu sync.Mutex
	controls  map[string]*controlSlot
}

// controlSlot holds a lazily executed baseline request.
type controlSlot struct {
	once   sync.Once
	result *executor.ProbeResult
}

// task is one unit of probe work. Boolean pairs travel as a single task so
// both legs are done before classification.
type task struct {
	tpl     openapi.EndpointTemplate
	param   openapi.ParameterSpec
	payload payloads.Payload
}

// outcome is what a worker hands the aggregator.
type outcome struct {
	finding *output.Finding
	errors  []output.ProbeError
}

// New creates a scanner with the given options.
func New(opts ...Option) (*Scanner, error) {
	s := &Scanner{
		config:   DefaultConfig(),
		controls: make(map[string]*controlSlot),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	logLevel := logger.WarnLevel
	if s.config.Debug {
		logLevel = logger.DebugLevel
	} else if s.config.Verbose {
		logLevel = logger.InfoLevel
	}
	s.log = logger.New(logger.Config{
		Level:     logLevel,
		Pretty:    true,
		Component: "scanner",
	})
	logger.SetGlobal(logger.New(logger.Config{Level: logLevel, Pretty: true}))

	return s, nil
}

// initialize sets up all scan components.
func (s *Scanner) initialize() error {
	s.normalizer = openapi.NewNormalizer()
	s.normalizer.FlattenDepth = s.config.FlattenDepth
	s.normalizer.IncludeDeprecated = s.config.IncludeDeprecated

	s.catalog = payloads.Default()
	if s.config.PayloadFile != "" {
		extra, err := payloads.LoadOverrides(s.config.PayloadFile)
		if err != nil {
			return scanerrors.NewConfigError(err.Error())
		}
		s.catalog = s.catalog.Merge(extra)
	}

	// A rate-limited scan adapts: the executor reports each outcome and
	// the limiter backs off when the target starts failing or throttling.
	if s.config.RateLimit.RequestsPerSecond > 0 {
		minRate := s.config.RateLimit.RequestsPerSecond / 4
		if minRate < 1 {
			minRate = 1
		}
		s.limiter = ratelimit.NewAdaptiveLimiter(minRate, s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
	} else {
		s.limiter = ratelimit.NewLimiter(0, s.config.RateLimit.Burst)
	}

	var err error
	s.exec, err = executor.New(executor.Policy{
		Timeout:       s.config.Timeout,
		MaxRetries:    s.config.MaxRetries,
		RetryBackoff:  s.config.RetryBackoff,
		ProbeDelay:    s.config.ProbeDelay,
		BodyLimit:     s.config.BodyLimit,
		UserAgent:     s.config.UserAgent,
		Headers:       s.config.Headers,
		SkipTLSVerify: s.config.SkipTLSVerify,
		ProxyURL:      s.config.Proxy,
	}, s.limiter)
	if err != nil {
		return err
	}

	s.detector = detect.New(detect.Config{
		BooleanDelta:  s.config.BooleanDelta,
		TimeTolerance: s.config.TimeTolerance,
	})

	s.loader = openapi.NewLoader(nil)

	// Output writer. A file sink still gets a human-readable summary on
	// stdout, fanned out through a MultiWriter.
	switch {
	case s.outputWriter != nil:
		s.writer = s.newWriter(s.outputWriter)
	case s.config.Output.FilePath != "":
		f, err := os.Create(s.config.Output.FilePath)
		if err != nil {
			return scanerrors.NewConfigError("failed to create output file: " + err.Error())
		}
		s.writer = output.NewMultiWriter(
			s.newWriter(f),
			output.NewTextWriter(os.Stdout, false),
		)
	default:
		s.writer = s.newWriter(os.Stdout)
	}

	return nil
}

// newWriter builds a writer for the configured format.
func (s *Scanner) newWriter(w io.Writer) output.Writer {
	if s.config.Output.Format == "text" {
		return output.NewTextWriter(w, s.config.Output.Stream)
	}
	return output.NewJSONWriter(w, s.config.Output.Pretty, s.config.Output.Stream)
}

// Start runs the scan to one of its terminal states. The returned Result is
// non-nil whenever the scan got far enough to have a target; fatal schema
// and configuration errors return early with only the error.
func (s *Scanner) Start(ctx context.Context) (*Result, error) {
	if s.running.Load() {
		return nil, fmt.Errorf("scanner is already running")
	}
	s.running.Store(true)
	defer s.running.Store(false)

	// Every run starts from empty state: zero counters and no cached
	// control responses from a previous invocation.
	s.probesTotal.Store(0)
	s.probesSent.Store(0)
	s.transportErrors.Store(0)
	s.findingsCount.Store(0)
	s.controlMu.Lock()
	s.controls = make(map[string]*controlSlot)
	s.controlMu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	if err := s.initialize(); err != nil {
		return nil, err
	}
	defer s.exec.Close()

	// Load and normalize the description.
	loaded, err := s.loader.Load(s.ctx, s.config.Spec)
	if err != nil {
		return nil, err
	}

	baseURL := s.config.Target
	if baseURL == "" {
		baseURL, err = loaded.Document.BaseURL(loaded.SourceURL)
		if err != nil {
			return nil, err
		}
	}
	s.engine = mutation.NewEngine(baseURL)

	templates, err := s.normalizer.Normalize(loaded.Document)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Normalized %d endpoint templates from %s", len(templates), s.config.Spec)

	result := &Result{
		Target:    baseURL,
		Spec:      s.config.Spec,
		StartedAt: time.Now(),
	}
	result.Stats.Endpoints = len(templates)

	if s.showProgress {
		s.progress = progress.New()
		s.progress.Start(baseURL)
	}

	// Preflight: a dead target aborts before any probes.
	if err := s.exec.Preflight(s.ctx, baseURL); err != nil {
		s.log.WithError(err).Error("Target base URL is unreachable")
		return s.finalize(result, StatusAborted)
	}

	tasks, paramCount := s.enumerate(templates)
	result.Stats.ParametersTried = paramCount
	s.log.Infof("Enumerated %d probe tasks across %d parameters", len(tasks), paramCount)

	taskCh := make(chan task)
	outcomeCh := make(chan outcome, s.config.Workers*2)

	// Single aggregation goroutine owns the findings map.
	var aggWg sync.WaitGroup
	findings := make(map[string]output.Finding)
	var probeErrors []output.ProbeError
	aggWg.Add(1)
	go func() {
		defer aggWg.Done()
		for o := range outcomeCh {
			for _, pe := range o.errors {
				probeErrors = append(probeErrors, pe)
				if s.writer != nil {
					s.writer.WriteError(&pe) //nolint:errcheck
				}
			}
			if o.finding == nil {
				continue
			}
			s.mergeFinding(findings, *o.finding)
		}
	}()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i, taskCh, outcomeCh)
	}

	if s.showProgress || s.config.Verbose {
		go s.statusReporter()
	}

	// Feed tasks until done or cancelled.
feed:
	for _, t := range tasks {
		select {
		case <-s.ctx.Done():
			break feed
		case taskCh <- t:
		}
	}
	close(taskCh)

	s.wg.Wait()
	close(outcomeCh)
	aggWg.Wait()

	for _, f := range findings {
		result.Findings = append(result.Findings, f)
	}
	result.Errors = probeErrors

	status := StatusCompleted
	switch {
	case s.ctx.Err() != nil:
		status = StatusCancelled
	case s.exec.Health().Unreachable():
		status = StatusAborted
	}

	return s.finalize(result, status)
}

// Stop cancels a running scan. In-flight probes complete; their findings
// are kept.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// finalize closes out the result, writes the report, and archives it.
func (s *Scanner) finalize(result *Result, status Status) (*Result, error) {
	result.Status = status
	result.CompletedAt = time.Now()
	result.Stats.ProbesSent = int(s.probesSent.Load())
	result.Stats.TransportErrors = int(s.transportErrors.Load())
	result.Stats.FindingCount = len(result.Findings)

	if s.progress != nil {
		s.progress.Stop()
		s.progress.PrintSummary(string(status))
	}

	report := result.Report()

	if s.writer != nil {
		if err := s.writer.WriteReport(report); err != nil {
			return result, fmt.Errorf("failed to write report: %w", err)
		}
		s.writer.Flush() //nolint:errcheck
	}

	if s.config.HistoryPath != "" {
		store, err := history.Open(s.config.HistoryPath)
		if err != nil {
			s.log.WithError(err).Warn("Cannot open history database")
		} else {
			if _, err := store.Save(report); err != nil {
				s.log.WithError(err).Warn("Cannot archive report")
			}
			store.Close()
		}
	}

	return result, nil
}

// enumerate builds the deduplicated task list and counts distinct
// parameters.
func (s *Scanner) enumerate(templates []openapi.EndpointTemplate) ([]task, int) {
	var tasks []task
	params := make(map[string]struct{})

	s.seen = dedup.New(len(templates) * 64)

	var totalProbes int64
	for _, tpl := range templates {
		for _, param := range tpl.Injectable() {
			for _, payload := range s.catalog.For(param.Type) {
				if !s.config.techniqueEnabled(payload.Technique) {
					continue
				}
				key := tpl.Key() + "\x00" + param.Key() + "\x00" + payload.Key()
				if !s.seen.AddIfNew(key) {
					continue
				}
				params[tpl.Key()+"\x00"+param.Key()] = struct{}{}
				tasks = append(tasks, task{tpl: tpl, param: param, payload: payload})
				if payload.Technique == payloads.TechniqueBoolean {
					totalProbes += 2
				} else {
					totalProbes++
				}
			}
		}
	}
	// One control request per template that has work.
	seenTpl := make(map[string]struct{})
	for _, t := range tasks {
		if _, ok := seenTpl[t.tpl.Key()]; !ok {
			seenTpl[t.tpl.Key()] = struct{}{}
			totalProbes++
		}
	}
	s.probesTotal.Store(totalProbes)

	return tasks, len(params)
}

// worker consumes tasks until the channel closes or the scan is cancelled.
func (s *Scanner) worker(id int, tasks <-chan task, outcomes chan<- outcome) {
	defer s.wg.Done()

	log := s.log.WithWorker(id)

	for t := range tasks {
		select {
		case <-s.ctx.Done():
			// Drain without sending new probes.
			continue
		default:
		}

		if s.exec.Health().Unreachable() {
			continue
		}

		o := s.process(t, log)
		outcomes <- o
	}
}

// process runs one task through mutation, execution and detection.
func (s *Scanner) process(t task, log *logger.Logger) outcome {
	var o outcome

	control := s.control(t.tpl)

	switch t.payload.Technique {
	case payloads.TechniqueBoolean:
		trueProbe, err := s.engine.Mutate(t.tpl, t.param, t.payload)
		if err != nil {
			s.logMutationSkip(log, t, err)
			return o
		}
		falseProbe, err := s.engine.Companion(t.tpl, t.param, t.payload)
		if err != nil {
			s.logMutationSkip(log, t, err)
			return o
		}

		trueRes := s.execute(trueProbe, &o)
		falseRes := s.execute(falseProbe, &o)

		verdict := s.detector.ClassifyPair(trueRes, falseRes, control)
		if verdict.Vulnerable {
			o.finding = s.buildFinding(t, verdict, trueRes)
		}

	case payloads.TechniqueTime:
		probe, err := s.engine.Mutate(t.tpl, t.param, t.payload)
		if err != nil {
			s.logMutationSkip(log, t, err)
			return o
		}

		res := s.execute(probe, &o)

		var baseline time.Duration
		if control != nil && !control.Failed() {
			baseline = control.Latency
		}
		verdict := s.detector.ClassifyTime(res, baseline)
		if verdict.Vulnerable {
			o.finding = s.buildFinding(t, verdict, res)
		}

	default: // error, union
		probe, err := s.engine.Mutate(t.tpl, t.param, t.payload)
		if err != nil {
			s.logMutationSkip(log, t, err)
			return o
		}

		res := s.execute(probe, &o)

		verdict := s.detector.Classify(res, control)
		if verdict.Vulnerable {
			o.finding = s.buildFinding(t, verdict, res)
		}
	}

	return o
}

// execute sends one probe and records counters and transport errors.
func (s *Scanner) execute(probe *mutation.ProbeRequest, o *outcome) *executor.ProbeResult {
	res := s.exec.Execute(s.ctx, probe)
	s.probesSent.Add(1)

	if res.Failed() {
		s.transportErrors.Add(1)
		o.errors = append(o.errors, output.ProbeError{
			Method:   probe.Method,
			URL:      probe.URL,
			Kind:     res.TransportError.Type.String(),
			Message:  res.TransportError.Message,
			Attempts: res.Attempts,
		})
	}
	return res
}

// control returns the template's baseline response, executing it at most
// once per scan.
func (s *Scanner) control(tpl openapi.EndpointTemplate) *executor.ProbeResult {
	s.controlMu.Lock()
	slot, ok := s.controls[tpl.Key()]
	if !ok {
		slot = &controlSlot{}
		s.controls[tpl.Key()] = slot
	}
	s.controlMu.Unlock()

	slot.once.Do(func() {
		probe, err := s.engine.Control(tpl)
		if err != nil {
			s.log.WithError(err).WithEndpoint(tpl.Method, tpl.Path).Debug("Control request not renderable")
			return
		}
		slot.result = s.exec.Execute(s.ctx, probe)
		s.probesSent.Add(1)
		if slot.result.Failed() {
			s.transportErrors.Add(1)
		}
	})

	return slot.result
}

// buildFinding converts a verdict into a report finding.
func (s *Scanner) buildFinding(t task, verdict detect.Verdict, res *executor.ProbeResult) *output.Finding {
	f := &output.Finding{
		Method:     t.tpl.Method,
		Path:       t.tpl.Path,
		Parameter:  t.param.Name,
		Location:   string(t.param.In),
		Technique:  string(verdict.Technique),
		Confidence: verdict.Confidence.String(),
		DBMS:       verdict.DBMS,
		Payload:    t.payload.Value,
		Evidence:   verdict.Evidence,
		Detail:     verdict.Detail,
		FoundAt:    time.Now(),
	}
	if res != nil && !res.Failed() {
		f.StatusCode = res.StatusCode
		f.Latency = res.Latency
	}
	return f
}

// mergeFinding applies the confidence replacement rule: a stronger verdict
// replaces a weaker one for the same injection point, ties keep the first.
// Runs only on the aggregation goroutine.
func (s *Scanner) mergeFinding(findings map[string]output.Finding, f output.Finding) {
	existing, ok := findings[f.Key()]
	if ok && confidenceRank(f.Confidence) <= confidenceRank(existing.Confidence) {
		return
	}

	findings[f.Key()] = f
	if !ok {
		s.findingsCount.Add(1)
	}

	s.log.FindingEvent(f.Method, f.Path, f.Parameter, f.Technique, f.Confidence)
	if s.writer != nil {
		s.writer.WriteFinding(&f) //nolint:errcheck
	}
	if s.onFinding != nil {
		s.onFinding(f)
	}
}

// confidenceRank orders confidence strings for the replacement rule.
func confidenceRank(c string) int {
	switch c {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

// logMutationSkip reports a skipped parameter. An unrenderable parameter is
// expected and logs at debug; anything else deserves a warning.
func (s *Scanner) logMutationSkip(log *logger.Logger, t task, err error) {
	entry := log.WithError(err).
		WithEndpoint(t.tpl.Method, t.tpl.Path).
		WithParameter(t.param.Name, string(t.param.In))
	if scanerrors.IsMutationError(err) {
		entry.Debug("Skipping parameter: probe not renderable")
		return
	}
	entry.Warn("Skipping parameter: unexpected mutation failure")
}

// statusReporter updates the progress display while the scan runs.
func (s *Scanner) statusReporter() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.progress != nil {
				s.progress.Update(
					int(s.probesTotal.Load()),
					int(s.probesSent.Load()),
					int(s.findingsCount.Load()),
					int(s.transportErrors.Load()),
				)
			}
		}
	}
}
