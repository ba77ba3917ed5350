package scanner

import (
	"io"
	"time"

	"github.com/PentesterFlow/OpenSQLi/internal/output"
)

// Option configures a Scanner.
type Option func(*Scanner) error

// WithConfig replaces the entire configuration.
func WithConfig(cfg *Config) Option {
	return func(s *Scanner) error {
		s.config = cfg
		return nil
	}
}

// WithSpec sets the API description URL or file path.
func WithSpec(spec string) Option {
	return func(s *Scanner) error {
		s.config.Spec = spec
		return nil
	}
}

// WithTarget overrides the base URL derived from the description.
func WithTarget(target string) Option {
	return func(s *Scanner) error {
		s.config.Target = target
		return nil
	}
}

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(s *Scanner) error {
		s.config.Workers = n
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) error {
		s.config.Timeout = d
		return nil
	}
}

// WithRetries sets the transport retry budget and backoff base.
func WithRetries(max int, backoff time.Duration) Option {
	return func(s *Scanner) error {
		s.config.MaxRetries = max
		s.config.RetryBackoff = backoff
		return nil
	}
}

// WithRateLimit sets the request rate limit.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(s *Scanner) error {
		s.config.RateLimit = RateLimitConfig{
			RequestsPerSecond: requestsPerSecond,
			Burst:             burst,
		}
		return nil
	}
}

// WithFlattenDepth bounds request body flattening.
func WithFlattenDepth(depth int) Option {
	return func(s *Scanner) error {
		s.config.FlattenDepth = depth
		return nil
	}
}

// WithTechniques restricts the scan to the named techniques.
func WithTechniques(techniques ...string) Option {
	return func(s *Scanner) error {
		s.config.Techniques = techniques
		return nil
	}
}

// WithPayloadFile merges a YAML payload file into the catalog.
func WithPayloadFile(path string) Option {
	return func(s *Scanner) error {
		s.config.PayloadFile = path
		return nil
	}
}

// WithHeader adds one header to every probe.
func WithHeader(name, value string) Option {
	return func(s *Scanner) error {
		if s.config.Headers == nil {
			s.config.Headers = make(map[string]string)
		}
		s.config.Headers[name] = value
		return nil
	}
}

// WithHeaders sets the headers attached to every probe.
func WithHeaders(headers map[string]string) Option {
	return func(s *Scanner) error {
		s.config.Headers = headers
		return nil
	}
}

// WithUserAgent sets the user agent.
func WithUserAgent(ua string) Option {
	return func(s *Scanner) error {
		s.config.UserAgent = ua
		return nil
	}
}

// WithInsecureTLS disables TLS certificate verification.
func WithInsecureTLS(skip bool) Option {
	return func(s *Scanner) error {
		s.config.SkipTLSVerify = skip
		return nil
	}
}

// WithProxy routes probes through an upstream proxy.
func WithProxy(proxyURL string) Option {
	return func(s *Scanner) error {
		s.config.Proxy = proxyURL
		return nil
	}
}

// WithOutputWriter directs report output to a writer instead of a file or
// stdout.
func WithOutputWriter(w io.Writer) Option {
	return func(s *Scanner) error {
		s.outputWriter = w
		return nil
	}
}

// WithOutputFormat sets the output format ("json" or "text").
func WithOutputFormat(format string) Option {
	return func(s *Scanner) error {
		s.config.Output.Format = format
		return nil
	}
}

// WithPrettyOutput toggles indented JSON.
func WithPrettyOutput(pretty bool) Option {
	return func(s *Scanner) error {
		s.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreaming emits findings as they are confirmed.
func WithStreaming(stream bool) Option {
	return func(s *Scanner) error {
		s.config.Output.Stream = stream
		return nil
	}
}

// WithOutputFile writes the report to a file.
func WithOutputFile(path string) Option {
	return func(s *Scanner) error {
		s.config.Output.FilePath = path
		return nil
	}
}

// WithHistory archives completed reports in a bbolt database.
func WithHistory(path string) Option {
	return func(s *Scanner) error {
		s.config.HistoryPath = path
		return nil
	}
}

// WithProgress shows a terminal progress bar.
func WithProgress(show bool) Option {
	return func(s *Scanner) error {
		s.showProgress = show
		return nil
	}
}

// WithFindingHandler registers a callback invoked for each confirmed or
// upgraded finding, from the aggregation goroutine.
func WithFindingHandler(fn func(output.Finding)) Option {
	return func(s *Scanner) error {
		s.onFinding = fn
		return nil
	}
}

// WithVerbose enables info-level logging.
func WithVerbose(verbose bool) Option {
	return func(s *Scanner) error {
		s.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug-level logging.
func WithDebug(debug bool) Option {
	return func(s *Scanner) error {
		s.config.Debug = debug
		return nil
	}
}
