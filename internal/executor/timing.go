package executor

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/ethanadams/solarnet-synthetics/internal/metrics"
)

// httpTimingTracer captures detailed HTTP timing using httptrace. Hooks can
// fire from transport goroutines, so fields are guarded.
type httpTimingTracer struct {
	mu            sync.Mutex
	start         time.Time
	dnsStart      time.Time
	dnsDone       time.Time
	connectStart  time.Time
	connectDone   time.Time
	tlsStart      time.Time
	tlsDone       time.Time
	wroteRequest  time.Time
	firstByteTime time.Time
}

func newHTTPTimingTracer() *httpTimingTracer {
	return &httpTimingTracer{start: time.Now()}
}

func (t *httpTimingTracer) mark(field *time.Time) {
	t.mu.Lock()
	*field = time.Now()
	t.mu.Unlock()
}

func (t *httpTimingTracer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { t.mark(&t.dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { t.mark(&t.dnsDone) },
		ConnectStart:         func(_, _ string) { t.mark(&t.connectStart) },
		ConnectDone:          func(_, _ string, _ error) { t.mark(&t.connectDone) },
		TLSHandshakeStart:    func() { t.mark(&t.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.mark(&t.tlsDone) },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.mark(&t.wroteRequest) },
		GotFirstResponseByte: func() { t.mark(&t.firstByteTime) },
	}
}

func (t *httpTimingTracer) toMetrics(transferDone time.Time) metrics.HTTPTimings {
	t.mu.Lock()
	defer t.mu.Unlock()

	timings := metrics.HTTPTimings{
		Total: transferDone.Sub(t.start),
	}
	if !t.dnsStart.IsZero() && !t.dnsDone.IsZero() {
		timings.DNSLookup = t.dnsDone.Sub(t.dnsStart)
	}
	if !t.connectStart.IsZero() && !t.connectDone.IsZero() {
		timings.TCPConnect = t.connectDone.Sub(t.connectStart)
	}
	if !t.tlsStart.IsZero() && !t.tlsDone.IsZero() {
		timings.TLSHandshake = t.tlsDone.Sub(t.tlsStart)
	}
	if !t.wroteRequest.IsZero() && !t.firstByteTime.IsZero() {
		timings.TTFB = t.firstByteTime.Sub(t.wroteRequest)
	}
	if !t.firstByteTime.IsZero() {
		timings.Transfer = transferDone.Sub(t.firstByteTime)
	}
	return timings
}
