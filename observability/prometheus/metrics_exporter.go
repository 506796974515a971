package prometheus

import (
	"errors"
	"fmt"

	"spool/kernel"

	prom "github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter adapts kernel.Metrics to Prometheus collectors.
type MetricsExporter struct {
	runtime string

	switchesTotal *prom.CounterVec
	messagesTotal *prom.CounterVec
	faultsTotal   *prom.CounterVec
	readyDepth    *prom.GaugeVec
	threadsLive   *prom.GaugeVec
}

var _ kernel.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers collectors for one runtime. Every
// series carries the runtime label, normally the scheduler instance id.
// Collectors already registered under the same names are reused, so several
// runtimes can share a registry.
func NewMetricsExporter(namespace, runtime string, reg prom.Registerer) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "spool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	switchesVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "context_switches_total",
		Help:      "Total number of context transfers by kind.",
	}, []string{"runtime", "kind"})
	messagesVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Total number of direct messages sent.",
	}, []string{"runtime", "mode"})
	faultsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "faults_total",
		Help:      "Total number of faults by kind: starvation and panic reach the fault handler, starvation_returned is reported to the caller.",
	}, []string{"runtime", "kind"})
	readyVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "ready_queue_depth",
		Help:      "Current ready queue length.",
	}, []string{"runtime"})
	threadsVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "threads_live",
		Help:      "Current number of live threads, host included.",
	}, []string{"runtime"})

	var err error
	if switchesVec, err = registerCollector(reg, switchesVec); err != nil {
		return nil, err
	}
	if messagesVec, err = registerCollector(reg, messagesVec); err != nil {
		return nil, err
	}
	if faultsVec, err = registerCollector(reg, faultsVec); err != nil {
		return nil, err
	}
	if readyVec, err = registerCollector(reg, readyVec); err != nil {
		return nil, err
	}
	if threadsVec, err = registerCollector(reg, threadsVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		runtime:       normalizeLabel(runtime, "default"),
		switchesTotal: switchesVec,
		messagesTotal: messagesVec,
		faultsTotal:   faultsVec,
		readyDepth:    readyVec,
		threadsLive:   threadsVec,
	}, nil
}

// RecordSwitch counts one context transfer.
func (m *MetricsExporter) RecordSwitch(kind kernel.SwitchKind) {
	if m == nil {
		return
	}
	m.switchesTotal.WithLabelValues(m.runtime, kind.String()).Inc()
}

// RecordReadyDepth records the ready queue length.
func (m *MetricsExporter) RecordReadyDepth(depth int) {
	if m == nil {
		return
	}
	m.readyDepth.WithLabelValues(m.runtime).Set(float64(depth))
}

// RecordThreads records the number of live threads.
func (m *MetricsExporter) RecordThreads(live int) {
	if m == nil {
		return
	}
	m.threadsLive.WithLabelValues(m.runtime).Set(float64(live))
}

// RecordMessage counts one direct message.
func (m *MetricsExporter) RecordMessage(rendezvous bool) {
	if m == nil {
		return
	}
	mode := "async"
	if rendezvous {
		mode = "rendezvous"
	}
	m.messagesTotal.WithLabelValues(m.runtime, mode).Inc()
}

// RecordFault counts one fault.
func (m *MetricsExporter) RecordFault(kind string) {
	if m == nil {
		return
	}
	m.faultsTotal.WithLabelValues(m.runtime, normalizeLabel(kind, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
