// Package alert periodically evaluates live dispatcher counters against
// configured thresholds and emails a consolidated summary when any rule
// trips. It is ambient operational tooling, carried regardless of which
// core features are in scope: a deployment without it would have no way
// to notice a sink degrading silently.
package alert

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jlab-daq/e2sar-framebuilder/internal/config"
	"github.com/jlab-daq/e2sar-framebuilder/internal/frame"
)

// StatsSource is the narrow read-only view the alerter needs from the
// dispatcher, so this package never has to import it.
type StatsSource interface {
	Stats() frame.Counters
}

// Alerter evaluates StatsSource counters on a ticker and notifies an
// operator when a rule's rate exceeds its threshold.
type Alerter struct {
	source   StatsSource
	rules    []config.AlertRule
	notifier Notifier
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	prev frame.Counters
}

// New constructs an Alerter from the configured check interval and
// rules. Returns an error if check_interval does not parse as a
// time.Duration.
func New(cfg config.AlertConfig, source StatsSource, notifier Notifier) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alert: %w", err)
	}
	return &Alerter{
		source:   source,
		rules:    cfg.Rules,
		notifier: notifier,
		interval: interval,
		stopChan: make(chan struct{}),
	}, nil
}

// Start runs the periodic evaluation loop until Stop is called.
func (a *Alerter) Start() {
	log.Println("alert: evaluator started")

	a.wg.Add(1)
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.evaluate()
		case <-a.stopChan:
			return
		}
	}
}

// Stop ends the evaluation loop and runs one final pass so a threshold
// tripped just before shutdown is not silently dropped.
func (a *Alerter) Stop() {
	close(a.stopChan)
	a.wg.Wait()
	a.evaluate()
}

func (a *Alerter) evaluate() {
	cur := a.source.Stats()
	defer func() { a.prev = cur }()

	var tripped []string
	for _, rule := range a.rules {
		value := rateFor(rule.Metric, a.prev, cur)
		if value > rule.Threshold {
			tripped = append(tripped, fmt.Sprintf("%s: %s = %.4f (threshold %.4f)", rule.Name, rule.Metric, value, rule.Threshold))
		}
	}

	if len(tripped) == 0 {
		return
	}

	log.Printf("alert: %d rule(s) tripped", len(tripped))
	if a.notifier == nil {
		return
	}

	body := "<h1>Frame Builder Alert Summary</h1><ul>"
	for _, msg := range tripped {
		body += "<li>" + msg + "</li>"
	}
	body += "</ul>"

	subject := fmt.Sprintf("Frame Builder Alert Summary (%d Triggered)", len(tripped))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Printf("alert: failed to send notification: %v", err)
	}
}

// rateFor computes the delta of the named counter since the previous
// sample, normalized against framesBuilt where that is the natural
// denominator.
func rateFor(metric string, prev, cur frame.Counters) float64 {
	framesDelta := float64(cur.FramesBuilt - prev.FramesBuilt)
	switch metric {
	case "encode_error_rate":
		return safeRate(float64(cur.EncodeErrors-prev.EncodeErrors), framesDelta)
	case "timestamp_slop_rate":
		return safeRate(float64(cur.TimestampErrors-prev.TimestampErrors), framesDelta)
	case "file_io_errors":
		return float64(cur.EncodeErrors - prev.EncodeErrors)
	default:
		return 0
	}
}

func safeRate(numerator, denominator float64) float64 {
	if denominator <= 0 {
		return 0
	}
	return numerator / denominator
}
