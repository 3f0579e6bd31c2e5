package service

import "github.com/Wyydra/yasignal/internal/core/domain"

type nopMetrics struct{}

func (nopMetrics) ClientConnected()                {}
func (nopMetrics) ClientDisconnected()             {}
func (nopMetrics) MessageRouted(domain.SignalType) {}
func (nopMetrics) MessageDropped(string)           {}
func (nopMetrics) SessionPhase(domain.Phase)       {}
func (nopMetrics) ReadingIngested(bool)            {}
func (nopMetrics) TelemetryDropped(string)         {}

type nopSink struct{}

func (nopSink) Report(string, map[string]any) {}
