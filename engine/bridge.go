package engine

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

const SignatureHeader = "X-Signature"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidSignal    = errors.New("invalid completion signal")
)

// Signal is an inbound completion notice for an externally generated asset.
type Signal struct {
	Token      string
	Status     string
	URL        string
	ExternalID string
	Error      string
}

// Ack reports what a signal did. Unmatched and repeated signals are acknowledged
// without effect.
type Ack struct {
	Applied bool
	Reason  string
}

const (
	ReasonApplied          = "applied"
	ReasonUnknownToken     = "unknown token"
	ReasonAlreadyResolved  = "already resolved"
	ReasonPipelineTerminal = "pipeline terminal"
)

// VerifySignature checks the hex HMAC-SHA256 of body under secret. An empty
// secret disables the check. A "sha256=" prefix on the signature is accepted.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature VerifySignature expects for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Bridge matches completion signals to pending assets. It never advances a
// pipeline; follow-up work goes through the queue.
type Bridge struct {
	repo       repository.Repository
	dispatcher Dispatcher
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	audit      *auditor
	now        func() time.Time
}

func NewBridge(repo repository.Repository, dispatcher Dispatcher, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Bridge {
	return &Bridge{
		repo:       repo,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		audit:      &auditor{repo: repo, logger: logger, now: time.Now},
		now:        time.Now,
	}
}

func parseSignalStatus(s string) (pipeline.AssetStatus, bool) {
	switch strings.ToLower(s) {
	case "completed", "complete", "succeeded", "success", "done":
		return pipeline.AssetCompleted, true
	case "failed", "failure", "error", "cancelled", "canceled":
		return pipeline.AssetFailed, true
	}
	return "", false
}

// Complete applies a signal to the asset carrying its token and queues the
// follow-up job.
func (b *Bridge) Complete(ctx context.Context, sig Signal) (Ack, error) {
	status, ok := parseSignalStatus(sig.Status)
	if !ok {
		return Ack{}, fmt.Errorf("%w: unknown status %q", ErrInvalidSignal, sig.Status)
	}
	if sig.Token == "" {
		b.metrics.Signal("unknown")
		return Ack{Reason: ReasonUnknownToken}, nil
	}

	reason := ReasonApplied
	asset, err := b.repo.UpdateAssetByToken(ctx, sig.Token, func(a *pipeline.Asset, owner *pipeline.Pipeline) error {
		if a.Status != pipeline.AssetPending {
			reason = ReasonAlreadyResolved
			return pipeline.ErrNoChange
		}
		if owner == nil || owner.IsTerminal() {
			reason = ReasonPipelineTerminal
			return pipeline.ErrNoChange
		}
		now := b.now()
		a.Status = status
		a.CompletedAt = &now
		if sig.ExternalID != "" {
			a.ExternalID = sig.ExternalID
		}
		if status == pipeline.AssetCompleted {
			a.URL = sig.URL
		} else {
			a.Error = sig.Error
			if a.Error == "" {
				a.Error = "generation " + strings.ToLower(sig.Status)
			}
		}
		return nil
	})
	if errors.Is(err, pipeline.ErrAssetNotFound) {
		b.metrics.Signal("unknown")
		b.logger.Info("Ignoring signal for unknown token", zap.String("token", sig.Token))
		return Ack{Reason: ReasonUnknownToken}, nil
	}
	if err != nil {
		b.metrics.Signal("error")
		return Ack{}, err
	}
	if reason != ReasonApplied {
		b.metrics.Signal("ignored")
		b.logger.Info("Ignoring completion signal",
			zap.String("token", sig.Token),
			zap.String("pipeline_id", asset.PipelineID),
			zap.String("reason", reason),
		)
		return Ack{Reason: reason}, nil
	}

	b.metrics.Signal(string(status))
	err = b.dispatcher.SendJob(ctx, &kafka.JobMessage{
		Kind:       kafka.JobTaskCompleted,
		PipelineID: asset.PipelineID,
		StepID:     asset.StepID,
		Token:      asset.CorrelationToken,
		TraceID:    kafka.TraceIDFromContext(ctx),
	})
	if err != nil {
		return Ack{Applied: true, Reason: reason}, fmt.Errorf("queueing follow-up for %s: %w", sig.Token, err)
	}
	return Ack{Applied: true, Reason: reason}, nil
}

// FollowUp runs on the worker after a signal was applied: it records the
// outcome in the audit log and tells observers the asset is ready or failed.
func (b *Bridge) FollowUp(ctx context.Context, token string) error {
	asset, err := b.repo.GetAssetByToken(ctx, token)
	if err != nil {
		return err
	}

	event := notify.Event{
		PipelineID: asset.PipelineID,
		StepID:     asset.StepID,
		Status:     string(asset.Status),
	}
	data := map[string]any{
		"token": asset.CorrelationToken,
		"kind":  string(asset.Kind),
		"index": asset.Index,
	}

	switch asset.Status {
	case pipeline.AssetCompleted:
		data["url"] = asset.URL
		event.Type = notify.AssetReady
		event.Message = asset.URL
		b.audit.record(ctx, asset.PipelineID, asset.StepID, pipeline.LogResult, fmt.Sprintf("%s %d ready", asset.Kind, asset.Index), data)
	case pipeline.AssetFailed:
		data["error"] = asset.Error
		event.Type = notify.AssetFailed
		event.Message = asset.Error
		b.audit.record(ctx, asset.PipelineID, asset.StepID, pipeline.LogError, fmt.Sprintf("%s %d failed: %s", asset.Kind, asset.Index, asset.Error), data)
	default:
		return fmt.Errorf("asset %s is still %s", token, asset.Status)
	}

	sendEvent(ctx, b.notifier, b.logger, event)
	return nil
}
