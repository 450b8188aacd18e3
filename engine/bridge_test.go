package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaPipeline/kafka"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
)

// submitImages runs a manual video pipeline up to its images step and returns
// the pending assets it produced.
func submitImages(t *testing.T, h *harness) (*pipeline.Pipeline, []*pipeline.Asset) {
	t.Helper()
	ctx := context.Background()
	p := h.create(pipeline.TypeVideo, pipeline.ModeManual, nil)
	_, err := h.controls.Start(ctx, p.ID)
	require.NoError(t, err)
	_, err = h.exec.RunStep(ctx, p.ID, pipeline.StepScript, nil)
	require.NoError(t, err)
	_, err = h.exec.RunStep(ctx, p.ID, pipeline.StepImages, nil)
	require.NoError(t, err)

	assets, err := h.repo.ListAssets(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, assets, 3)
	for _, a := range assets {
		require.Equal(t, pipeline.AssetPending, a.Status)
		require.Equal(t, "dummy-"+a.CorrelationToken, a.ExternalID)
	}
	return p, assets
}

func TestCompleteAppliesSignalOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, assets := submitImages(t, h)
	token := assets[0].CorrelationToken

	sig := Signal{Token: token, Status: "completed", URL: "https://cdn.example/0.png"}
	ack, err := h.bridge.Complete(ctx, sig)
	require.NoError(t, err)
	assert.True(t, ack.Applied)

	first, err := h.repo.GetAssetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, pipeline.AssetCompleted, first.Status)
	assert.Equal(t, "https://cdn.example/0.png", first.URL)
	require.NotNil(t, first.CompletedAt)

	sig.URL = "https://cdn.example/other.png"
	ack, err = h.bridge.Complete(ctx, sig)
	require.NoError(t, err)
	assert.False(t, ack.Applied)
	assert.Equal(t, ReasonAlreadyResolved, ack.Reason)

	second, err := h.repo.GetAssetByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	jobs := h.disp.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, kafka.JobTaskCompleted, jobs[0].Kind)
	assert.Equal(t, p.ID, jobs[0].PipelineID)
	assert.Equal(t, token, jobs[0].Token)
}

func TestCompleteDoesNotAdvancePipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, assets := submitImages(t, h)
	before := h.get(p.ID)

	for _, a := range assets {
		_, err := h.bridge.Complete(ctx, Signal{Token: a.CorrelationToken, Status: "succeeded", URL: "u"})
		require.NoError(t, err)
	}
	after := h.get(p.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
	assert.Equal(t, pipeline.StepPending, after.StepsState[pipeline.StepThumbnail].Status)
}

func TestCompleteFailureStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, assets := submitImages(t, h)

	ack, err := h.bridge.Complete(ctx, Signal{Token: assets[1].CorrelationToken, Status: "failed", Error: "nsfw filter"})
	require.NoError(t, err)
	assert.True(t, ack.Applied)

	got, err := h.repo.GetAssetByToken(ctx, assets[1].CorrelationToken)
	require.NoError(t, err)
	assert.Equal(t, pipeline.AssetFailed, got.Status)
	assert.Equal(t, "nsfw filter", got.Error)
	assert.Empty(t, got.URL)
}

func TestCompleteAfterCancelIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, assets := submitImages(t, h)
	_, err := h.controls.Cancel(ctx, p.ID)
	require.NoError(t, err)

	ack, err := h.bridge.Complete(ctx, Signal{Token: assets[0].CorrelationToken, Status: "completed", URL: "u"})
	require.NoError(t, err)
	assert.False(t, ack.Applied)
	assert.Equal(t, ReasonPipelineTerminal, ack.Reason)

	got, err := h.repo.GetAssetByToken(ctx, assets[0].CorrelationToken)
	require.NoError(t, err)
	assert.Equal(t, pipeline.AssetPending, got.Status)
	assert.Empty(t, h.disp.Jobs())
}

func TestCompleteRejectsUnknownStatus(t *testing.T) {
	h := newHarness(t)
	_, err := h.bridge.Complete(context.Background(), Signal{Token: "t", Status: "processing"})
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestFollowUpRecordsAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, assets := submitImages(t, h)

	_, err := h.bridge.Complete(ctx, Signal{Token: assets[0].CorrelationToken, Status: "completed", URL: "https://cdn.example/0.png"})
	require.NoError(t, err)
	_, err = h.bridge.Complete(ctx, Signal{Token: assets[1].CorrelationToken, Status: "error"})
	require.NoError(t, err)
	require.Empty(t, h.work())

	ready := h.rec.OfType(notify.AssetReady)
	require.Len(t, ready, 1)
	assert.Equal(t, "https://cdn.example/0.png", ready[0].Message)
	assert.Equal(t, pipeline.StepImages, ready[0].StepID)
	assert.Len(t, h.rec.OfType(notify.AssetFailed), 1)

	logs, err := h.controls.Logs(ctx, p.ID)
	require.NoError(t, err)
	var results int
	for _, e := range logs {
		if e.Level == pipeline.LogResult && e.StepID == pipeline.StepImages && e.Data["url"] == "https://cdn.example/0.png" {
			results++
		}
	}
	assert.Equal(t, 1, results)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"token":"abc","status":"completed"}`)
	secret := "s3cret"
	good := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		signature string
		wantErr   bool
	}{
		{"valid", secret, good, false},
		{"valid with prefix", secret, "sha256=" + good, false},
		{"missing", secret, "", true},
		{"not hex", secret, "zzzz", true},
		{"wrong secret", "other", good, true},
		{"disabled", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(tt.secret, body, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, VerifySignature(secret, append(body, ' '), good), ErrInvalidSignature)
}
