package chat

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stage names the steps of [RunTurn] for instrumentation.
type Stage string

const (
	StageUpload Stage = "upload"
	StageCreate Stage = "create"
	StageAwait  Stage = "await"
	StageFetch  Stage = "fetch"
)

// StageFunc observes the duration and result of each turn stage.
type StageFunc func(stage Stage, d time.Duration, err error)

// Result is the outcome of a successful [RunTurn].
type Result struct {
	Session     Session
	ImageFileID string
	AudioFileID string
	Outcome     Outcome

	// Reply is the assistant's answer; HasReply is false when the backend
	// returned no text.
	Reply    string
	HasReply bool
}

// RunTurn executes one full round trip: media uploads (concurrently), turn
// creation, completion wait and reply fetch, strictly in that order. The
// first failing stage aborts the turn and its error is returned unchanged.
// onStage may be nil.
func RunTurn(ctx context.Context, c Client, t Turn, onStage StageFunc) (Result, error) {
	if onStage == nil {
		onStage = func(Stage, time.Duration, error) {}
	}
	var res Result

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	if t.Image != nil {
		img := *t.Image
		img.Kind = MediaImage
		g.Go(func() error {
			id, err := c.Upload(gctx, img)
			res.ImageFileID = id
			return err
		})
	}
	if t.Audio != nil {
		aud := *t.Audio
		aud.Kind = MediaAudio
		g.Go(func() error {
			id, err := c.Upload(gctx, aud)
			res.AudioFileID = id
			return err
		})
	}
	err := g.Wait()
	if t.Image != nil || t.Audio != nil {
		onStage(StageUpload, time.Since(start), err)
	}
	if err != nil {
		return Result{}, err
	}

	req := CreateRequest{
		BotID:       t.BotID,
		ImageFileID: res.ImageFileID,
		AudioFileID: res.AudioFileID,
		Prompt:      t.Prompt,
	}
	if t.Audio != nil {
		req.AudioFileType = AudioFileType(t.Audio.MIMEType)
	}

	start = time.Now()
	sess, err := c.CreateTurn(ctx, req)
	onStage(StageCreate, time.Since(start), err)
	if err != nil {
		return Result{}, err
	}
	res.Session = sess

	start = time.Now()
	out, err := c.AwaitCompletion(ctx, sess)
	onStage(StageAwait, time.Since(start), err)
	res.Outcome = out
	if err != nil {
		return res, err
	}

	start = time.Now()
	text, ok, err := c.FetchReplyText(ctx, sess)
	onStage(StageFetch, time.Since(start), err)
	if err != nil {
		return res, err
	}
	res.Reply, res.HasReply = text, ok
	return res, nil
}
