// Package worker provides a NATS worker that runs queued narration jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/core"
	"github.com/book-expert/talktwin/internal/objectstore"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/workspace"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one narration job.
const DefaultJobTimeout = 30 * time.Minute

var (
	// ErrPDFKeyEmpty indicates a request without a document.
	ErrPDFKeyEmpty = errors.New("pdf key cannot be empty")
	// ErrVoiceEmpty indicates a request without a voice.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
)

// Narrator runs the base pass.
type Narrator interface {
	Base(ctx context.Context, req pipeline.BaseRequest) (*pipeline.BaseResult, error)
}

// NatsWorker listens for narration jobs on a NATS subject and answers each
// with a NarrationCompleted reply.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queue          string
	store          core.ObjectStore
	narrator       Narrator
	workspaceDir   string
	jobTimeout     time.Duration
	log            *logger.Logger
}

// Options configures a NatsWorker.
type Options struct {
	Subject      string
	QueueGroup   string
	WorkspaceDir string
	JobTimeout   time.Duration
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	opts Options,
	store core.ObjectStore,
	narrator Narrator,
	log *logger.Logger,
) (*NatsWorker, error) {
	if opts.Subject == "" {
		return nil, errors.New("worker subject cannot be empty")
	}

	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = os.TempDir()
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        opts.Subject,
		queue:          opts.QueueGroup,
		store:          store,
		narrator:       narrator,
		workspaceDir:   opts.WorkspaceDir,
		jobTimeout:     opts.JobTimeout,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.queue != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.subject, w.queue, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Narration worker listening on '%s'", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	request, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate narration request: %v", err)

		header := events.EventHeader{}
		if request != nil {
			header = request.Header
		}

		w.reply(msg, w.failed(header, err))

		return
	}

	reply, err := w.narrate(ctx, request)
	if err != nil {
		w.log.Error("Narration failed for workflow %s: %v", request.Header.WorkflowID, err)
		reply = w.failed(request.Header, err)
	}

	w.reply(msg, reply)
}

// narrate downloads the document, runs the base pass in a throwaway
// workspace and uploads the merged audio.
func (w *NatsWorker) narrate(ctx context.Context, request *NarrationRequested) (*NarrationCompleted, error) {
	document, err := w.store.Download(ctx, request.PDFKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download document for key '%s': %w", request.PDFKey, err)
	}

	ws, err := workspace.New(w.workspaceDir)
	if err != nil {
		return nil, err
	}

	defer func() {
		removeErr := ws.Remove()
		if removeErr != nil {
			w.log.Warn("Failed to remove job workspace: %v", removeErr)
		}
	}()

	name := request.Name
	if name == "" {
		name = request.PDFKey
	}

	result, err := w.narrator.Base(ctx, pipeline.BaseRequest{
		PDF:       document,
		Name:      name,
		Voice:     request.Voice,
		Workspace: ws,
	})
	if err != nil {
		return nil, err
	}

	audioData, err := os.ReadFile(result.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged audio: %w", err)
	}

	audioKey := objectstore.NewKey(request.Header.WorkflowID, result.Output)

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	gaps := make([]int, 0, len(result.Gaps))
	for _, gap := range result.Gaps {
		gaps = append(gaps, gap.Index)
	}

	w.log.Info("Workflow %s narrated into '%s' (%d chunks)", request.Header.WorkflowID, audioKey, len(result.Chunks))

	return &NarrationCompleted{
		Header:   w.replyHeader(request.Header),
		AudioKey: audioKey,
		Chunks:   len(result.Chunks),
		Gaps:     gaps,
	}, nil
}

func (w *NatsWorker) failed(header events.EventHeader, err error) *NarrationCompleted {
	return &NarrationCompleted{Header: w.replyHeader(header), Error: err.Error()}
}

func (w *NatsWorker) replyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}

// reply marshals and responds with the NarrationCompleted event.
func (w *NatsWorker) reply(msg *nats.Msg, reply *NarrationCompleted) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*NarrationRequested, error) {
	var request NarrationRequested

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if request.PDFKey == "" {
		return &request, ErrPDFKeyEmpty
	}

	if request.Voice == "" {
		return &request, ErrVoiceEmpty
	}

	return &request, nil
}
