package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/book-expert/talktwin/internal/pdftext"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/book-expert/talktwin/internal/tts/ttsutils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	localSession = "session"

	formPDF    = "pdf"
	formVoice  = "voice"
	formSample = "sample"
)

var (
	ErrNotPDF       = errors.New("uploaded document must be a PDF")
	ErrSampleNotWAV = errors.New("voice sample must be a WAV file")
)

// voiceView is a catalog entry as rendered by the API.
type voiceView struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Backend     string `json:"backend"`
	Label       string `json:"label"`
	Default     bool   `json:"default"`
}

type passState struct {
	Voice    string `json:"voice,omitempty"`
	Chunks   int    `json:"chunks"`
	Gaps     int    `json:"gaps"`
	Duration string `json:"duration"`
}

type sessionState struct {
	ID     string     `json:"id"`
	Busy   bool       `json:"busy"`
	Base   *passState `json:"base,omitempty"`
	Cloned *passState `json:"cloned,omitempty"`
}

// passResponse reports a finished pass.
type passResponse struct {
	Pass     pipeline.Pass  `json:"pass"`
	Chunks   int            `json:"chunks"`
	Gaps     []pipeline.Gap `json:"gaps,omitempty"`
	Duration string         `json:"duration"`
	Size     string         `json:"size"`
	Audio    string         `json:"audio"`
	Download string         `json:"download"`
}

// errorResponse is the body of every failed request. Chunk is set when a
// pass failed on a specific chunk.
type errorResponse struct {
	Error string `json:"error"`
	Chunk *int   `json:"chunk,omitempty"`
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")

	return c.Send(s.page)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.sessions.count(),
	})
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	voices := s.narrator.Catalog().Voices()
	views := make([]voiceView, 0, len(voices))

	for _, voice := range voices {
		views = append(views, voiceView{
			ID:          voice.ID,
			Description: voice.Description,
			Backend:     string(voice.Backend),
			Label:       tts.Label(voice),
			Default:     voice.ID == tts.DefaultVoiceID,
		})
	}

	return c.JSON(views)
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess, err := s.sessions.create()
	if err != nil {
		return err
	}

	s.log.Info("Session %s created", sess.workspace.ID())

	return c.Status(fiber.StatusCreated).JSON(sess.state())
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(sess.state())
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")

	err := s.sessions.remove(id)
	if err != nil {
		return err
	}

	s.log.Info("Session %s removed", id)

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleBase(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	header, err := c.FormFile(formPDF)
	if err != nil {
		return pipeline.ErrNoDocument
	}

	if !ttsutils.IsPDFFile(header.Filename) {
		return fmt.Errorf("%w: %s", ErrNotPDF, header.Filename)
	}

	document, err := readUpload(header)
	if err != nil {
		return err
	}

	if !sess.acquire() {
		return ErrSessionBusy
	}
	defer sess.release()

	result, err := s.narrator.Base(c.UserContext(), pipeline.BaseRequest{
		PDF:       document,
		Name:      header.Filename,
		Voice:     c.FormValue(formVoice),
		Workspace: sess.workspace,
		Progress:  sess.publish,
	})
	if err != nil {
		sess.clearBase()
		s.log.Error("Session %s base pass failed: %v", sess.workspace.ID(), err)

		return err
	}

	sess.setBase(result)

	return c.JSON(newPassResponse(c, pipeline.PassBase, len(result.Chunks), result.Gaps, result.Info))
}

func (s *Server) handleClone(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	header, err := c.FormFile(formSample)
	if err != nil {
		return pipeline.ErrNoVoiceSample
	}

	if !ttsutils.IsWAVFile(header.Filename) {
		return fmt.Errorf("%w: %s", ErrSampleNotWAV, header.Filename)
	}

	sample, err := readUpload(header)
	if err != nil {
		return err
	}

	if !sess.acquire() {
		return ErrSessionBusy
	}
	defer sess.release()

	base := sess.baseResult()
	if base == nil {
		return pipeline.ErrBaseRequired
	}

	result, err := s.narrator.Clone(c.UserContext(), base, sample, sess.publish)
	if err != nil {
		s.log.Error("Session %s clone pass failed: %v", sess.workspace.ID(), err)

		return err
	}

	sess.setCloned(result)

	return c.JSON(newPassResponse(c, pipeline.PassClone, len(result.Audio), nil, result.Info))
}

func newPassResponse(c *fiber.Ctx, pass pipeline.Pass, chunks int, gaps []pipeline.Gap, info *audio.Info) passResponse {
	kind := string(pipeline.PassBase)
	if pass == pipeline.PassClone {
		kind = kindCloned
	}

	audioURL := fmt.Sprintf("/api/sessions/%s/audio/%s", c.Params("id"), kind)

	size := ""
	if stat, err := os.Stat(info.Path); err == nil {
		size = ttsutils.FormatFileSize(stat.Size())
	}

	return passResponse{
		Pass:     pass,
		Chunks:   chunks,
		Gaps:     gaps,
		Duration: ttsutils.FormatDuration(info.Duration.Seconds()),
		Size:     size,
		Audio:    audioURL,
		Download: audioURL + "?download=1",
	}
}

// handleAudio streams a merged file, inline for the player or as an
// attachment when download is requested.
func (s *Server) handleAudio(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	path, err := sess.outputFor(c.Params("kind"))
	if err != nil {
		return err
	}

	file, err := os.Open(path) // #nosec G304 -- path is produced by the pipeline inside the workspace
	if err != nil {
		return fmt.Errorf("failed to open audio: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to stat audio: %w", err)
	}

	disposition := "inline"
	if c.QueryBool("download") {
		disposition = "attachment"
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, filepath.Base(path)))

	return c.SendStream(file, int(stat.Size()))
}

// handleProgressWS sends the current progress, then every update of the
// session until the client goes away.
func (s *Server) handleProgressWS(conn *websocket.Conn) {
	sess, ok := conn.Locals(localSession).(*session)
	if !ok {
		return
	}

	updates, current, unsubscribe := sess.subscribe()
	defer unsubscribe()

	err := conn.WriteJSON(current)
	if err != nil {
		return
	}

	closed := make(chan struct{})

	go func() {
		defer close(closed)

		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case progress := <-updates:
			err = conn.WriteJSON(progress)
			if err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// handleError renders every error as JSON with the status its cause maps to.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	body := errorResponse{Error: err.Error()}

	var chunkErr *pipeline.ChunkError
	if errors.As(err, &chunkErr) {
		index := chunkErr.Index
		body.Chunk = &index
	}

	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.log.Error("%s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(body)
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	var chunkErr *pipeline.ChunkError
	var apiErr *tts.APIError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrAudioNotReady):
		return fiber.StatusNotFound
	case errors.Is(err, ErrSessionBusy), errors.Is(err, pipeline.ErrBaseRequired):
		return fiber.StatusConflict
	case errors.Is(err, pipeline.ErrNoDocument), errors.Is(err, pipeline.ErrNoVoiceSample),
		errors.Is(err, ErrNotPDF), errors.Is(err, ErrSampleNotWAV), errors.Is(err, ErrUnknownKind),
		errors.Is(err, tts.ErrUnknownVoice), errors.Is(err, pdftext.ErrEmptyDocument):
		return fiber.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoText), errors.Is(err, pdftext.ErrUnreadablePDF):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, tts.ErrServiceUnavailable), errors.Is(err, tts.ErrBackendNotConfigured),
		errors.Is(err, tts.ErrConverterMissing):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &apiErr) && apiErr.IsUnauthorized():
		return fiber.StatusServiceUnavailable
	case errors.As(err, &apiErr) && !apiErr.IsServerError():
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &chunkErr), errors.As(err, &apiErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %s: %w", header.Filename, err)
	}

	return data, nil
}
