package assistantapi

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/assistant"
	"github.com/Abraxas-365/finai/pkg/assistant/assistantsrv"
	"github.com/Abraxas-365/finai/pkg/errx"
	"github.com/Abraxas-365/finai/pkg/logx"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// DefaultConversationID is used by /berry when the caller sends no id, so
// that a single client keeps one running history
const DefaultConversationID = "default"

// ConversationHeader carries the conversation id of a streamed answer
const ConversationHeader = "X-Conversation-ID"

// QueryRequest is the body of /berry and /api/v1/query
type QueryRequest struct {
	Query          string `json:"query" validate:"required,max=4000"`
	ConversationID string `json:"conversation_id" validate:"omitempty,max=128,printascii"`
}

// QueryResponse is the body returned by /api/v1/query
type QueryResponse struct {
	ConversationID string                   `json:"conversation_id"`
	Answer         string                   `json:"answer"`
	Classification assistant.Classification `json:"classification"`
	Stages         []assistant.StageTiming  `json:"stages"`
}

// TurnDTO is one entry of a conversation history
type TurnDTO struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AssistantHandlers serves the question answering routes
type AssistantHandlers struct {
	service  *assistantsrv.ConversationService
	validate *validator.Validate
	// StreamTimeout bounds a streamed turn, which outlives the request handler
	streamTimeout time.Duration
}

func NewAssistantHandlers(service *assistantsrv.ConversationService, streamTimeout time.Duration) *AssistantHandlers {
	return &AssistantHandlers{
		service:       service,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		streamTimeout: streamTimeout,
	}
}

// RegisterRoutes registers /berry on router and the JSON api under /api/v1
func (h *AssistantHandlers) RegisterRoutes(router fiber.Router) {
	router.Post("/berry", h.Berry)

	api := router.Group("/api/v1")
	api.Post("/query", h.Query)
	api.Get("/conversations/:id/history", h.History)
	api.Delete("/conversations/:id", h.DeleteConversation)
}

// Berry streams the answer as plain text chunks
func (h *AssistantHandlers) Berry(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if err != nil {
		return respondError(c, err)
	}
	id := req.ConversationID
	if id == "" {
		id = DefaultConversationID
	}
	requestID := strings.Clone(c.Get("X-Request-ID"))

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(ConversationHeader, id)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		if h.streamTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.streamTimeout)
			defer cancel()
		}

		_, err := h.service.AskStream(ctx, id, req.Query, func(chunk string) error {
			if _, err := w.WriteString(chunk); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			logx.WithFields(logx.Fields{"conversation_id": id, "request_id": requestID}).
				Errorf("Streamed turn failed: %v", err)
			// headers are gone, the error can only be reported in the body
			_, _ = w.WriteString("\n\nError: " + publicMessage(err))
			_ = w.Flush()
		}
	})
	return nil
}

// Query answers and returns the whole turn as JSON
func (h *AssistantHandlers) Query(c *fiber.Ctx) error {
	req, err := h.parse(c)
	if err != nil {
		return respondError(c, err)
	}

	turn, err := h.service.Ask(c.UserContext(), req.ConversationID, req.Query)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(QueryResponse{
		ConversationID: turn.ConversationID,
		Answer:         turn.Answer,
		Classification: turn.Classification,
		Stages:         turn.Stages,
	})
}

// History returns the retained turns of a conversation
func (h *AssistantHandlers) History(c *fiber.Ctx) error {
	id := c.Params("id")
	turns, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversation_id": id,
		"turns":           toDTOs(turns),
	})
}

// DeleteConversation forgets a conversation and its stored history
func (h *AssistantHandlers) DeleteConversation(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AssistantHandlers) parse(c *fiber.Ctx) (*QueryRequest, error) {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errx.Wrap(err, "Invalid request body", errx.TypeValidation)
	}
	if err := h.validate.Struct(req); err != nil {
		e := errx.New("Invalid request", errx.TypeValidation)
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				e.WithDetail(fe.Field(), fe.Tag())
			}
		}
		return nil, e
	}
	return &req, nil
}

func toDTOs(turns []memoryx.Turn) []TurnDTO {
	out := make([]TurnDTO, 0, len(turns))
	for _, t := range turns {
		out = append(out, TurnDTO{Query: t.Query, Response: t.Response, CreatedAt: t.CreatedAt})
	}
	return out
}

// respondError writes err as a JSON error document
func respondError(c *fiber.Ctx, err error) error {
	status := errx.HTTPStatusOf(err)
	body := fiber.Map{
		"error":      publicMessage(err),
		"status":     status,
		"request_id": c.Get("X-Request-ID"),
	}

	var e *errx.Error
	if errors.As(err, &e) {
		body["code"] = e.Code
		body["type"] = string(e.Type)
		if len(e.Details) > 0 {
			body["details"] = e.Details
		}
	}
	if status >= fiber.StatusInternalServerError {
		logx.WithFields(logx.Fields{"path": c.Path(), "request_id": c.Get("X-Request-ID")}).Errorf("Request failed: %v", err)
	}

	return c.Status(status).JSON(body)
}

func publicMessage(err error) string {
	var e *errx.Error
	if errors.As(err, &e) {
		return e.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out"
	}
	return "An unexpected error occurred"
}
