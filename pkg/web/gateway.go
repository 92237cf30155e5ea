// Package web provides the chat platform callback gateway.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/botrelay/pkg/cache"
	"github.com/dukex/botrelay/pkg/models"
	"github.com/dukex/botrelay/pkg/persistence"
	"github.com/dukex/botrelay/pkg/wecom"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Envelope parameters the platform sends on every callback.
type callbackQuery struct {
	Signature string `validate:"required"`
	Timestamp string `validate:"required"`
	Nonce     string `validate:"required"`
}

type Gateway struct {
	store       persistence.Persistence
	answers     cache.AnswerCache
	crypt       *wecom.Crypt
	validator   *validator.Validate
	placeholder string
	logger      *slog.Logger
}

func NewGateway(
	store persistence.Persistence,
	answers cache.AnswerCache,
	crypt *wecom.Crypt,
	validate *validator.Validate,
	placeholder string,
	logger *slog.Logger,
) *Gateway {
	if answers == nil {
		answers = cache.NoopCache{}
	}

	return &Gateway{
		store:       store,
		answers:     answers,
		crypt:       crypt,
		validator:   validate,
		placeholder: placeholder,
		logger:      logger.With("module", "gateway"),
	}
}

// VerifyURL answers the platform's URL verification with the decrypted echostr.
func (g *Gateway) VerifyURL(c fiber.Ctx) error {
	query, err := g.parseQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	echostr := c.Query("echostr")
	if echostr == "" {
		return badRequest(c, "echostr is required")
	}

	plain, err := g.crypt.VerifyURL(query.Signature, query.Timestamp, query.Nonce, echostr)
	if err != nil {
		g.logger.WarnContext(c.Context(), "URL verification failed", "error", err)

		return handleCryptError(c, err)
	}

	return c.SendString(plain)
}

// Callback decrypts a message and either registers a new question or reports the state of one.
func (g *Gateway) Callback(c fiber.Ctx) error {
	ctx := c.Context()

	query, err := g.parseQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req wecom.EncryptedRequest

	err = c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = g.validator.Struct(req)
	if err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	plain, err := g.crypt.Decrypt(req.Encrypt, query.Signature, query.Timestamp, query.Nonce)
	if err != nil {
		g.logger.WarnContext(ctx, "Failed to decrypt callback", "error", err)

		return handleCryptError(c, err)
	}

	var msg wecom.Message

	err = json.Unmarshal(plain, &msg)
	if err != nil {
		return badRequest(c, "Invalid message: "+err.Error())
	}

	err = g.validator.Struct(msg)
	if err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	logger := g.logger.With("msg_id", msg.MsgID, "msg_type", msg.MsgType)

	var reply wecom.StreamReply

	switch msg.MsgType {
	case wecom.MsgTypeText:
		question, err := g.registerQuestion(ctx, logger, &msg)
		if err != nil {
			return internalError(c, err)
		}

		reply = wecom.NewStreamReply(question.ID, question.Finish, g.visibleContent(question.Content))

	case wecom.MsgTypeStream:
		answer, err := g.lookupAnswer(ctx, logger, msg.Stream.ID)
		if err != nil {
			if persistence.IsQuestionNotFound(err) {
				return notFound(c, "question not found")
			}

			return internalError(c, err)
		}

		reply = wecom.NewStreamReply(msg.Stream.ID, answer.Finish, g.visibleContent(answer.Content))

	default:
		return badRequest(c, fmt.Sprintf("Unsupported msgtype %q", msg.MsgType))
	}

	return g.encryptedReply(c, query, reply)
}

func (g *Gateway) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	err := g.store.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (g *Gateway) parseQuery(c fiber.Ctx) (callbackQuery, error) {
	query := callbackQuery{
		Signature: c.Query("msg_signature"),
		Timestamp: c.Query("timestamp"),
		Nonce:     c.Query("nonce"),
	}

	err := g.validator.Struct(query)
	if err != nil {
		return query, fmt.Errorf("msg_signature, timestamp and nonce are required: %w", err)
	}

	return query, nil
}

// registerQuestion creates a pending question, or returns the existing one when the platform
// retries a callback for a message it already delivered.
func (g *Gateway) registerQuestion(ctx context.Context, logger *slog.Logger, msg *wecom.Message) (*models.Question, error) {
	existing, err := g.store.Questions().FindByMsgID(ctx, msg.MsgID)
	if err == nil {
		logger.InfoContext(ctx, "Callback retry for known message", "question_id", existing.ID)

		return existing, nil
	}

	if !persistence.IsQuestionNotFound(err) {
		return nil, fmt.Errorf("failed to look up message: %w", err)
	}

	question := &models.Question{
		ID:         uuid.New().String(),
		MsgID:      msg.MsgID,
		AibotID:    msg.AibotID,
		ChatID:     msg.ChatID,
		ChatType:   msg.ChatType,
		ChatOrigin: msg.From.UserID,
		QueryText:  msg.Text.Content,
		Status:     models.QuestionStatusPending,
	}

	err = g.store.Questions().Create(ctx, question)
	if err != nil {
		if persistence.IsQuestionAlreadyExists(err) {
			return g.store.Questions().FindByMsgID(ctx, msg.MsgID)
		}

		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	logger.InfoContext(ctx, "Question registered", "question_id", question.ID)

	return question, nil
}

// lookupAnswer prefers a cached finished answer and falls back to the store.
func (g *Gateway) lookupAnswer(ctx context.Context, logger *slog.Logger, questionID string) (*cache.Answer, error) {
	cached, found, err := g.answers.Get(ctx, questionID)
	if err != nil {
		logger.WarnContext(ctx, "Answer cache unavailable, reading store", "question_id", questionID, "error", err)
	}

	if found {
		return cached, nil
	}

	question, err := g.store.Questions().FindByID(ctx, questionID)
	if err != nil {
		return nil, err
	}

	return &cache.Answer{
		Status:  question.Status,
		Finish:  question.Finish,
		Content: question.Content,
	}, nil
}

func (g *Gateway) visibleContent(content string) string {
	if content == "" {
		return g.placeholder
	}

	return content
}

func (g *Gateway) encryptedReply(c fiber.Ctx, query callbackQuery, reply wecom.StreamReply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return internalError(c, fmt.Errorf("failed to encode reply: %w", err))
	}

	encrypted, err := g.crypt.Encrypt(body, query.Nonce, query.Timestamp)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(encrypted)
}
