package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"

	log "github.com/sirupsen/logrus"
)

// X-Poll-Password carries the owner password on mutating poll routes.
const headerPollPassword = "X-Poll-Password"

type createPollRequest struct {
	AccessCode     string     `json:"access_code"`
	Password       string     `json:"password"`
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`
}

type pollAuthRequest struct {
	Password string `json:"password"`
}

type updatePollRequest struct {
	AvailableFrom  *time.Time `json:"available_from"`
	AvailableUntil *time.Time `json:"available_until"`
}

type addQuestionRequest struct {
	Title         *string  `json:"title"`
	Content       string   `json:"content"`
	UseMonospace  bool     `json:"use_monospace"`
	AllowMultiple bool     `json:"allow_multiple"`
	Options       []string `json:"options"`
}

type reorderRequest struct {
	QuestionIDs []string `json:"question_ids"`
}

type pollResponse struct {
	*storage.Poll
	IsAvailable bool `json:"is_available"`
}

// ownerPoll resolves the :code poll and checks the owner password
// header against its digest.
func (r *router) ownerPoll(c *fiber.Ctx) (*storage.Poll, error) {
	p, err := r.service.Authenticate(c.Context(), c.Params("code"), c.Get(headerPollPassword))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *router) createPoll(c *fiber.Ctx) error {
	req := &createPollRequest{}
	if err := c.BodyParser(req); err != nil {
		log.Errorf("poll req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	p, err := r.service.CreatePoll(c.Context(), req.AccessCode, req.Password, req.AvailableFrom, req.AvailableUntil)
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{
		"id":          p.ID.Hex(),
		"access_code": p.AccessCode,
	})
}

func (r *router) getPoll(c *fiber.Ctx) error {
	p, err := r.service.GetPollByCode(c.Context(), c.Params("code"))
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(&pollResponse{
		Poll:        p,
		IsAvailable: r.service.IsAvailable(p, time.Now().UTC()),
	})
}

func (r *router) getPublicPoll(c *fiber.Ctx) error {
	p, err := r.service.GetPublicPoll(c.Context())
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(&pollResponse{
		Poll:        p,
		IsAvailable: r.service.IsAvailable(p, time.Now().UTC()),
	})
}

func (r *router) authenticatePoll(c *fiber.Ctx) error {
	req := &pollAuthRequest{}
	if err := c.BodyParser(req); err != nil {
		log.Errorf("poll req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	p, err := r.service.Authenticate(c.Context(), c.Params("code"), req.Password)
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{
		"success": true,
		"poll_id": p.ID.Hex(),
	})
}

func (r *router) updatePoll(c *fiber.Ctx) error {
	p, err := r.ownerPoll(c)
	if err != nil {
		return apiError(c, err)
	}

	req := &updatePollRequest{}
	if err = c.BodyParser(req); err != nil {
		log.Errorf("poll req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	if err = r.service.UpdateAvailability(c.Context(), p, req.AvailableFrom, req.AvailableUntil); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) deletePoll(c *fiber.Ctx) error {
	p, err := r.ownerPoll(c)
	if err != nil {
		return apiError(c, err)
	}

	if err = r.service.DeletePoll(c.Context(), p.ID); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) addQuestion(c *fiber.Ctx) error {
	p, err := r.ownerPoll(c)
	if err != nil {
		return apiError(c, err)
	}

	req := &addQuestionRequest{}
	if err = c.BodyParser(req); err != nil {
		log.Errorf("poll req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	q, err := r.service.AddQuestion(c.Context(), p.ID, req.Title, req.Content, req.UseMonospace, req.AllowMultiple, req.Options)
	if err != nil {
		return apiError(c, err)
	}

	return c.JSON(q)
}

func (r *router) reorderQuestions(c *fiber.Ctx) error {
	p, err := r.ownerPoll(c)
	if err != nil {
		return apiError(c, err)
	}

	req := &reorderRequest{}
	if err = c.BodyParser(req); err != nil {
		log.Errorf("poll req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	if err = r.service.ReorderQuestions(c.Context(), p.ID, parseObjectIDs(req.QuestionIDs)); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

// parseObjectIDs keeps list positions intact: ids that do not parse
// become the zero id, which matches nothing downstream and is dropped
// there, the same way unknown ids are.
func parseObjectIDs(ids []string) []primitive.ObjectID {
	parsed := make([]primitive.ObjectID, len(ids))
	for i, raw := range ids {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			parsed[i] = primitive.NilObjectID
			continue
		}
		parsed[i] = id
	}
	return parsed
}
