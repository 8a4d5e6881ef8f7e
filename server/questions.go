package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"

	log "github.com/sirupsen/logrus"
)

type updateQuestionRequest struct {
	Title         *string `json:"title"`
	Content       string  `json:"content"`
	UseMonospace  bool    `json:"use_monospace"`
	AllowMultiple bool    `json:"allow_multiple"`
}

type voteRequest struct {
	OptionIDs []string `json:"option_ids"`
}

func (r *router) questionByParam(c *fiber.Ctx) (*storage.Question, error) {
	id, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return nil, poll.ErrNotFound
	}
	return r.service.GetQuestion(c.Context(), id)
}

// ownerQuestion resolves the :id question together with its poll and
// checks the owner password header.
func (r *router) ownerQuestion(c *fiber.Ctx) (*storage.Question, *storage.Poll, error) {
	q, err := r.questionByParam(c)
	if err != nil {
		return nil, nil, err
	}

	p, err := r.service.GetPollByID(c.Context(), q.PollID)
	if err != nil {
		return nil, nil, err
	}
	if !r.service.VerifyOwner(p, c.Get(headerPollPassword)) {
		return nil, nil, poll.ErrUnauthorized
	}
	return q, p, nil
}

func (r *router) getQuestion(c *fiber.Ctx) error {
	q, err := r.questionByParam(c)
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(q)
}

func (r *router) updateQuestion(c *fiber.Ctx) error {
	q, _, err := r.ownerQuestion(c)
	if err != nil {
		return apiError(c, err)
	}

	req := &updateQuestionRequest{}
	if err = c.BodyParser(req); err != nil {
		log.Errorf("question req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	if err = r.service.UpdateQuestion(c.Context(), q.ID, req.Title, req.Content, req.UseMonospace, req.AllowMultiple); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) deleteQuestion(c *fiber.Ctx) error {
	q, _, err := r.ownerQuestion(c)
	if err != nil {
		return apiError(c, err)
	}

	if err = r.service.DeleteQuestion(c.Context(), q.ID); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) activateQuestion(c *fiber.Ctx) error {
	q, p, err := r.ownerQuestion(c)
	if err != nil {
		return apiError(c, err)
	}

	if err = r.service.ActivateQuestion(c.Context(), q.PollID, q.ID); err != nil {
		return apiError(c, err)
	}

	r.coordinator.PublishQuestionActivated(p.AccessCode, q.ID.Hex())

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) deactivateQuestion(c *fiber.Ctx) error {
	q, p, err := r.ownerQuestion(c)
	if err != nil {
		return apiError(c, err)
	}

	if err = r.service.DeactivateAll(c.Context(), q.PollID); err != nil {
		return apiError(c, err)
	}

	r.coordinator.PublishQuestionDeactivated(p.AccessCode)

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) resetVotes(c *fiber.Ctx) error {
	q, p, err := r.ownerQuestion(c)
	if err != nil {
		return apiError(c, err)
	}

	if err = r.service.ResetVotes(c.Context(), q.ID); err != nil {
		return apiError(c, err)
	}

	results, err := r.service.GetResults(c.Context(), q.ID)
	if err != nil {
		return apiError(c, err)
	}
	r.coordinator.PublishVoteUpdate(p.AccessCode, q.ID.Hex(), results)

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) vote(c *fiber.Ctx) error {
	q, err := r.questionByParam(c)
	if err != nil {
		return apiError(c, err)
	}

	req := &voteRequest{}
	if err = c.BodyParser(req); err != nil {
		log.Errorf("question req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	results, err := r.service.Vote(c.Context(), q.ID, parseObjectIDs(req.OptionIDs))
	if err != nil {
		return apiError(c, err)
	}

	p, err := r.service.GetPollByID(c.Context(), q.PollID)
	if err == nil {
		r.coordinator.PublishVoteUpdate(p.AccessCode, q.ID.Hex(), results)
	}

	return c.JSON(&fiber.Map{
		"success": true,
		"results": results,
	})
}

func (r *router) getResults(c *fiber.Ctx) error {
	q, err := r.questionByParam(c)
	if err != nil {
		return apiError(c, err)
	}

	results, err := r.service.GetResults(c.Context(), q.ID)
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(results)
}
