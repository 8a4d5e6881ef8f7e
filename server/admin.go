package server

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/resoli/api.ask.resoli.dev/auth"
	"github.com/resoli/api.ask.resoli.dev/poll"

	log "github.com/sirupsen/logrus"
)

// X-Admin-Password carries the rotating admin secret on admin routes.
const headerAdminPassword = "X-Admin-Password"

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type adminAuthRequest struct {
	Password string `json:"password"`
}

type setPublicPollRequest struct {
	AccessCode     string `json:"access_code"`
	TimeoutMinutes *int32 `json:"timeout_minutes"`
}

func requireAdmin(c *fiber.Ctx) error {
	if !auth.VerifyAdminPassword(c.Get(headerAdminPassword)) {
		return poll.ErrUnauthorized
	}
	return nil
}

func (r *router) adminAuth(c *fiber.Ctx) error {
	req := &adminAuthRequest{}
	if err := c.BodyParser(req); err != nil {
		log.Errorf("admin req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	if !auth.VerifyAdminPassword(req.Password) {
		return apiError(c, poll.ErrUnauthorized)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) adminListPolls(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return apiError(c, err)
	}

	polls, err := r.service.GetAllPolls(c.Context())
	if err != nil {
		return apiError(c, err)
	}

	out := make([]fiber.Map, len(polls))
	for i, p := range polls {
		out[i] = fiber.Map{
			"id":              p.ID.Hex(),
			"access_code":     p.AccessCode,
			"created_at":      p.CreatedAt,
			"available_from":  p.AvailableFrom,
			"available_until": p.AvailableUntil,
			"is_public":       p.IsPublic,
			"timeout_minutes": p.TimeoutMinutes,
			"question_count":  len(p.Questions),
		}
	}
	return c.JSON(out)
}

func (r *router) adminSetPublicPoll(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return apiError(c, err)
	}

	req := &setPublicPollRequest{}
	if err := c.BodyParser(req); err != nil {
		log.Errorf("admin req, err=%v", err)
		return apiError(c, poll.ErrValidation)
	}

	if err := r.service.SetPublicPoll(c.Context(), req.AccessCode, req.TimeoutMinutes); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) adminClearPublicPoll(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return apiError(c, err)
	}

	if err := r.service.ClearPublicPoll(c.Context()); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) uploadQuestionImage(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return apiError(c, err)
	}

	q, err := r.questionByParam(c)
	if err != nil {
		return apiError(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil || file.Size == 0 {
		return apiError(c, poll.ErrValidation)
	}

	if !allowedImageTypes[file.Header.Get("Content-Type")] {
		return c.Status(400).JSON(&fiber.Map{
			"error": "Invalid file type. Only JPEG, PNG, GIF, and WebP are allowed.",
		})
	}

	if err = os.MkdirAll(r.uploadsDir, 0755); err != nil {
		return err
	}

	filename := fmt.Sprintf("%s%s", uuid.New().String(), filepath.Ext(file.Filename))
	if err = c.SaveFile(file, filepath.Join(r.uploadsDir, filename)); err != nil {
		return err
	}

	r.removeImageFile(q.ImagePath)

	imagePath := path.Join("/uploads", filename)
	if err = r.service.SetQuestionImage(c.Context(), q.ID, &imagePath); err != nil {
		return apiError(c, err)
	}

	return c.JSON(&fiber.Map{
		"success":    true,
		"image_path": imagePath,
	})
}

func (r *router) deleteQuestionImage(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return apiError(c, err)
	}

	q, err := r.questionByParam(c)
	if err != nil {
		return apiError(c, err)
	}

	if q.ImagePath != nil {
		r.removeImageFile(q.ImagePath)
		if err = r.service.SetQuestionImage(c.Context(), q.ID, nil); err != nil {
			return apiError(c, err)
		}
	}

	return c.JSON(&fiber.Map{"success": true})
}

func (r *router) removeImageFile(imagePath *string) {
	if imagePath == nil || *imagePath == "" {
		return
	}
	name := filepath.Base(strings.TrimPrefix(*imagePath, "/uploads/"))
	if err := os.Remove(filepath.Join(r.uploadsDir, name)); err != nil && !os.IsNotExist(err) {
		log.Errorf("uploads, err=%v", err)
	}
}
