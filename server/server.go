package server

import (
	"errors"
	"net"

	"github.com/davecgh/go-spew/spew"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/resoli/api.ask.resoli.dev/broadcast"
	"github.com/resoli/api.ask.resoli.dev/configure"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/utils"

	log "github.com/sirupsen/logrus"
)

type Server struct {
	app *fiber.App
	ln  net.Listener
}

type customLogger struct{}

func (*customLogger) Write(data []byte) (n int, err error) {
	log.Debugln(utils.B2S(data))
	return len(data), nil
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

func NewServer(service *poll.Service, coordinator *broadcast.Coordinator) *Server {
	ln, err := net.Listen(configure.Config.GetString("listener_network"), configure.Config.GetString("listener_address"))
	checkErr(err)

	server := &Server{
		ln:  ln,
		app: newApp(service, coordinator, configure.Config.GetString("uploads_dir")),
	}

	go func() {
		err = server.app.Listener(server.ln)
		if err != nil {
			log.Errorf("failed to start http server, err=%v", err)
		}
	}()

	return server
}

func newApp(service *poll.Service, coordinator *broadcast.Coordinator, uploadsDir string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Output: &customLogger{},
	}))

	r := &router{
		service:     service,
		coordinator: coordinator,
		uploadsDir:  uploadsDir,
	}
	r.register(app)

	app.Static("/uploads", uploadsDir)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(&fiber.Map{
			"status":  404,
			"message": "We don't know what you're looking for.",
		})
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	log.Errorf("internal err=%v", spew.Sdump(err))

	return c.SendStatus(500)
}

func (s *Server) Shutdown() error {
	return s.ln.Close()
}

type router struct {
	service     *poll.Service
	coordinator *broadcast.Coordinator
	uploadsDir  string
}

func (r *router) register(app fiber.Router) {
	polls := app.Group("/api/polls")
	polls.Post("/", r.createPoll)
	polls.Get("/public", r.getPublicPoll)
	polls.Get("/:code", r.getPoll)
	polls.Post("/:code/auth", r.authenticatePoll)
	polls.Put("/:code", r.updatePoll)
	polls.Delete("/:code", r.deletePoll)
	polls.Post("/:code/questions", r.addQuestion)
	polls.Put("/:code/questions/reorder", r.reorderQuestions)

	questions := app.Group("/api/questions")
	questions.Get("/:id", r.getQuestion)
	questions.Put("/:id", r.updateQuestion)
	questions.Delete("/:id", r.deleteQuestion)
	questions.Post("/:id/activate", r.activateQuestion)
	questions.Post("/:id/deactivate", r.deactivateQuestion)
	questions.Post("/:id/reset", r.resetVotes)
	questions.Post("/:id/vote", r.vote)
	questions.Get("/:id/results", r.getResults)

	admin := app.Group("/api/admin")
	admin.Post("/auth", r.adminAuth)
	admin.Get("/polls", r.adminListPolls)
	admin.Post("/public", r.adminSetPublicPoll)
	admin.Delete("/public", r.adminClearPublicPoll)
	admin.Post("/questions/:id/image", r.uploadQuestionImage)
	admin.Delete("/questions/:id/image", r.deleteQuestionImage)

	r.registerHub(app)
}

// apiError turns the core error taxonomy into distinct responses.
// Anything unknown falls through to the 500 handler.
func apiError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, poll.ErrNotFound):
		return c.Status(404).JSON(&fiber.Map{"error": "not found"})
	case errors.Is(err, poll.ErrValidation):
		return c.Status(400).JSON(&fiber.Map{"error": "invalid request"})
	case errors.Is(err, poll.ErrConflict):
		return c.Status(409).JSON(&fiber.Map{"error": "access code already exists"})
	case errors.Is(err, poll.ErrUnauthorized):
		return c.Status(401).JSON(&fiber.Map{"error": "invalid password"})
	}
	return err
}
