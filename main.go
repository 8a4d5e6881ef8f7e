package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/resoli/api.ask.resoli.dev/broadcast"
	"github.com/resoli/api.ask.resoli.dev/configure"
	"github.com/resoli/api.ask.resoli.dev/mongo"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/redis"
	"github.com/resoli/api.ask.resoli.dev/server"
	"github.com/resoli/api.ask.resoli.dev/storage"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.Infoln("Application Starting...")

	configCode := configure.Config.GetInt("exit_code")
	if configCode > 125 || configCode < 0 {
		log.Warnf("Invalid exit code specified in config (%v), using 0 as new exit code.", configCode)
		configCode = 0
	}

	var store storage.PollStorage
	if uri := configure.Config.GetString("mongo_uri"); uri != "" {
		db, err := mongo.Connect(uri, configure.Config.GetString("mongo_db"))
		if err != nil {
			log.Fatalf("mongodb, err=%v", err)
		}
		store = storage.NewMongoStorage(db)
	} else {
		log.Warnln("No mongo_uri configured, polls will not survive a restart.")
		store = storage.NewMemoryStorage()
	}

	var rdb *redis.Client
	if uri := configure.Config.GetString("redis_uri"); uri != "" {
		var err error
		rdb, err = redis.Connect(uri)
		if err != nil {
			log.Fatalf("redis, err=%v", err)
		}
	} else {
		log.Warnln("No redis_uri configured, events will only reach viewers on this node.")
	}

	service := poll.NewService(store)
	coordinator := broadcast.New(rdb)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	s := server.NewServer(service, coordinator)

	go func() {
		sig := <-c
		log.Infof("sig=%v, gracefully shutting down...", sig)
		start := time.Now().UnixNano()

		wg := sync.WaitGroup{}
		wg.Add(1)

		go func() {
			defer wg.Done()
			if err := s.Shutdown(); err != nil {
				log.Errorf("server, shutdown=%v", err)
			}
		}()

		wg.Wait()

		log.Infof("Shutdown took, %.2fms", float64(time.Now().UnixNano()-start)/10e5)
		os.Exit(configCode)
	}()

	log.Infoln("Application Started.")

	select {}
}
