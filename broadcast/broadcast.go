package broadcast

import (
	"fmt"
	"sync"

	goredis "github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/resoli/api.ask.resoli.dev/poll"
	"github.com/resoli/api.ask.resoli.dev/redis"

	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	EventVoteUpdate          = "vote_update"
	EventQuestionActivated   = "question_activated"
	EventQuestionDeactivated = "question_deactivated"
)

// Event is the tagged variant fanned out to everyone watching a poll
// channel. QuestionID and Results are set depending on Type.
type Event struct {
	Type       string       `json:"type"`
	QuestionID string       `json:"question_id,omitempty"`
	Results    poll.Results `json:"results,omitempty"`
}

// Coordinator keeps one logical channel per poll access code and
// delivers events to every currently joined subscriber, at most once
// each. Delivery is best effort; a subscriber that is gone at publish
// time recovers by re-fetching the poll.
//
// With a redis client the channels ride redis pub/sub, so publishes
// reach subscribers on every node. Without one, events dispatch to
// local subscribers only.
type Coordinator struct {
	mtx    sync.Mutex
	subs   map[string][]chan Event
	rdb    *goredis.Client
	pubsub *redis.PubSub
}

func New(rdb *goredis.Client) *Coordinator {
	c := &Coordinator{
		subs: map[string][]chan Event{},
		rdb:  rdb,
	}

	if rdb != nil {
		c.pubsub = rdb.Subscribe(redis.Ctx)
		go func() {
			ch := c.pubsub.Channel()
			for msg := range ch {
				c.dispatch(msg.Channel, []byte(msg.Payload))
			}
		}()
	}

	return c
}

func channelName(accessCode string) string {
	return fmt.Sprintf("events:poll:%s", accessCode)
}

// PublishVoteUpdate announces fresh counts for a question, after a vote
// or a reset.
func (c *Coordinator) PublishVoteUpdate(accessCode, questionID string, results poll.Results) {
	c.publish(accessCode, Event{
		Type:       EventVoteUpdate,
		QuestionID: questionID,
		Results:    results,
	})
}

// PublishQuestionActivated announces the question now live for the poll.
func (c *Coordinator) PublishQuestionActivated(accessCode, questionID string) {
	c.publish(accessCode, Event{
		Type:       EventQuestionActivated,
		QuestionID: questionID,
	})
}

// PublishQuestionDeactivated announces that the poll has no live
// question anymore.
func (c *Coordinator) PublishQuestionDeactivated(accessCode string) {
	c.publish(accessCode, Event{
		Type: EventQuestionDeactivated,
	})
}

// publish never blocks the caller; the actual delivery happens on its
// own goroutine.
func (c *Coordinator) publish(accessCode string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("json, err=%v", err)
		return
	}

	channel := channelName(accessCode)
	go func() {
		if c.rdb != nil {
			// Local subscribers get the event back through the
			// pubsub receive loop like everybody else.
			if err := c.rdb.Publish(redis.Ctx, channel, data).Err(); err != nil {
				log.Errorf("redis, err=%v", err)
			}
			return
		}
		c.dispatch(channel, data)
	}()
}

func (c *Coordinator) dispatch(channel string, payload []byte) {
	event := Event{}
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Errorf("json, err=%v", err)
		return
	}

	wg := sync.WaitGroup{}
	c.mtx.Lock()
	if v, ok := c.subs[channel]; ok {
		wg.Add(len(v))
		for _, ch := range v {
			go func(ch chan Event) {
				defer wg.Done()
				defer recover()
				ch <- event
			}(ch)
		}
	}
	wg.Wait()
	c.mtx.Unlock()
}

// Subscribe joins the poll channel and returns the event feed. The
// first local subscriber of a channel attaches it to redis.
func (c *Coordinator) Subscribe(accessCode string) (chan Event, error) {
	ch := make(chan Event, 16)
	channel := channelName(accessCode)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if v, ok := c.subs[channel]; ok {
		c.subs[channel] = append(v, ch)
	} else {
		c.subs[channel] = []chan Event{ch}
		if c.pubsub != nil {
			if err := c.pubsub.Subscribe(redis.Ctx, channel); err != nil {
				delete(c.subs, channel)
				return nil, err
			}
		}
	}
	return ch, nil
}

func filterSlice(s []chan Event, r chan Event) []chan Event {
	for i, v := range s {
		if v == r {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Unsubscribe leaves the poll channel. The last local subscriber
// detaches the channel from redis.
func (c *Coordinator) Unsubscribe(accessCode string, ch chan Event) error {
	channel := channelName(accessCode)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	remaining := filterSlice(c.subs[channel], ch)
	if len(remaining) == 0 {
		delete(c.subs, channel)
		if c.pubsub != nil {
			return c.pubsub.Unsubscribe(redis.Ctx, channel)
		}
		return nil
	}
	c.subs[channel] = remaining
	return nil
}
