package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"mcq-chat-service/internal/domain"
)

// BankLoader fetches the question bank from a backing store (file, Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.QuestionBank, error)
}

// BankCache caches the question bank in Redis and falls back to a loader on
// a miss, so instances sharing one Redis read Postgres once per TTL.
// The bank is stored as: SET quiz:bank [{question}, ...]
type BankCache struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

const bankKey = "quiz:bank"

func NewBankCache(client *redis.Client, loader BankLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BankCache) LoadBank(ctx context.Context) (domain.QuestionBank, error) {
	if bank, ok := c.cached(ctx); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := c.cached(ctx); ok {
			return bank, nil
		}
		bank, err := c.loader.LoadBank(ctx)
		if err != nil {
			return domain.QuestionBank{}, err
		}
		raw, err := json.Marshal(bank.Questions())
		if err != nil {
			return domain.QuestionBank{}, errors.Wrap(err, "encode bank")
		}
		if err := c.client.Set(ctx, bankKey, raw, c.ttlWithJitter()).Err(); err != nil {
			glog.Warningf("cache question bank: %v", err)
		}
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

func (c *BankCache) cached(ctx context.Context) (domain.QuestionBank, bool) {
	raw, err := c.client.Get(ctx, bankKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			glog.Warningf("read cached question bank: %v", err)
		}
		return domain.QuestionBank{}, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		glog.Warningf("decode cached question bank: %v", err)
		return domain.QuestionBank{}, false
	}
	bank, err := domain.NewQuestionBank(questions)
	if err != nil {
		glog.Warningf("cached question bank rejected: %v", err)
		return domain.QuestionBank{}, false
	}
	return bank, true
}

func (c *BankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
