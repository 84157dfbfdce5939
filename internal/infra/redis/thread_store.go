package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"mcq-chat-service/internal/domain"
	"mcq-chat-service/internal/transcript"
)

// ThreadStore keeps thread records in Redis so they survive a restart.
// Layout:
//
//	HSET  thread:{id}:meta   owner, title, createdAt, updatedAt
//	RPUSH thread:{id}:items  {entry json}...  (LTRIM to the newest historyLimit)
//	SET   thread:{id}:quiz   {quiz state json}
//	ZADD  user:{owner}:threads {createdAt unix nanos} {id}
//
// Appends and quiz replacement go through MULTI/EXEC, so readers never see one
// without the other. Per-thread write ordering is the caller's job (app.KeyedMutex).
type ThreadStore struct {
	client       *redis.Client
	ttl          time.Duration
	now          func() time.Time
	historyLimit int
}

func NewThreadStore(client *redis.Client, ttl time.Duration) *ThreadStore {
	return &ThreadStore{client: client, ttl: ttl, now: time.Now}
}

// LimitHistory keeps at most n entries per thread (n <= 0 keeps everything).
func (s *ThreadStore) LimitHistory(n int) *ThreadStore {
	s.historyLimit = n
	return s
}

const (
	fieldOwner     = "owner"
	fieldTitle     = "title"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
	createRetries  = 3
)

func (s *ThreadStore) GetOrCreate(ctx context.Context, threadID, ownerID string) (domain.ThreadRecord, error) {
	metaKey := s.metaKey(threadID)
	committed := false
	for i := 0; i < createRetries && !committed; i++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, metaKey).Result()
			if err != nil || exists > 0 {
				return err
			}
			now := s.now().UTC()
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, metaKey,
					fieldOwner, ownerID,
					fieldCreatedAt, now.Format(time.RFC3339Nano),
					fieldUpdatedAt, now.Format(time.RFC3339Nano),
				)
				pipe.ZAdd(ctx, s.userKey(ownerID), redis.Z{Score: float64(now.UnixNano()), Member: threadID})
				s.expire(ctx, pipe, threadID, ownerID)
				return nil
			})
			return err
		}, metaKey)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return domain.ThreadRecord{}, errors.Wrap(err, "create thread")
		}
		committed = true
	}
	if !committed {
		return domain.ThreadRecord{}, &domain.Error{Kind: domain.ErrBusy, ThreadID: threadID, Detail: "thread creation kept conflicting"}
	}
	return s.Get(ctx, threadID, ownerID)
}

func (s *ThreadStore) Get(ctx context.Context, threadID, ownerID string) (domain.ThreadRecord, error) {
	rec, ok, err := s.load(ctx, threadID)
	if err != nil {
		return domain.ThreadRecord{}, err
	}
	if !ok {
		return domain.ThreadRecord{}, &domain.Error{Kind: domain.ErrNotFound, ThreadID: threadID}
	}
	if rec.OwnerID != ownerID {
		return domain.ThreadRecord{}, &domain.Error{Kind: domain.ErrForbidden, ThreadID: threadID, Detail: "thread belongs to another user"}
	}
	return rec, nil
}

func (s *ThreadStore) AppendAndSave(ctx context.Context, threadID string, entries []domain.TranscriptEntry, state *domain.QuizState) error {
	metaKey := s.metaKey(threadID)
	owner, err := s.client.HGet(ctx, metaKey, fieldOwner).Result()
	if err == redis.Nil {
		return &domain.Error{Kind: domain.ErrNotFound, ThreadID: threadID}
	}
	if err != nil {
		return errors.Wrap(err, "load thread owner")
	}

	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "encode transcript entry")
		}
		values = append(values, raw)
	}
	var quizRaw []byte
	if state != nil {
		if quizRaw, err = json.Marshal(state); err != nil {
			return errors.Wrap(err, "encode quiz state")
		}
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(values) > 0 {
			pipe.RPush(ctx, s.itemsKey(threadID), values...)
			if s.historyLimit > 0 {
				pipe.LTrim(ctx, s.itemsKey(threadID), int64(-s.historyLimit), -1)
			}
		}
		if quizRaw != nil {
			pipe.Set(ctx, s.quizKey(threadID), quizRaw, s.ttl)
		} else {
			pipe.Del(ctx, s.quizKey(threadID))
		}
		if title := transcript.TitleFrom(entries); title != "" {
			pipe.HSetNX(ctx, metaKey, fieldTitle, title)
		}
		pipe.HSet(ctx, metaKey, fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano))
		s.expire(ctx, pipe, threadID, owner)
		return nil
	})
	return errors.Wrap(err, "append and save")
}

func (s *ThreadStore) List(ctx context.Context, ownerID string, page domain.PageRequest) (domain.Page[domain.ThreadSummary], error) {
	ids, err := s.client.ZRevRange(ctx, s.userKey(ownerID), 0, -1).Result()
	if err != nil {
		return domain.Page[domain.ThreadSummary]{}, errors.Wrap(err, "list threads")
	}
	summaries := make([]domain.ThreadSummary, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.load(ctx, id)
		if err != nil {
			return domain.Page[domain.ThreadSummary]{}, err
		}
		if !ok || rec.OwnerID != ownerID {
			// expired or recreated under another owner
			s.client.ZRem(ctx, s.userKey(ownerID), id)
			continue
		}
		summaries = append(summaries, rec.Summary())
	}
	return domain.Paginate(summaries, page, func(t domain.ThreadSummary) string { return t.ThreadID }), nil
}

func (s *ThreadStore) Delete(ctx context.Context, threadID, ownerID string) error {
	if _, err := s.Get(ctx, threadID, ownerID); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.metaKey(threadID), s.itemsKey(threadID), s.quizKey(threadID))
		pipe.ZRem(ctx, s.userKey(ownerID), threadID)
		return nil
	})
	return errors.Wrap(err, "delete thread")
}

func (s *ThreadStore) load(ctx context.Context, threadID string) (domain.ThreadRecord, bool, error) {
	var (
		metaCmd  *redis.MapStringStringCmd
		itemsCmd *redis.StringSliceCmd
		quizCmd  *redis.StringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(threadID))
		itemsCmd = pipe.LRange(ctx, s.itemsKey(threadID), 0, -1)
		quizCmd = pipe.Get(ctx, s.quizKey(threadID))
		return nil
	})
	if err != nil && err != redis.Nil {
		return domain.ThreadRecord{}, false, errors.Wrap(err, "load thread")
	}

	meta := metaCmd.Val()
	if len(meta) == 0 || meta[fieldOwner] == "" {
		return domain.ThreadRecord{}, false, nil
	}
	rec := domain.ThreadRecord{
		ThreadID:  threadID,
		OwnerID:   meta[fieldOwner],
		Title:     meta[fieldTitle],
		CreatedAt: parseTime(meta[fieldCreatedAt]),
		UpdatedAt: parseTime(meta[fieldUpdatedAt]),
	}
	for _, raw := range itemsCmd.Val() {
		var e domain.TranscriptEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return domain.ThreadRecord{}, false, errors.Wrapf(err, "decode entry of thread %s", threadID)
		}
		rec.History = append(rec.History, e)
	}
	if raw, err := quizCmd.Result(); err == nil {
		var q domain.QuizState
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.ThreadRecord{}, false, errors.Wrapf(err, "decode quiz of thread %s", threadID)
		}
		rec.Quiz = &q
	} else if err != redis.Nil {
		return domain.ThreadRecord{}, false, errors.Wrap(err, "load quiz state")
	}
	return rec, true, nil
}

func (s *ThreadStore) expire(ctx context.Context, pipe redis.Pipeliner, threadID, ownerID string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.metaKey(threadID), s.ttl)
	pipe.Expire(ctx, s.itemsKey(threadID), s.ttl)
	pipe.Expire(ctx, s.quizKey(threadID), s.ttl)
	pipe.Expire(ctx, s.userKey(ownerID), s.ttl)
}

func (s *ThreadStore) metaKey(threadID string) string  { return "thread:" + threadID + ":meta" }
func (s *ThreadStore) itemsKey(threadID string) string { return "thread:" + threadID + ":items" }
func (s *ThreadStore) quizKey(threadID string) string  { return "thread:" + threadID + ":quiz" }
func (s *ThreadStore) userKey(ownerID string) string   { return "user:" + ownerID + ":threads" }

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
