package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crawlerd/internal/models"
	"crawlerd/internal/structures"
)

const (
	fieldCompany   = "company"
	fieldCategory  = "category"
	fieldVisits    = "visits"
	fieldRTSum     = "rt_sum"
	fieldRTSamples = "rt_samples"
	fieldUpdatedAt = "updated_at"
)

// RedisRollupStore keeps each rollup row as a hash, its paths as a set and
// its countries as a hash. A sorted set per owner and domain indexes rows
// by day. Merges run in MULTI/EXEC so every increment of a delta lands
// together.
type RedisRollupStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRollupStore(conf *structures.Config) (*RedisRollupStore, error) {
	opt, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	timeout := conf.Redis.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisRollupStoreWithClient(client, conf.Redis.KeyPrefix), nil
}

func NewRedisRollupStoreWithClient(client *redis.Client, prefix string) *RedisRollupStore {
	return &RedisRollupStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisRollupStore) Close() error {
	return s.client.Close()
}

func (s *RedisRollupStore) statsKey(key models.DailyKey) string {
	return s.prefix + "daily:" + key.OwnerID + "|" + key.Domain + "|" + key.Date + "|" + key.CrawlerName
}

func (s *RedisRollupStore) pathsKey(key models.DailyKey) string {
	return s.statsKey(key) + ":paths"
}

func (s *RedisRollupStore) countriesKey(key models.DailyKey) string {
	return s.statsKey(key) + ":countries"
}

func (s *RedisRollupStore) indexKey(ownerID, domain string) string {
	return s.prefix + "idx:" + ownerID + "|" + domain
}

// dayScore turns 2006-01-02 into 20060102.
func dayScore(date string) float64 {
	n, _ := strconv.Atoi(strings.ReplaceAll(date, "-", ""))
	return float64(n)
}

func (s *RedisRollupStore) Merge(ctx context.Context, key models.DailyKey, delta *models.DailyDelta) error {
	if delta == nil || delta.Count == 0 {
		return nil
	}
	stats := s.statsKey(key)
	now := s.now().UTC().Format(time.RFC3339Nano)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, stats, fieldCompany, delta.CrawlerCompany)
		pipe.HSetNX(ctx, stats, fieldCategory, string(delta.CrawlerCategory))
		pipe.HIncrBy(ctx, stats, fieldVisits, delta.Count)
		pipe.HIncrBy(ctx, stats, fieldRTSum, delta.ResponseTimeSum)
		pipe.HIncrBy(ctx, stats, fieldRTSamples, delta.ResponseTimeSamples)
		pipe.HSet(ctx, stats, fieldUpdatedAt, now)

		if paths := delta.PathList(); len(paths) > 0 {
			members := make([]any, len(paths))
			for i, p := range paths {
				members[i] = p
			}
			pipe.SAdd(ctx, s.pathsKey(key), members...)
		}
		for country, n := range delta.Countries {
			pipe.HIncrBy(ctx, s.countriesKey(key), country, n)
		}
		pipe.ZAdd(ctx, s.indexKey(key.OwnerID, key.Domain), redis.Z{
			Score:  dayScore(key.Date),
			Member: key.Date + "|" + key.CrawlerName,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", key, err)
	}
	return nil
}

func (s *RedisRollupStore) Get(ctx context.Context, key models.DailyKey) (*models.DailyStatsRecord, error) {
	var (
		statsCmd     *redis.MapStringStringCmd
		pathsCmd     *redis.IntCmd
		countriesCmd *redis.MapStringStringCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		statsCmd = pipe.HGetAll(ctx, s.statsKey(key))
		pathsCmd = pipe.SCard(ctx, s.pathsKey(key))
		countriesCmd = pipe.HGetAll(ctx, s.countriesKey(key))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	fields := statsCmd.Val()
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeStats(key, fields, pathsCmd.Val(), countriesCmd.Val()), nil
}

// List reads the day index then fetches the matching rows in one pipeline.
func (s *RedisRollupStore) List(ctx context.Context, ownerID, domain, from, to string) ([]*models.DailyStatsRecord, error) {
	members, err := s.client.ZRangeByScore(ctx, s.indexKey(ownerID, domain), &redis.ZRangeBy{
		Min: strconv.FormatFloat(dayScore(from), 'f', 0, 64),
		Max: strconv.FormatFloat(dayScore(to), 'f', 0, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	if len(members) == 0 {
		return []*models.DailyStatsRecord{}, nil
	}

	keys := make([]models.DailyKey, 0, len(members))
	for _, m := range members {
		date, crawler, ok := strings.Cut(m, "|")
		if !ok {
			continue
		}
		keys = append(keys, models.DailyKey{OwnerID: ownerID, Domain: domain, Date: date, CrawlerName: crawler})
	}

	statsCmds := make([]*redis.MapStringStringCmd, len(keys))
	pathsCmds := make([]*redis.IntCmd, len(keys))
	countriesCmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			statsCmds[i] = pipe.HGetAll(ctx, s.statsKey(k))
			pathsCmds[i] = pipe.SCard(ctx, s.pathsKey(k))
			countriesCmds[i] = pipe.HGetAll(ctx, s.countriesKey(k))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list rows: %w", err)
	}

	records := make([]*models.DailyStatsRecord, 0, len(keys))
	for i, k := range keys {
		fields := statsCmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		records = append(records, decodeStats(k, fields, pathsCmds[i].Val(), countriesCmds[i].Val()))
	}
	return records, nil
}

func decodeStats(key models.DailyKey, fields map[string]string, paths int64, countries map[string]string) *models.DailyStatsRecord {
	visits, _ := strconv.ParseInt(fields[fieldVisits], 10, 64)
	rtSum, _ := strconv.ParseInt(fields[fieldRTSum], 10, 64)
	rtSamples, _ := strconv.ParseInt(fields[fieldRTSamples], 10, 64)
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])

	counts := make(map[string]int64, len(countries))
	for c, v := range countries {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			counts[c] = n
		}
	}

	return &models.DailyStatsRecord{
		OwnerID:             key.OwnerID,
		Domain:              key.Domain,
		Date:                key.Date,
		CrawlerName:         key.CrawlerName,
		CrawlerCompany:      fields[fieldCompany],
		CrawlerCategory:     models.Category(fields[fieldCategory]),
		VisitCount:          visits,
		UniquePathCount:     paths,
		AvgResponseTimeMs:   models.MeanResponseTime(rtSum, rtSamples),
		ResponseTimeSamples: rtSamples,
		CountryCounts:       counts,
		UpdatedAt:           updatedAt,
	}
}
