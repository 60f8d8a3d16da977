package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wardenbridge/types"
)

var StatusSets = map[string]string{
	types.StatusSubmitting: "relays:submitting", // claimed, transaction being built or sent
	types.StatusConfirmed:  "relays:confirmed",  // relay transaction succeeded
	types.StatusReverted:   "relays:reverted",   // relay transaction failed on chain, needs root-cause fix
	types.StatusUnresolved: "relays:unresolved", // no receipt yet, re-checked on later passes
}

// claimScript sets the record only when absent and adds it to its status set in
// the same step. KEYS: record key, status set. ARGV: record JSON.
var claimScript = redis.NewScript(2, `
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('SADD', KEYS[2], KEYS[1])
	return 1
end
return 0
`)

func recordKey(key string) string {
	return "relay:" + key
}

// Store keeps relay records in redis. Records are JSON strings under relay:<idempotency key>,
// and every record key is also a member of its status set.
type Store struct {
	pool *redis.Pool
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func NewStore(host string, port int) *Store {
	return NewStoreAddr(fmt.Sprintf("%s:%d", host, port))
}

func NewStoreAddr(addr string) *Store {
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 240 * time.Second,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions()...) },
		},
	}
}

// Ping checks the connection, without persistence the relayer must not run.
func (s *Store) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) Get(key string) (*types.RelayRecord, error) {
	conn := s.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", recordKey(key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("error Redis GET")
		return nil, err
	}

	var rec types.RelayRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("cannot unmarshal relay record %s: %w", key, err)
	}
	return &rec, nil
}

// Claim stores rec only if no record exists for its key. It returns false when
// another pass or process already holds the key.
func (s *Store) Claim(rec *types.RelayRecord) (bool, error) {
	if err := prepare(rec); err != nil {
		return false, err
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("cannot marshal relay record to JSON: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()

	claimed, err := redis.Int(claimScript.Do(conn, recordKey(rec.Key), StatusSets[rec.Status], recJSON))
	if err != nil {
		log.Error().Err(err).Str("key", rec.Key).Msg("error Redis claim")
		return false, err
	}
	return claimed == 1, nil
}

// Update overwrites the record and moves it between status sets.
func (s *Store) Update(rec *types.RelayRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}
	prev, err := s.Get(rec.Key)
	if err != nil {
		return err
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal relay record to JSON: %w", err)
	}

	conn := s.pool.Get()
	defer conn.Close()

	k := recordKey(rec.Key)
	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if prev != nil && prev.Status != rec.Status {
		if err := conn.Send("SREM", StatusSets[prev.Status], k); err != nil {
			return err
		}
	}
	if err := conn.Send("SET", k, recJSON); err != nil {
		return err
	}
	if err := conn.Send("SADD", StatusSets[rec.Status], k); err != nil {
		return err
	}
	if _, err := conn.Do("EXEC"); err != nil {
		log.Error().Err(err).Str("key", rec.Key).Msg("error Redis EXEC")
		return err
	}
	return nil
}

// Release drops a claim for a key whose transaction was never signed.
func (s *Store) Release(key string) error {
	conn := s.pool.Get()
	defer conn.Close()

	k := recordKey(key)
	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := conn.Send("DEL", k); err != nil {
		return err
	}
	for _, set := range StatusSets {
		if err := conn.Send("SREM", set, k); err != nil {
			return err
		}
	}
	if _, err := conn.Do("EXEC"); err != nil {
		log.Error().Err(err).Str("key", key).Msg("error Redis EXEC")
		return err
	}
	return nil
}

// ListByStatus scans the status set. Older records should be moved elsewhere
// otherwise listing slows down (still O(n)).
func (s *Store) ListByStatus(status string) ([]*types.RelayRecord, error) {
	set, ok := StatusSets[status]
	if !ok {
		return nil, errors.New("redis key not found for status")
	}

	conn := s.pool.Get()
	defer conn.Close()

	records := make([]*types.RelayRecord, 0)
	var cursor int64

	for {
		values, err := redis.Values(conn.Do("SSCAN", set, cursor))
		if err != nil {
			return nil, err
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}

		for _, key := range keys {
			data, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				// set member without record, skip it
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("error Redis GET")
				return nil, err
			}

			var rec types.RelayRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return nil, err
			}
			if rec.Status == status {
				records = append(records, &rec)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return records, nil
}

func prepare(rec *types.RelayRecord) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	if rec.Key == "" {
		return errors.New("relay record cannot have empty key")
	}
	if _, ok := StatusSets[rec.Status]; !ok {
		return fmt.Errorf("relay record has unknown status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.TsUpdated = time.Now().Unix()
	return nil
}
