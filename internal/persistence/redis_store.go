package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mvilaca/triage/pkg/api"
)

// RedisStore implements ProcessStore and VersionStore on Redis. It uses a
// simple key structure:
//
//	<prefix>proc:<id>                 => gob-encoded process aggregate
//	<prefix>idx:all                   => SET of all process IDs
//	<prefix>idx:tenant:<tenant>       => SET of process IDs per tenant
//	<prefix>idx:status:<status>       => SET of process IDs per status
//	<prefix>token:<token>             => process ID
//	<prefix>active:<tenant>:<doc>     => process ID of the non-terminal process
//	<prefix>ver:<id>                  => gob-encoded version
//	<prefix>idx:vers:<professional>   => ZSET of version IDs scored by number
//	<prefix>vernum:<professional>:<n> => version ID (uniqueness guard)
//	<prefix>current:<professional>    => current version ID
//
// The status/tenant index sets are best-effort; ListProcesses filters on the
// decoded payload. Optimistic revision checks run under WATCH/MULTI, so a
// conflicting concurrent writer surfaces as ErrConflict. Unlike the SQL
// stores, step updates serialize on the aggregate key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// Ensure RedisStore implements the interfaces.
var _ ProcessStore = (*RedisStore)(nil)

var _ VersionStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. prefix is optional but recommended
// (e.g. "triage:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "triage:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyProcess(id string) string      { return s.prefix + "proc:" + id }
func (s *RedisStore) keyAll() string                   { return s.prefix + "idx:all" }
func (s *RedisStore) keyTenant(t string) string        { return s.prefix + "idx:tenant:" + t }
func (s *RedisStore) keyStatus(st api.Status) string   { return s.prefix + "idx:status:" + string(st) }
func (s *RedisStore) keyToken(token string) string     { return s.prefix + "token:" + token }
func (s *RedisStore) keyActive(t, doc string) string   { return s.prefix + "active:" + t + ":" + doc }
func (s *RedisStore) keyVersion(id string) string      { return s.prefix + "ver:" + id }
func (s *RedisStore) keyVersions(prof string) string   { return s.prefix + "idx:vers:" + prof }
func (s *RedisStore) keyVersionNum(prof string, n int) string {
	return s.prefix + "vernum:" + prof + ":" + itoa(n)
}
func (s *RedisStore) keyCurrent(prof string) string { return s.prefix + "current:" + prof }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func encodeRedisProcess(p *api.Process) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisProcess(data []byte) (*api.Process, error) {
	if len(data) == 0 {
		return nil, ErrProcessNotFound
	}
	var p api.Process
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *RedisStore) SaveProcess(ctx context.Context, p *api.Process) error {
	data, err := encodeRedisProcess(p)
	if err != nil {
		return err
	}

	doc := p.Identification.IdentityDocument
	if doc != "" && !p.Status.Terminal() {
		ok, err := s.client.SetNX(ctx, s.keyActive(p.TenantID, doc), p.ID, 0).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrDuplicateActiveProcess
		}
	}

	if err := s.client.Set(ctx, s.keyProcess(p.ID), data, 0).Err(); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), p.ID)
	pipe.SAdd(ctx, s.keyTenant(p.TenantID), p.ID)
	pipe.SAdd(ctx, s.keyStatus(p.Status), p.ID)
	if p.Token != nil && p.Token.Value != "" {
		pipe.Set(ctx, s.keyToken(p.Token.Value), p.ID, 0)
	}
	_, _ = pipe.Exec(ctx)

	return nil
}

func (s *RedisStore) GetProcess(ctx context.Context, id string) (*api.Process, error) {
	data, err := s.client.Get(ctx, s.keyProcess(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	return decodeRedisProcess(data)
}

func (s *RedisStore) FindByToken(ctx context.Context, token string) (*api.Process, error) {
	if token == "" {
		return nil, ErrProcessNotFound
	}
	id, err := s.client.Get(ctx, s.keyToken(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	p, err := s.GetProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	// The token mapping may be stale after a reissue.
	if p.Token == nil || p.Token.Value != token {
		return nil, ErrProcessNotFound
	}
	return p, nil
}

func (s *RedisStore) FindActiveByIdentity(ctx context.Context, tenantID, document string) (*api.Process, error) {
	if document == "" {
		return nil, ErrProcessNotFound
	}
	id, err := s.client.Get(ctx, s.keyActive(tenantID, document)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	return s.GetProcess(ctx, id)
}

func (s *RedisStore) ListProcesses(ctx context.Context, filter api.ProcessFilter) ([]*api.Process, error) {
	var ids []string
	var err error

	switch {
	case filter.TenantID != "" && filter.Status != "":
		ids, err = s.client.SInter(ctx, s.keyTenant(filter.TenantID), s.keyStatus(filter.Status)).Result()
	case filter.TenantID != "":
		ids, err = s.client.SMembers(ctx, s.keyTenant(filter.TenantID)).Result()
	case filter.Status != "":
		ids, err = s.client.SMembers(ctx, s.keyStatus(filter.Status)).Result()
	default:
		ids, err = s.client.SMembers(ctx, s.keyAll()).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*api.Process{}, nil
		}
		return nil, err
	}

	var processes []*api.Process
	for _, id := range ids {
		p, err := s.GetProcess(ctx, id)
		if err != nil {
			if errors.Is(err, ErrProcessNotFound) {
				continue
			}
			return nil, err
		}
		// Index sets are best-effort; re-check against the payload.
		if filter.TenantID != "" && p.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		processes = append(processes, p)
	}
	sort.Slice(processes, func(i, j int) bool { return processes[i].CreatedAt.Before(processes[j].CreatedAt) })
	return processes, nil
}

func (s *RedisStore) UpdateProcess(ctx context.Context, p *api.Process) error {
	key := s.keyProcess(p.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrProcessNotFound
			}
			return err
		}
		stored, err := decodeRedisProcess(data)
		if err != nil {
			return err
		}
		if stored.Rev != p.Rev {
			return ErrConflict
		}
		for _, step := range p.Steps {
			ss := stored.Step(step.Type)
			if ss == nil || ss.Rev != step.Rev {
				return ErrConflict
			}
		}

		cp := *p
		cp.Rev = p.Rev + 1
		cp.Steps = make([]*api.Step, 0, len(p.Steps))
		for _, step := range p.Steps {
			sc := *step
			sc.Rev = step.Rev + 1
			cp.Steps = append(cp.Steps, &sc)
		}
		next, err := encodeRedisProcess(&cp)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			pipe.SAdd(ctx, s.keyAll(), p.ID)
			pipe.SAdd(ctx, s.keyTenant(p.TenantID), p.ID)
			pipe.SAdd(ctx, s.keyStatus(p.Status), p.ID)
			if stored.Status != p.Status {
				pipe.SRem(ctx, s.keyStatus(stored.Status), p.ID)
			}
			if p.Token != nil && p.Token.Value != "" {
				pipe.Set(ctx, s.keyToken(p.Token.Value), p.ID, 0)
			}
			if stored.Token != nil && (p.Token == nil || stored.Token.Value != p.Token.Value) {
				pipe.Del(ctx, s.keyToken(stored.Token.Value))
			}
			doc := p.Identification.IdentityDocument
			if doc != "" && p.Status.Terminal() && !stored.Status.Terminal() {
				pipe.Del(ctx, s.keyActive(p.TenantID, doc))
			}
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	}

	p.Rev++
	for _, step := range p.Steps {
		step.Rev++
	}
	return nil
}

func (s *RedisStore) UpdateStep(ctx context.Context, processID string, step *api.Step) error {
	key := s.keyProcess(processID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrProcessNotFound
			}
			return err
		}
		stored, err := decodeRedisProcess(data)
		if err != nil {
			return err
		}
		ss := stored.Step(step.Type)
		if ss == nil {
			return ErrProcessNotFound
		}
		if ss.Rev != step.Rev {
			return ErrConflict
		}

		sc := *step
		sc.Rev = step.Rev + 1
		for i, existing := range stored.Steps {
			if existing.Type == step.Type {
				stored.Steps[i] = &sc
				break
			}
		}
		next, err := encodeRedisProcess(stored)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	}

	step.Rev++
	return nil
}

func encodeRedisVersion(v *api.Version) ([]byte, error) {
	cp := *v
	cp.Current = false
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&cp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisVersion(data []byte) (*api.Version, error) {
	if len(data) == 0 {
		return nil, ErrVersionNotFound
	}
	var v api.Version
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *RedisStore) SaveVersion(ctx context.Context, v *api.Version) error {
	ok, err := s.client.SetNX(ctx, s.keyVersionNum(v.ProfessionalID, v.Number), v.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateVersion
	}

	data, err := encodeRedisVersion(v)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyVersion(v.ID), data, 0)
	pipe.ZAdd(ctx, s.keyVersions(v.ProfessionalID), redis.Z{Score: float64(v.Number), Member: v.ID})
	_, err = pipe.Exec(ctx)
	return err
}

// setCurrentFlag fills Version.Current from the current-pointer key.
func (s *RedisStore) setCurrentFlag(ctx context.Context, v *api.Version) error {
	cur, err := s.client.Get(ctx, s.keyCurrent(v.ProfessionalID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	v.Current = cur == v.ID
	return nil
}

func (s *RedisStore) GetVersion(ctx context.Context, id string) (*api.Version, error) {
	data, err := s.client.Get(ctx, s.keyVersion(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	v, err := decodeRedisVersion(data)
	if err != nil {
		return nil, err
	}
	if err := s.setCurrentFlag(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) ListVersions(ctx context.Context, professionalID string) ([]*api.Version, error) {
	ids, err := s.client.ZRange(ctx, s.keyVersions(professionalID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	versions := make([]*api.Version, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (s *RedisStore) CurrentVersion(ctx context.Context, professionalID string) (*api.Version, error) {
	id, err := s.client.Get(ctx, s.keyCurrent(professionalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return s.GetVersion(ctx, id)
}

func (s *RedisStore) MarkApplied(ctx context.Context, versionID, actorID string, at time.Time) (*api.Version, error) {
	key := s.keyVersion(versionID)

	// The current pointer is keyed by professional, so the version has to be
	// read once up front to know which pointer key the WATCH must cover. The
	// pending check still runs on the watched read inside the transaction.
	pre, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var applied *api.Version
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrVersionNotFound
			}
			return err
		}
		v, err := decodeRedisVersion(data)
		if err != nil {
			return err
		}
		if !v.Pending() {
			return ErrNotPending
		}

		ts := at
		v.AppliedAt = &ts
		v.AppliedBy = actorID
		next, err := encodeRedisVersion(v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			pipe.Set(ctx, s.keyCurrent(v.ProfessionalID), v.ID, 0)
			return nil
		})
		if err != nil {
			return err
		}

		v.Current = true
		applied = v
		return nil
	}, key, s.keyCurrent(pre.ProfessionalID))

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return applied, nil
}

func (s *RedisStore) MarkRejected(ctx context.Context, versionID, reason, actorID string, at time.Time) (*api.Version, error) {
	key := s.keyVersion(versionID)
	var rejected *api.Version

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrVersionNotFound
			}
			return err
		}
		v, err := decodeRedisVersion(data)
		if err != nil {
			return err
		}
		if !v.Pending() {
			return ErrNotPending
		}

		ts := at
		v.RejectedAt = &ts
		v.RejectedBy = actorID
		v.RejectionReason = reason
		next, err := encodeRedisVersion(v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		if err := s.setCurrentFlag(ctx, v); err != nil {
			return err
		}
		rejected = v
		return nil
	}, key)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return rejected, nil
}
