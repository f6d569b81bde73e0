package group

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
	"cipherlog/internal/protocol/envelope"
	groupcrypto "cipherlog/internal/protocol/group"
	"cipherlog/internal/schema"
	"cipherlog/internal/services/logview"
	"cipherlog/internal/tasks"
)

// Config tunes the group service. Zero values pick the defaults.
type Config struct {
	// TranscriptLimit is the number of most recent entries returned when the
	// caller passes limit 0. Zero or less means unlimited.
	TranscriptLimit int
	ClearAttempts   int
	ClearBackoff    time.Duration
	Clock           func() time.Time
}

// FixupAndValidate fills defaults.
func (c *Config) FixupAndValidate() {
	if c.ClearAttempts <= 0 {
		c.ClearAttempts = 3
	}
	if c.ClearBackoff <= 0 {
		c.ClearBackoff = 200 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Service implements domain.GroupService.
type Service struct {
	keys     domain.KeyStore
	msgLog   domain.MessageLog
	registry domain.PublicKeyRegistry
	runner   *tasks.Runner
	cfg      Config
	log      *zap.Logger

	createMu sync.Mutex
}

// maxCreateAttempts bounds the search for a free group id when several groups
// are created within the same millisecond.
const maxCreateAttempts = 1000

// New constructs a group service. Key-share writes run on runner.
func New(
	keys domain.KeyStore,
	msgLog domain.MessageLog,
	registry domain.PublicKeyRegistry,
	runner *tasks.Runner,
	cfg Config,
	log *zap.Logger,
) *Service {
	cfg.FixupAndValidate()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		keys:     keys,
		msgLog:   msgLog,
		registry: registry,
		runner:   runner,
		cfg:      cfg,
		log:      log.Named("group"),
	}
}

// CreateGroup generates a group key, stores it for the creator and returns
// the new group.
func (s *Service) CreateGroup(ctx context.Context, creator domain.Address) (domain.Group, error) {
	creator, err := domain.ParseAddress(creator.String())
	if err != nil {
		return domain.Group{}, err
	}
	key, err := groupcrypto.NewKey()
	if err != nil {
		return domain.Group{}, err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// The id is derived from (creator, ts); step ts forward past ids that
	// already have a local key so an existing group is never overwritten.
	ts := logview.NowMillis(s.cfg.Clock)
	var id domain.GroupID
	for attempt := 0; ; attempt++ {
		if attempt == maxCreateAttempts {
			return domain.Group{}, fmt.Errorf("no free group id for %s near %d", creator, ts)
		}
		id = addressing.GroupID(creator, ts)
		_, taken, err := s.keys.GetGroupKey(id)
		if err != nil {
			return domain.Group{}, err
		}
		if !taken {
			break
		}
		ts++
	}
	if err := s.keys.SaveGroupKey(id, key); err != nil {
		return domain.Group{}, err
	}
	s.log.Info("group created", zap.Stringer("group", id), zap.Stringer("creator", creator))
	return domain.Group{ID: id, Creator: creator, CreatedAt: ts}, nil
}

// WrapGroupKey seals the locally held key of group for member.
func (s *Service) WrapGroupKey(
	group domain.GroupID,
	member domain.Address,
	memberPublicKey domain.X25519Public,
) (domain.GroupKeyShare, error) {
	member, err := domain.ParseAddress(member.String())
	if err != nil {
		return domain.GroupKeyShare{}, err
	}
	key, err := s.groupKey(group)
	if err != nil {
		return domain.GroupKeyShare{}, err
	}
	return groupcrypto.WrapKey(group, key, member, memberPublicKey)
}

// ShareGroupKey wraps the group key for member's registered public key and
// publishes the share into from's slot in the background.
func (s *Service) ShareGroupKey(
	ctx context.Context,
	from domain.Address,
	group domain.GroupID,
	member domain.Address,
) (domain.Pending, error) {
	from, err := domain.ParseAddress(from.String())
	if err != nil {
		return nil, err
	}
	member, err = domain.ParseAddress(member.String())
	if err != nil {
		return nil, err
	}
	if _, err := s.groupKey(group); err != nil {
		return nil, err
	}

	memberPub, ok, err := s.registry.Fetch(ctx, member)
	if err != nil {
		return nil, fmt.Errorf("fetch public key for %s: %w", member, err)
	}
	if !ok || memberPub.IsZero() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotRegistered, member)
	}

	share, err := s.WrapGroupKey(group, member, memberPub)
	if err != nil {
		return nil, err
	}
	record, err := shareRecord(from, share, logview.NowMillis(s.cfg.Clock))
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("group-key %s -> %s", group, member)
	return s.runner.Go(name, func(ctx context.Context) error {
		return logview.PublishAndWait(ctx, s.msgLog, from, record)
	}), nil
}

// ReceiveGroupKey unwraps share with me's key pair and stores the group key.
func (s *Service) ReceiveGroupKey(me domain.Address, share domain.GroupKeyShare) error {
	me, err := domain.ParseAddress(me.String())
	if err != nil {
		return err
	}
	if share.Member.Normalize() != me {
		return fmt.Errorf("group key share is addressed to %s, not %s", share.Member, me)
	}
	kp, err := s.keyPair(me)
	if err != nil {
		return err
	}
	key, err := groupcrypto.UnwrapKey(share, kp)
	if err != nil {
		return err
	}
	return s.keys.SaveGroupKey(share.GroupID, key)
}

// SyncGroupKeys reads the key shares from published for me and stores the
// recovered keys. The newest share per group wins; replacing a different
// local key is logged at warn level. It returns the number of groups whose
// local key was added or changed.
func (s *Service) SyncGroupKeys(ctx context.Context, me domain.Address, from domain.Address) (int, error) {
	me, err := domain.ParseAddress(me.String())
	if err != nil {
		return 0, err
	}
	from, err = domain.ParseAddress(from.String())
	if err != nil {
		return 0, err
	}
	kp, err := s.keyPair(me)
	if err != nil {
		return 0, err
	}

	rows, err := s.msgLog.ReadAllByPublisher(ctx, schema.GroupKeyShareID, from)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", from, err)
	}

	var shares []domain.GroupKeyShareRecord
	for _, row := range logview.Dedupe(rows) {
		rec, err := schema.DecodeGroupKeyShare(row.Data)
		if err != nil {
			s.log.Warn("dropping malformed key share", zap.Stringer("id", row.ID), zap.Error(err))
			continue
		}
		if rec.Sender != row.Publisher.Normalize() || rec.Member != me || rec.IsDeleted {
			continue
		}
		shares = append(shares, rec)
	}
	slices.SortStableFunc(shares, func(a, b domain.GroupKeyShareRecord) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	// Shares are sorted oldest first, so the last decryptable one per group wins.
	newest := make(map[domain.GroupID]domain.GroupKey)
	var order []domain.GroupID
	for _, rec := range shares {
		env, err := envelope.Parse(rec.Content)
		if err != nil {
			s.log.Warn("key share not decryptable", zap.Stringer("group", rec.GroupID), zap.Error(err))
			continue
		}
		key, err := groupcrypto.UnwrapKey(domain.GroupKeyShare{GroupID: rec.GroupID, Member: me, Envelope: env}, kp)
		if err != nil {
			s.log.Warn("key share not decryptable", zap.Stringer("group", rec.GroupID), zap.Error(err))
			continue
		}
		if _, seen := newest[rec.GroupID]; !seen {
			order = append(order, rec.GroupID)
		}
		newest[rec.GroupID] = key
	}

	changed := make(map[domain.GroupID]bool)
	for _, group := range order {
		key := newest[group]
		current, ok, err := s.keys.GetGroupKey(group)
		if err != nil {
			return len(changed), err
		}
		if ok && current == key {
			continue
		}
		if ok {
			s.log.Warn("replacing local group key", zap.Stringer("group", group), zap.Stringer("from", from))
		}
		if err := s.keys.SaveGroupKey(group, key); err != nil {
			return len(changed), err
		}
		changed[group] = true
	}
	if len(changed) > 0 {
		s.log.Info("group keys synced", zap.Stringer("from", from), zap.Int("groups", len(changed)))
	}
	return len(changed), nil
}

// SendGroupMessage encrypts plaintext under the group key and publishes it
// into sender's slot.
func (s *Service) SendGroupMessage(
	ctx context.Context,
	sender domain.Address,
	group domain.GroupID,
	plaintext string,
	opts domain.SendOptions,
) (domain.SendResult, error) {
	sender, err := domain.ParseAddress(sender.String())
	if err != nil {
		return domain.SendResult{}, err
	}
	key, err := s.groupKey(group)
	if err != nil {
		return domain.SendResult{}, err
	}

	ct, err := groupcrypto.Encrypt([]byte(plaintext), key)
	if err != nil {
		return domain.SendResult{}, err
	}
	content, err := groupcrypto.Marshal(ct)
	if err != nil {
		return domain.SendResult{}, err
	}
	ts := logview.NowMillis(s.cfg.Clock)
	data, err := schema.EncodeGroupMessage(domain.GroupMessageRecord{
		Timestamp:   ts,
		GroupID:     group,
		Content:     content,
		Sender:      sender,
		MessageType: opts.MessageType,
		MediaURL:    opts.MediaURL,
		ReplyTo:     opts.ReplyTo,
	})
	if err != nil {
		return domain.SendResult{}, err
	}
	id, err := addressing.NewRecordID(sender, ts, addressing.PurposeGroup)
	if err != nil {
		return domain.SendResult{}, err
	}
	record := domain.Record{ID: id, SchemaID: schema.GroupMessageID, Data: data}
	if err := logview.PublishAndWait(ctx, s.msgLog, sender, record); err != nil {
		s.log.Error("group send failed", zap.Stringer("group", group), zap.Error(err))
		return domain.SendResult{}, err
	}
	return domain.SendResult{ID: id, Timestamp: ts}, nil
}

// GroupTranscript merges the group messages published by members, oldest
// first. limit follows the same rules as the direct-message transcript.
func (s *Service) GroupTranscript(
	ctx context.Context,
	group domain.GroupID,
	members []domain.Address,
	limit int,
) ([]domain.DecryptedMessage, error) {
	key, err := s.groupKey(group)
	if err != nil {
		return nil, err
	}
	parsed := make([]domain.Address, 0, len(members))
	for _, m := range members {
		p, err := domain.ParseAddress(m.String())
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	rows, err := logview.ReadSlots(ctx, s.msgLog, schema.GroupMessageID, parsed...)
	if err != nil {
		return nil, err
	}
	entries := slices.DeleteFunc(s.decode(logview.Dedupe(rows)), func(e entry) bool {
		return e.rec.GroupID != group || e.rec.IsDeleted
	})
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Or(
			cmp.Compare(a.rec.Timestamp, b.rec.Timestamp),
			strings.Compare(a.row.Publisher.String(), b.row.Publisher.String()),
			bytes.Compare(a.row.ID[:], b.row.ID[:]),
		)
	})
	entries = logview.Tail(entries, s.limit(limit))

	out := make([]domain.DecryptedMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.open(key, e))
	}
	return out, nil
}

// ClearGroupChat soft-deletes every group message me published into group.
func (s *Service) ClearGroupChat(
	ctx context.Context,
	me domain.Address,
	group domain.GroupID,
) (domain.ClearResult, error) {
	me, err := domain.ParseAddress(me.String())
	if err != nil {
		return domain.ClearResult{}, err
	}
	rows, err := s.msgLog.ReadAllByPublisher(ctx, schema.GroupMessageID, me)
	if err != nil {
		return domain.ClearResult{}, fmt.Errorf("read %s: %w", me, err)
	}

	var records []domain.Record
	for _, e := range s.decode(logview.Dedupe(rows)) {
		if e.rec.GroupID != group || e.rec.IsDeleted {
			continue
		}
		rec := e.rec
		rec.IsDeleted = true
		data, err := schema.EncodeGroupMessage(rec)
		if err != nil {
			return domain.ClearResult{}, fmt.Errorf("encode %s: %w", e.row.ID, err)
		}
		records = append(records, domain.Record{ID: e.row.ID, SchemaID: schema.GroupMessageID, Data: data})
	}

	res, err := logview.Overwriter{
		Log:      s.msgLog,
		Attempts: s.cfg.ClearAttempts,
		Backoff:  s.cfg.ClearBackoff,
		Logger:   s.log,
	}.Overwrite(ctx, me, records)
	s.log.Info("group chat cleared",
		zap.Stringer("group", group),
		zap.Int("cleared", res.Cleared),
		zap.Int("failed", len(res.Failed)),
	)
	return res, err
}

type entry struct {
	row domain.Row
	rec domain.GroupMessageRecord
}

func (s *Service) decode(rows []domain.Row) []entry {
	out := make([]entry, 0, len(rows))
	for _, row := range rows {
		rec, err := schema.DecodeGroupMessage(row.Data)
		if err != nil {
			s.log.Warn("dropping malformed record", zap.Stringer("id", row.ID), zap.Error(err))
			continue
		}
		if rec.Sender != row.Publisher.Normalize() {
			s.log.Warn("dropping record with foreign sender",
				zap.Stringer("id", row.ID),
				zap.Stringer("publisher", row.Publisher),
			)
			continue
		}
		out = append(out, entry{row: row, rec: rec})
	}
	return out
}

func (s *Service) open(key domain.GroupKey, e entry) domain.DecryptedMessage {
	msg := domain.DecryptedMessage{
		ID:          e.row.ID,
		Publisher:   e.row.Publisher,
		GroupID:     e.rec.GroupID,
		Sender:      e.rec.Sender,
		Timestamp:   e.rec.Timestamp,
		MessageType: e.rec.MessageType,
		MediaURL:    e.rec.MediaURL,
		ReplyTo:     e.rec.ReplyTo,
		IsDeleted:   e.rec.IsDeleted,
	}
	pt, err := openContent(e.rec.Content, key)
	if err != nil {
		s.log.Warn("group message not decryptable", zap.Stringer("id", e.row.ID), zap.Error(err))
		msg.Plaintext = domain.UndecryptablePlaceholder
		msg.Undecryptable = true
		return msg
	}
	msg.Plaintext = string(pt)
	return msg
}

func openContent(content string, key domain.GroupKey) ([]byte, error) {
	ct, err := groupcrypto.Parse(content)
	if err != nil {
		return nil, err
	}
	return groupcrypto.Decrypt(ct, key)
}

func (s *Service) limit(limit int) int {
	switch {
	case limit == 0:
		return s.cfg.TranscriptLimit
	case limit < 0:
		return 0
	default:
		return limit
	}
}

func (s *Service) groupKey(group domain.GroupID) (domain.GroupKey, error) {
	key, ok, err := s.keys.GetGroupKey(group)
	if err != nil {
		return domain.GroupKey{}, err
	}
	if !ok {
		return domain.GroupKey{}, domain.NoGroupKey(group)
	}
	return key, nil
}

func (s *Service) keyPair(user domain.Address) (domain.KeyPair, error) {
	kp, ok, err := s.keys.GetKeyPair(user)
	if err != nil {
		return domain.KeyPair{}, err
	}
	if !ok {
		return domain.KeyPair{}, domain.NoKeyPair(user)
	}
	return kp, nil
}

func shareRecord(from domain.Address, share domain.GroupKeyShare, ts uint64) (domain.Record, error) {
	content, err := envelope.Marshal(share.Envelope)
	if err != nil {
		return domain.Record{}, err
	}
	data, err := schema.EncodeGroupKeyShare(domain.GroupKeyShareRecord{
		Timestamp: ts,
		GroupID:   share.GroupID,
		Content:   content,
		Sender:    from,
		Member:    share.Member,
	})
	if err != nil {
		return domain.Record{}, err
	}
	id, err := addressing.NewRecordID(from, ts, addressing.PurposeGroupKey)
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{ID: id, SchemaID: schema.GroupKeyShareID, Data: data}, nil
}

// Compile-time assertion that Service implements domain.GroupService.
var _ domain.GroupService = (*Service)(nil)
